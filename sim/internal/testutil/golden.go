// Package testutil provides shared test infrastructure for lpwan-sim.
// It holds the golden scenario types and assertion helpers used by the sim/ sub-packages.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gopkg.in/yaml.v3"
)

// GoldenDataset represents the structure of testdata/golden_scenarios.yaml.
type GoldenDataset struct {
	Scenarios []GoldenScenario `yaml:"scenarios"`
}

// GoldenScenario is a line topology run whose outcome is known in closed form.
type GoldenScenario struct {
	Name     string        `yaml:"name"`
	Mode     string        `yaml:"mode"`
	Relays   int           `yaml:"relays"`
	Spacing  float64       `yaml:"spacing"`
	Duration float64       `yaml:"duration"`
	Seed     int64         `yaml:"seed"`
	Metrics  GoldenMetrics `yaml:"metrics"`
}

// GoldenMetrics represents the expected summary of a golden scenario.
type GoldenMetrics struct {
	// Exact match metrics
	Emitted   int `yaml:"emitted"`
	Delivered int `yaml:"delivered"`
	MaxHops   int `yaml:"max_hops"`

	SuccessRate float64 `yaml:"success_rate"`
	MeanHops    float64 `yaml:"mean_hops"`
	// MeanDelay is only deterministic for modes without a random jitter draw.
	MeanDelay *float64 `yaml:"mean_delay,omitempty"`
}

// LoadGoldenDataset loads the golden scenarios from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "golden_scenarios.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	if len(dataset.Scenarios) == 0 {
		t.Fatal("Golden dataset has no scenarios")
	}
	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
