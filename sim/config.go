package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Node operating modes accepted in Config.NodesMode.
const (
	ModeFlooding     = "FLOODING"
	ModeFastFlooding = "FASTFLOODING"
	ModeSlowFlooding = "SLOWFLOODING"
	ModeRegular      = "REGULAR"
	ModeConservative = "CONSERVATIVE"
	ModeAggressive   = "AGGRESSIVE"
	ModeBold         = "BOLD"
)

// ValidNodesModes is the set of recognized relay operating modes.
var ValidNodesModes = map[string]bool{
	ModeFlooding:     true,
	ModeFastFlooding: true,
	ModeSlowFlooding: true,
	ModeRegular:      true,
	ModeConservative: true,
	ModeAggressive:   true,
	ModeBold:         true,
}

// Config holds every simulation parameter. It is applied before a run starts and
// is never mutated while the run is in progress.
type Config struct {
	NodesMode               string  `yaml:"nodes_mode"`
	ChannelDelayPerUnit     float64 `yaml:"channel_delay_per_unit"`
	HearingRadius           float64 `yaml:"hearing_radius"`
	JitterIntervals         int     `yaml:"jitter_intervals"`
	JitterMinValue          float64 `yaml:"jitter_min_value"`
	JitterMaxValue          float64 `yaml:"jitter_max_value"`
	AdaptationFactor        float64 `yaml:"adaptation_factor"`
	NodeReceptionDuration   float64 `yaml:"node_reception_duration"`
	SourceRecurrentDelay    float64 `yaml:"source_recurrent_delay"`
	SimulationTotalDuration float64 `yaml:"simulation_total_duration"` // 0 = run until the queue drains
	SimulationSlowness      float64 `yaml:"simulation_slowness"`       // 1.0 = real time

	// Protocol knobs
	PacketsStateCapacity            int     `yaml:"packets_state_capacity"`
	PacketsRememberCapacity         int     `yaml:"packets_remember_capacity"`
	AggressiveProbability           float64 `yaml:"aggressive_probability"`
	MaxNeighboursStorable           int     `yaml:"max_neighbours_storable"`
	RetransmitAcks                  bool    `yaml:"retransmit_acks"`
	DisallowMultipleRetransmissions bool    `yaml:"disallow_multiple_retransmissions"`

	Seed int64 `yaml:"seed"`
}

const defaultJitterMax = 8 * 0.6 * 10

// DefaultConfig returns the parameters used by the reference experiments.
func DefaultConfig() Config {
	return Config{
		NodesMode:                       ModeRegular,
		ChannelDelayPerUnit:             5e-8,
		HearingRadius:                   30.0,
		JitterIntervals:                 10,
		JitterMinValue:                  0.0,
		JitterMaxValue:                  defaultJitterMax,
		AdaptationFactor:                0.6,
		NodeReceptionDuration:           0.6,
		SourceRecurrentDelay:            defaultJitterMax * 20,
		SimulationTotalDuration:         defaultJitterMax * 20 * 90,
		SimulationSlowness:              0.0,
		PacketsStateCapacity:            1,
		PacketsRememberCapacity:         4,
		AggressiveProbability:           0.2,
		MaxNeighboursStorable:           10,
		RetransmitAcks:                  false,
		DisallowMultipleRetransmissions: true,
		Seed:                            42,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are rejected so that typos surface before a run.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading simulation config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing simulation config: %w", err)
	}
	return cfg, nil
}

// JitterIntervalDuration is the width of one jitter bucket.
func (c Config) JitterIntervalDuration() float64 {
	return (c.JitterMaxValue - c.JitterMinValue) / float64(c.JitterIntervals)
}

// FollowupTimeout is how long a relay listens for its successor after retransmitting.
func (c Config) FollowupTimeout() float64 {
	return 2 * c.JitterMaxValue
}

// Validate checks mode names and parameter ranges.
func (c Config) Validate() error {
	if !ValidNodesModes[c.NodesMode] {
		return fmt.Errorf("unknown nodes mode %q", c.NodesMode)
	}
	for name, v := range map[string]float64{
		"channel_delay_per_unit":    c.ChannelDelayPerUnit,
		"hearing_radius":            c.HearingRadius,
		"jitter_min_value":          c.JitterMinValue,
		"jitter_max_value":          c.JitterMaxValue,
		"adaptation_factor":         c.AdaptationFactor,
		"node_reception_duration":   c.NodeReceptionDuration,
		"source_recurrent_delay":    c.SourceRecurrentDelay,
		"simulation_total_duration": c.SimulationTotalDuration,
		"simulation_slowness":       c.SimulationSlowness,
		"aggressive_probability":    c.AggressiveProbability,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %f", name, v)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, v)
		}
	}
	if c.JitterMinValue >= c.JitterMaxValue {
		return fmt.Errorf("jitter_min_value (%f) must be below jitter_max_value (%f)", c.JitterMinValue, c.JitterMaxValue)
	}
	if c.JitterIntervals <= 0 {
		return fmt.Errorf("jitter_intervals must be positive, got %d", c.JitterIntervals)
	}
	if c.AdaptationFactor > 1 {
		return fmt.Errorf("adaptation_factor must be in [0, 1], got %f", c.AdaptationFactor)
	}
	if c.AggressiveProbability > 1 {
		return fmt.Errorf("aggressive_probability must be in [0, 1], got %f", c.AggressiveProbability)
	}
	if c.SourceRecurrentDelay == 0 {
		return fmt.Errorf("source_recurrent_delay must be positive")
	}
	if c.PacketsStateCapacity <= 0 {
		return fmt.Errorf("packets_state_capacity must be positive, got %d", c.PacketsStateCapacity)
	}
	if c.PacketsRememberCapacity <= 0 {
		return fmt.Errorf("packets_remember_capacity must be positive, got %d", c.PacketsRememberCapacity)
	}
	if c.MaxNeighboursStorable < 0 {
		return fmt.Errorf("max_neighbours_storable must be non-negative, got %d", c.MaxNeighboursStorable)
	}
	return nil
}
