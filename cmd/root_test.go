package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/network"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func TestRegisterConfigFlags_DefaultsMatchDefaultConfig(t *testing.T) {
	// GIVEN a fresh flag set bound to a zero Config
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var values sim.Config

	// WHEN the parameter flags are registered and nothing is passed
	setters := registerConfigFlags(fs, &values)
	require.NoError(t, fs.Parse(nil))

	// THEN the bound values are the defaults and every flag has a setter
	assert.Equal(t, sim.DefaultConfig(), values)
	for name := range setters {
		assert.NotNil(t, fs.Lookup(name), "flag %s", name)
	}
}

func TestApplyChanged_OnlyExplicitFlagsOverride(t *testing.T) {
	// GIVEN a base config that differs from the defaults, e.g. loaded from a file
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var values sim.Config
	setters := registerConfigFlags(fs, &values)
	base := sim.DefaultConfig()
	base.JitterMaxValue = 20
	base.Seed = 7

	// WHEN only the seed and the mode are passed on the command line
	require.NoError(t, fs.Parse([]string{"--seed=99", "--nodes-mode=BOLD", "--retransmit-acks"}))
	applyChanged(fs, setters, &base)

	// THEN those override the base and everything else is untouched
	assert.Equal(t, int64(99), base.Seed)
	assert.Equal(t, sim.ModeBold, base.NodesMode)
	assert.True(t, base.RetransmitAcks)
	assert.Equal(t, 20.0, base.JitterMaxValue, "unset flag must not reset the file value")
	assert.Equal(t, sim.DefaultConfig().HearingRadius, base.HearingRadius)
}

func TestResolveTopology(t *testing.T) {
	oldPath, oldRelays, oldSpacing := topologyPath, lineRelays, lineSpacing
	t.Cleanup(func() { topologyPath, lineRelays, lineSpacing = oldPath, oldRelays, oldSpacing })

	// line preset
	topologyPath, lineRelays, lineSpacing = "", 2, 5
	topo, err := resolveTopology()
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 4)
	assert.Equal(t, network.RoleSource, topo.Nodes[0].Role)
	assert.Equal(t, network.RoleGateway, topo.Nodes[3].Role)
	assert.Equal(t, 15.0, topo.Nodes[3].X)

	// negative relay count
	lineRelays = -1
	_, err = resolveTopology()
	assert.Error(t, err)

	// file
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - {id: 1, role: source}\n  - {id: 2, role: gateway, x: 4}\nlinks:\n  - {from: 1, to: 2}\n"), 0o644))
	topologyPath = path
	topo, err = resolveTopology()
	require.NoError(t, err)
	assert.Len(t, topo.Nodes, 2)
	assert.Len(t, topo.Links, 1)
}

func TestRunCommand_WritesSummarySnapshotAndMetrics(t *testing.T) {
	// GIVEN a config file raising the jitter range and a seed override on the command line
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("jitter_max_value: 20\nsimulation_total_duration: 500\n"), 0o644))
	snapshotFile := filepath.Join(dir, "snapshot.yaml")
	metricsFile := filepath.Join(dir, "metrics.prom")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })
	rootCmd.SetArgs([]string{
		"run",
		"--config", configFile,
		"--seed", "5",
		"--line", "2",
		"--log", "warn",
		"--snapshot-out", snapshotFile,
		"--metrics-out", metricsFile,
	})

	// WHEN the run command executes
	require.NoError(t, rootCmd.Execute())

	// THEN the summary is printed and both artifacts reflect the merged parameters
	assert.Contains(t, out.String(), "Simulation Summary")
	assert.Contains(t, out.String(), "emitted:             1")
	assert.Contains(t, out.String(), "delivered:           1")

	snap, err := network.ReadSnapshot(snapshotFile)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Parameters.Seed)
	assert.Equal(t, 20.0, snap.Parameters.JitterMaxValue)
	assert.Len(t, snap.Nodes, 4)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "lpwan_messages_delivered_total 1")
	assert.Contains(t, string(metrics), "lpwan_nodes 4")
}
