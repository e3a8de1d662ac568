package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/network"
	"github.com/piconetwork/lpwan-sim/sim/trace"
)

var (
	configPath   string  // YAML simulation parameters, applied before CLI overrides
	topologyPath string  // YAML topology; a line preset is used when empty
	lineRelays   int     // Relays in the line preset
	lineSpacing  float64 // Distance between consecutive nodes of the line preset
	logLevel     string  // Log verbosity level
	traceLevel   string  // Packet lifecycle tracing
	snapshotOut  string  // Post-run snapshot destination
	metricsOut   string  // Prometheus text file destination

	// flagConfig receives the values of the simulation parameter flags
	flagConfig = sim.DefaultConfig()
	// configSetters copies one changed flag from flagConfig into a Config
	configSetters map[string]func(*sim.Config)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lpwan-sim",
	Short: "Discrete-event simulator for jitter-based LPWAN relay protocols",
}

// runCmd executes the simulation using parameters from the config file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the network simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo, err := resolveTopology()
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		net, err := network.New(cfg, topo, network.Options{
			Registerer: prometheus.NewRegistry(),
			Trace:      trace.TraceConfig{Level: trace.TraceLevel(traceLevel)},
		})
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		startTime := time.Now()
		res, err := net.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logrus.Warn("Simulation interrupted, reporting partial results")
		} else if err != nil {
			logrus.Fatalf("%v", err)
		}
		printSummary(cmd.OutOrStdout(), net, res, time.Since(startTime))

		if snapshotOut != "" {
			if err := net.WriteSnapshot(snapshotOut); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Snapshot written to %s", snapshotOut)
		}
		if metricsOut != "" {
			if err := net.Metrics.WriteTextfile(metricsOut); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Metrics written to %s", metricsOut)
		}
		logrus.Info("Simulation complete.")
	},
}

// resolveConfig layers the config file over the defaults, then the flags the user set.
func resolveConfig(cmd *cobra.Command) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if configPath != "" {
		loaded, err := sim.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	applyConfigFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveTopology() (network.Topology, error) {
	if topologyPath != "" {
		return network.LoadTopology(topologyPath)
	}
	if lineRelays < 0 {
		return network.Topology{}, fmt.Errorf("--line must be non-negative, got %d", lineRelays)
	}
	return network.LineTopology(lineRelays, lineSpacing), nil
}

// applyConfigFlags copies only the explicitly set parameter flags into cfg.
func applyConfigFlags(cmd *cobra.Command, cfg *sim.Config) {
	applyChanged(cmd.Flags(), configSetters, cfg)
}

func applyChanged(fs *pflag.FlagSet, setters map[string]func(*sim.Config), cfg *sim.Config) {
	fs.Visit(func(f *pflag.Flag) {
		if set, ok := setters[f.Name]; ok {
			set(cfg)
		}
	})
}

func printSummary(w io.Writer, net *network.Network, res *network.Result, wall time.Duration) {
	s := res.Summary
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "mode:                %s\n", net.Config.NodesMode)
	fmt.Fprintf(w, "nodes:               %d\n", len(net.Nodes()))
	fmt.Fprintf(w, "links:               %d\n", len(net.Channel.Edges()))
	fmt.Fprintf(w, "simulated_time:      %.3f\n", res.Clock)
	fmt.Fprintf(w, "events:              %d\n", res.ExecutedEvents)
	fmt.Fprintf(w, "emitted:             %d\n", s.Emitted)
	fmt.Fprintf(w, "delivered:           %d\n", s.Delivered)
	fmt.Fprintf(w, "acked_at_source:     %d\n", s.SourceAcked)
	fmt.Fprintf(w, "success_rate:        %.4f\n", s.SuccessRate)
	fmt.Fprintf(w, "delay_mean:          %.3f\n", s.MeanDelay)
	fmt.Fprintf(w, "delay_stddev:        %.3f\n", s.StdDevDelay)
	fmt.Fprintf(w, "delay_p50:           %.3f\n", s.P50Delay)
	fmt.Fprintf(w, "delay_p95:           %.3f\n", s.P95Delay)
	fmt.Fprintf(w, "hops_mean:           %.2f\n", s.MeanHops)
	fmt.Fprintf(w, "hops_max:            %d\n", s.MaxHops)
	fmt.Fprintf(w, "wall_time:           %s\n", wall.Round(time.Millisecond))
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML file with simulation parameters")
	runCmd.Flags().StringVar(&topologyPath, "topology", "", "YAML topology file (defaults to a line of --line relays)")
	runCmd.Flags().IntVar(&lineRelays, "line", 3, "Number of relays in the line preset")
	runCmd.Flags().Float64Var(&lineSpacing, "spacing", 10, "Distance between neighbours in the line preset")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelPackets), "Packet lifecycle tracing (none, packets)")
	runCmd.Flags().StringVar(&snapshotOut, "snapshot-out", "", "Write the post-run snapshot (YAML) to this file")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")

	configSetters = registerConfigFlags(runCmd.Flags(), &flagConfig)

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
