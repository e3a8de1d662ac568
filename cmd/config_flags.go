package cmd

import (
	"github.com/spf13/pflag"

	"github.com/piconetwork/lpwan-sim/sim"
)

// bindConfigFlag registers one parameter flag writing into the field of values that
// field selects, defaulting to the DefaultConfig value. The returned setter copies the
// flag's value into another Config.
func bindConfigFlag[T any](
	values *sim.Config,
	field func(*sim.Config) *T,
	register func(p *T, name string, value T, usage string),
	name, usage string,
) func(*sim.Config) {
	def := sim.DefaultConfig()
	register(field(values), name, *field(&def), usage)
	return func(dst *sim.Config) { *field(dst) = *field(values) }
}

// registerConfigFlags adds a flag per simulation parameter to fs and returns the
// setters keyed by flag name.
func registerConfigFlags(fs *pflag.FlagSet, values *sim.Config) map[string]func(*sim.Config) {
	return map[string]func(*sim.Config){
		"nodes-mode": bindConfigFlag(values, func(c *sim.Config) *string { return &c.NodesMode }, fs.StringVar,
			"nodes-mode", "Relay mode (FLOODING, FASTFLOODING, SLOWFLOODING, REGULAR, CONSERVATIVE, AGGRESSIVE, BOLD)"),
		"channel-delay-per-unit": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.ChannelDelayPerUnit }, fs.Float64Var,
			"channel-delay-per-unit", "Propagation delay per unit of distance"),
		"hearing-radius": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.HearingRadius }, fs.Float64Var,
			"hearing-radius", "Radius used by metric mesh topologies"),
		"jitter-intervals": bindConfigFlag(values, func(c *sim.Config) *int { return &c.JitterIntervals }, fs.IntVar,
			"jitter-intervals", "Number of jitter buckets"),
		"jitter-min": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.JitterMinValue }, fs.Float64Var,
			"jitter-min", "Lower bound of the jitter range"),
		"jitter-max": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.JitterMaxValue }, fs.Float64Var,
			"jitter-max", "Upper bound of the jitter range"),
		"adaptation-factor": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.AdaptationFactor }, fs.Float64Var,
			"adaptation-factor", "Weight of the newest downstream jitter observation"),
		"reception-duration": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.NodeReceptionDuration }, fs.Float64Var,
			"reception-duration", "Time a node needs to receive one packet"),
		"source-delay": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.SourceRecurrentDelay }, fs.Float64Var,
			"source-delay", "Interval between two source emissions"),
		"duration": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.SimulationTotalDuration }, fs.Float64Var,
			"duration", "Simulation horizon in simulated time units (0 runs until the queue drains)"),
		"slowness": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.SimulationSlowness }, fs.Float64Var,
			"slowness", "Wall-clock seconds per simulated time unit (0 runs as fast as possible)"),
		"state-capacity": bindConfigFlag(values, func(c *sim.Config) *int { return &c.PacketsStateCapacity }, fs.IntVar,
			"state-capacity", "Concurrent messages a relay can track"),
		"remember-capacity": bindConfigFlag(values, func(c *sim.Config) *int { return &c.PacketsRememberCapacity }, fs.IntVar,
			"remember-capacity", "Recently handled messages a relay remembers"),
		"aggressive-probability": bindConfigFlag(values, func(c *sim.Config) *float64 { return &c.AggressiveProbability }, fs.Float64Var,
			"aggressive-probability", "Retransmission probability in aggressive suppression"),
		"max-neighbours": bindConfigFlag(values, func(c *sim.Config) *int { return &c.MaxNeighboursStorable }, fs.IntVar,
			"max-neighbours", "Neighbours stored per slot"),
		"retransmit-acks": bindConfigFlag(values, func(c *sim.Config) *bool { return &c.RetransmitAcks }, fs.BoolVar,
			"retransmit-acks", "Relay acknowledgements like messages"),
		"disallow-multiple-retransmissions": bindConfigFlag(values, func(c *sim.Config) *bool { return &c.DisallowMultipleRetransmissions }, fs.BoolVar,
			"disallow-multiple-retransmissions", "Drop messages a relay already handled"),
		"seed": bindConfigFlag(values, func(c *sim.Config) *int64 { return &c.Seed }, fs.Int64Var,
			"seed", "Seed for the simulation's random streams"),
	}
}
