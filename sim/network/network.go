// Package network assembles a simulation: it builds the channel and the nodes from a
// topology, wires metrics and lifecycle tracing into them, runs the event loop and
// exposes the post-run state as a snapshot.
package network

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/channel"
	"github.com/piconetwork/lpwan-sim/sim/metrics"
	"github.com/piconetwork/lpwan-sim/sim/node"
	"github.com/piconetwork/lpwan-sim/sim/packet"
	"github.com/piconetwork/lpwan-sim/sim/trace"
)

// Options carries the optional collaborators of a Network.
type Options struct {
	// Registerer receives the run's metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// Trace selects lifecycle tracing; the zero value records packets.
	Trace trace.TraceConfig
}

// Network is one fully wired simulation context. Nothing in it is shared with other
// Networks, so independent runs may proceed in parallel goroutines.
type Network struct {
	Config   sim.Config
	Topology Topology

	Sim     *sim.Simulator
	Channel *channel.Channel
	Alloc   *packet.IDAllocator
	RNG     *sim.PartitionedRNG
	Metrics *metrics.Collector
	Trace   *trace.SimulationTrace

	nodes   map[packet.NodeID]*node.Node
	order   []packet.NodeID
	started bool
}

// Result is what a finished run reports.
type Result struct {
	Clock          float64
	ExecutedEvents int
	Summary        *trace.TraceSummary
}

// New validates cfg and topo and builds the network. Nothing is scheduled yet.
func New(cfg sim.Config, topo Topology, opts Options) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, err
	}
	traceCfg := opts.Trace
	if traceCfg.Level == "" {
		traceCfg.Level = trace.TraceLevelPackets
	}

	n := &Network{
		Config:   cfg,
		Topology: topo,
		Sim:      sim.NewSimulator(cfg.SimulationTotalDuration, cfg.SimulationSlowness),
		Alloc:    packet.NewIDAllocator(),
		RNG:      sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)),
		Metrics:  collector,
		Trace:    trace.NewSimulationTrace(traceCfg),
		nodes:    make(map[packet.NodeID]*node.Node),
	}
	n.Channel = channel.New(n.Sim, n.RNG.ForSubsystem(sim.SubsystemChannel), cfg.ChannelDelayPerUnit)
	n.Channel.SetRecorder(collector)

	for _, spec := range topo.Nodes {
		nd := n.buildNode(spec)
		if err := n.Channel.Register(nd); err != nil {
			return nil, err
		}
		n.nodes[spec.ID] = nd
		n.order = append(n.order, spec.ID)
	}
	for _, l := range topo.Links {
		distance, reliability, bidirectional := topo.resolve(l)
		if err := n.Channel.Link(l.From, l.To, distance, reliability, bidirectional); err != nil {
			return nil, err
		}
	}
	if topo.Mesh != nil {
		radius := topo.Mesh.Radius
		if radius == 0 {
			radius = cfg.HearingRadius
		}
		reliability := 1.0
		if topo.Mesh.Reliability != nil {
			reliability = *topo.Mesh.Reliability
		}
		created, err := n.Channel.MetricMesh(radius, reliability)
		if err != nil {
			return nil, err
		}
		logrus.Debugf("Metric mesh of radius %.2f created %d links", radius, created)
	}

	collector.SetTopology(len(n.order), len(n.Channel.Edges()))
	if len(n.Sources()) == 0 {
		logrus.Warn("Topology has no source: nothing will be emitted")
	}
	if len(n.Gateways()) == 0 {
		logrus.Warn("Topology has no gateway: no message can be delivered")
	}
	if cfg.SimulationTotalDuration == 0 && len(n.Sources()) > 0 {
		logrus.Warn("No horizon set and sources emit forever: the run ends only on cancellation")
	}
	return n, nil
}

func (n *Network) buildNode(spec NodeSpec) *node.Node {
	cfg := &n.Config
	deps := node.Deps{
		Sched:    n.Sim,
		Medium:   n.Channel,
		Alloc:    n.Alloc,
		Config:   cfg,
		RNG:      n.RNG.ForSubsystem(sim.SubsystemNode(int(spec.ID))),
		Recorder: n.Metrics,
	}
	switch spec.Role {
	case RoleSource:
		return node.NewSource(spec.ID, spec.X, spec.Y, cfg.SourceRecurrentDelay, deps, node.SourceHooks{
			OnSend: func(p *packet.Packet) {
				n.Metrics.ObserveEmission()
				n.Trace.RecordEmission(p.MessageID, p.SourceID, p.FirstEmissionTime)
			},
			OnAck: n.Trace.RecordSourceAck,
		})
	case RoleGateway:
		return node.NewGateway(spec.ID, spec.X, spec.Y, deps, func(a node.Arrival) {
			n.Metrics.ObserveArrival(a)
			n.Trace.RecordArrival(a.MessageID, a.ArrivalTime, a.HopCount)
		})
	default:
		return node.NewRelay(spec.ID, spec.X, spec.Y, deps)
	}
}

// Node returns the node with the given id.
func (n *Network) Node(id packet.NodeID) (*node.Node, bool) {
	nd, ok := n.nodes[id]
	return nd, ok
}

// Nodes returns every node in topology order.
func (n *Network) Nodes() []*node.Node {
	out := make([]*node.Node, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.nodes[id])
	}
	return out
}

func (n *Network) withRole(role node.Role) []*node.Node {
	var out []*node.Node
	for _, nd := range n.Nodes() {
		if nd.Role() == role {
			out = append(out, nd)
		}
	}
	return out
}

// Sources returns the source nodes.
func (n *Network) Sources() []*node.Node { return n.withRole(node.RoleSource) }

// Gateways returns the gateway nodes.
func (n *Network) Gateways() []*node.Node { return n.withRole(node.RoleGateway) }

// Run starts every source and drives the event loop until the horizon, an empty queue
// or ctx cancellation. A Network runs once.
func (n *Network) Run(ctx context.Context) (*Result, error) {
	if n.started {
		return nil, fmt.Errorf("network already ran")
	}
	n.started = true

	for _, src := range n.Sources() {
		src.Start(n.Topology.spec(src.ID()).Start)
	}
	logrus.Infof("Starting simulation: %d nodes, %d links, mode %s, horizon %.2f",
		len(n.order), len(n.Channel.Edges()), n.Config.NodesMode, n.Config.SimulationTotalDuration)
	n.Sim.Run(ctx)
	n.Metrics.SetSimulatedTime(n.Sim.Clock)

	res := &Result{
		Clock:          n.Sim.Clock,
		ExecutedEvents: n.Sim.ExecutedEvents,
		Summary:        trace.Summarize(n.Trace),
	}
	logrus.Infof("Delivered %d/%d messages (%.1f%%), mean delay %.3f, mean hops %.2f",
		res.Summary.Delivered, res.Summary.Emitted, 100*res.Summary.SuccessRate,
		res.Summary.MeanDelay, res.Summary.MeanHops)
	return res, ctx.Err()
}
