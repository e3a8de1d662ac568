// Package channel models the shared radio medium as a directed graph of lossy,
// delayed point-to-point links.
package channel

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// Receiver is the capability the channel needs from a registered node.
type Receiver interface {
	ID() packet.NodeID
	Receive(p *packet.Packet)
}

// Positioned is implemented by receivers that have planar coordinates.
type Positioned interface {
	Position() (x, y float64)
}

// Recorder observes deliveries and per-edge losses.
type Recorder interface {
	ObserveEdgeLoss(from, to packet.NodeID)
	ObserveEdgeDelivery(from, to packet.NodeID)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEdgeLoss(from, to packet.NodeID)     {}
func (nopRecorder) ObserveEdgeDelivery(from, to packet.NodeID) {}

// Edge is one directed link out of a node.
type Edge struct {
	To          packet.NodeID
	Distance    float64
	Reliability float64 // per-attempt success probability
}

// Link is a directed edge together with its origin, as exposed to snapshots.
type Link struct {
	From        packet.NodeID `yaml:"from"`
	To          packet.NodeID `yaml:"to"`
	Distance    float64       `yaml:"distance"`
	Reliability float64       `yaml:"reliability"`
}

// Channel owns the node registry and the adjacency lists.
type Channel struct {
	DelayPerUnit float64

	sched     sim.Scheduler
	rng       *rand.Rand
	recorder  Recorder
	nodes     map[packet.NodeID]Receiver
	order     []packet.NodeID
	adjacency map[packet.NodeID][]Edge
}

// New creates an empty channel. rng drives the per-edge delivery trials.
func New(sched sim.Scheduler, rng *rand.Rand, delayPerUnit float64) *Channel {
	return &Channel{
		DelayPerUnit: delayPerUnit,
		sched:        sched,
		rng:          rng,
		recorder:     nopRecorder{},
		nodes:        make(map[packet.NodeID]Receiver),
		adjacency:    make(map[packet.NodeID][]Edge),
	}
}

// SetRecorder installs an observer for deliveries and losses.
func (c *Channel) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	c.recorder = r
}

// Register adds a node with an empty adjacency list.
func (c *Channel) Register(n Receiver) error {
	id := n.ID()
	if id == packet.NoNode {
		return fmt.Errorf("node id %d is reserved", id)
	}
	if _, exists := c.nodes[id]; exists {
		return fmt.Errorf("node %d already registered", id)
	}
	c.nodes[id] = n
	c.order = append(c.order, id)
	c.adjacency[id] = nil
	return nil
}

// Node returns the registered receiver for id.
func (c *Channel) Node(id packet.NodeID) (Receiver, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// NodeIDs returns registered ids in registration order.
func (c *Channel) NodeIDs() []packet.NodeID {
	return slices.Clone(c.order)
}

// Link connects a to b. With bidirectional set, an independent b -> a edge is added too.
func (c *Channel) Link(a, b packet.NodeID, distance, reliability float64, bidirectional bool) error {
	if _, ok := c.nodes[a]; !ok {
		return fmt.Errorf("link %d -> %d: node %d not registered", a, b, a)
	}
	if _, ok := c.nodes[b]; !ok {
		return fmt.Errorf("link %d -> %d: node %d not registered", a, b, b)
	}
	if a == b {
		return fmt.Errorf("link %d -> %d: self loops are not allowed", a, b)
	}
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return fmt.Errorf("link %d -> %d: distance must be finite and non-negative, got %f", a, b, distance)
	}
	if reliability < 0 || reliability > 1 || math.IsNaN(reliability) {
		return fmt.Errorf("link %d -> %d: reliability must be in [0, 1], got %f", a, b, reliability)
	}
	c.adjacency[a] = append(c.adjacency[a], Edge{To: b, Distance: distance, Reliability: reliability})
	if bidirectional {
		c.adjacency[b] = append(c.adjacency[b], Edge{To: a, Distance: distance, Reliability: reliability})
	}
	return nil
}

// SetReliability overwrites the reliability of an existing a -> b edge (and b -> a).
func (c *Channel) SetReliability(a, b packet.NodeID, reliability float64, bidirectional bool) error {
	if reliability < 0 || reliability > 1 || math.IsNaN(reliability) {
		return fmt.Errorf("reliability must be in [0, 1], got %f", reliability)
	}
	i := c.edgeIndex(a, b)
	if i < 0 {
		return fmt.Errorf("no link %d -> %d", a, b)
	}
	c.adjacency[a][i].Reliability = reliability
	if bidirectional {
		return c.SetReliability(b, a, reliability, false)
	}
	return nil
}

func (c *Channel) edgeIndex(a, b packet.NodeID) int {
	return slices.IndexFunc(c.adjacency[a], func(e Edge) bool { return e.To == b })
}

// HasLink reports whether a directed a -> b edge exists.
func (c *Channel) HasLink(a, b packet.NodeID) bool {
	return c.edgeIndex(a, b) >= 0
}

// Neighbors returns the deduplicated, sorted ids reachable from id in one hop.
func (c *Channel) Neighbors(id packet.NodeID) []packet.NodeID {
	var out []packet.NodeID
	for _, e := range c.adjacency[id] {
		out = append(out, e.To)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// EdgeDelay returns the propagation delay of the a -> b edge.
func (c *Channel) EdgeDelay(a, b packet.NodeID) (float64, bool) {
	i := c.edgeIndex(a, b)
	if i < 0 {
		return 0, false
	}
	return c.adjacency[a][i].Distance * c.DelayPerUnit, true
}

// EdgeReliability returns the per-attempt delivery probability of the a -> b edge.
func (c *Channel) EdgeReliability(a, b packet.NodeID) (float64, bool) {
	i := c.edgeIndex(a, b)
	if i < 0 {
		return 0, false
	}
	return c.adjacency[a][i].Reliability, true
}

// Edges lists every directed edge, grouped by origin in registration order.
func (c *Channel) Edges() []Link {
	var links []Link
	for _, from := range c.order {
		for _, e := range c.adjacency[from] {
			links = append(links, Link{From: from, To: e.To, Distance: e.Distance, Reliability: e.Reliability})
		}
	}
	return links
}

// MetricMesh links every pair of positioned nodes closer than radius, bidirectionally,
// using their euclidean distance. Pairs already linked are left alone.
func (c *Channel) MetricMesh(radius, reliability float64) (int, error) {
	created := 0
	for i, a := range c.order {
		pa, ok := c.nodes[a].(Positioned)
		if !ok {
			continue
		}
		ax, ay := pa.Position()
		for _, b := range c.order[i+1:] {
			pb, ok := c.nodes[b].(Positioned)
			if !ok || c.HasLink(a, b) || c.HasLink(b, a) {
				continue
			}
			bx, by := pb.Position()
			d := math.Hypot(ax-bx, ay-by)
			if d > radius {
				continue
			}
			if err := c.Link(a, b, d, reliability, true); err != nil {
				return created, err
			}
			created++
			logrus.Debugf("Created link (%d, %.2f, %.2f) <-> (%d, %.2f, %.2f), reliability %.2f", a, ax, ay, b, bx, by, reliability)
		}
	}
	return created, nil
}

// Deliver broadcasts p from sender: each outgoing edge independently succeeds with its
// reliability, and successful copies arrive after distance * DelayPerUnit.
func (c *Channel) Deliver(sender packet.NodeID, p *packet.Packet) {
	if _, ok := c.nodes[sender]; !ok {
		sim.Invariantf("broadcast from unregistered node %d", sender)
	}
	for _, e := range c.adjacency[sender] {
		if c.rng.Float64() >= e.Reliability {
			c.recorder.ObserveEdgeLoss(sender, e.To)
			continue
		}
		to := e.To
		cp := p.Received(to)
		c.sched.Schedule(e.Distance*c.DelayPerUnit, "channel.arrival", func() {
			c.dispatch(sender, to, cp)
		})
	}
}

func (c *Channel) dispatch(from, to packet.NodeID, p *packet.Packet) {
	n, ok := c.nodes[to]
	if !ok {
		sim.Invariantf("delivery to unregistered node %d", to)
	}
	c.recorder.ObserveEdgeDelivery(from, to)
	n.Receive(p)
}
