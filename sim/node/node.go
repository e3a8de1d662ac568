// Package node implements the relay protocol run by every station of the network, and
// the Source and Gateway roles built on top of it.
//
// A Node receives packets through a collision gate (finite reception time), binds each
// message to one of a bounded number of slots, and runs the jitter/suppression state
// machine on that slot. All methods run on the simulation goroutine.
package node

import (
	"math/rand"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// Role selects what a node does with a fully received packet.
type Role int

const (
	RoleRelay Role = iota
	RoleSource
	RoleGateway
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleGateway:
		return "gateway"
	}
	return "relay"
}

// MarshalText lets snapshots carry role names.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// ReceptionState is the radio side of the collision model.
type ReceptionState int

const (
	Ready ReceptionState = iota
	Receiving
)

func (r ReceptionState) String() string {
	if r == Receiving {
		return "Receiving"
	}
	return "Ready"
}

// MarshalText lets snapshots carry reception state names.
func (r ReceptionState) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Medium is what a node needs from the channel: broadcasting and one-hop delay lookups.
type Medium interface {
	Deliver(sender packet.NodeID, p *packet.Packet)
	EdgeDelay(a, b packet.NodeID) (float64, bool)
}

// rememberKey identifies an entry of the recently-handled memory.
type rememberKey struct {
	message packet.MessageID
	ack     bool
}

// keyOf maps p to its memory entry. An ACK shares its message's entry, so a relay that
// handled a message drops the ACK as ping-pong, unless ACKs are relayed in their own right.
func (n *Node) keyOf(p *packet.Packet) rememberKey {
	return rememberKey{message: p.MessageID, ack: p.IsAck() && n.cfg.RetransmitAcks}
}

// Deps bundles the collaborators shared by every node of one simulation.
type Deps struct {
	Sched    sim.Scheduler
	Medium   Medium
	Alloc    *packet.IDAllocator
	Config   *sim.Config
	RNG      *rand.Rand
	Recorder Recorder
}

// Node is one station. Relays, sources and gateways share the reception gate.
type Node struct {
	id   packet.NodeID
	x, y float64
	role Role

	sched  sim.Scheduler
	medium Medium
	alloc  *packet.IDAllocator
	cfg    *sim.Config
	rng    *rand.Rand
	rec    Recorder
	log    *logrus.Entry

	slots      []*Slot
	remembered *ttlcache.Cache[rememberKey, struct{}]

	reception       ReceptionState
	receiving       *packet.Packet
	receptionHandle sim.EventHandle

	gateway *gatewayState
	source  *sourceState
}

func newNode(id packet.NodeID, x, y float64, role Role, d Deps) *Node {
	rec := d.Recorder
	if rec == nil {
		rec = NopRecorder{}
	}
	n := &Node{
		id:     id,
		x:      x,
		y:      y,
		role:   role,
		sched:  d.Sched,
		medium: d.Medium,
		alloc:  d.Alloc,
		cfg:    d.Config,
		rng:    d.RNG,
		rec:    rec,
		log:    logrus.WithFields(logrus.Fields{"node": int(id), "role": role.String()}),
		remembered: ttlcache.New[rememberKey, struct{}](
			ttlcache.WithCapacity[rememberKey, struct{}](uint64(d.Config.PacketsRememberCapacity)),
			ttlcache.WithDisableTouchOnHit[rememberKey, struct{}](),
		),
	}
	n.slots = make([]*Slot, d.Config.PacketsStateCapacity)
	for i := range n.slots {
		n.slots[i] = newSlot(d.Config)
	}
	return n
}

// NewRelay creates a relay node at (x, y).
func NewRelay(id packet.NodeID, x, y float64, d Deps) *Node {
	return newNode(id, x, y, RoleRelay, d)
}

// ID returns the node id.
func (n *Node) ID() packet.NodeID { return n.id }

// Position returns the node coordinates.
func (n *Node) Position() (float64, float64) { return n.x, n.y }

// Role returns the node role.
func (n *Node) Role() Role { return n.role }

// Reception returns the current reception state.
func (n *Node) Reception() ReceptionState { return n.reception }

// Slots exposes the protocol slots for inspection.
func (n *Node) Slots() []*Slot { return n.slots }

// OccupiedSlots counts slots currently bound to a message.
func (n *Node) OccupiedSlots() int {
	count := 0
	for _, s := range n.slots {
		if s.Bound {
			count++
		}
	}
	return count
}

// Remembers reports whether p's message is in the recently-handled memory.
func (n *Node) Remembers(p *packet.Packet) bool {
	return n.remembered.Has(n.keyOf(p))
}

// Receive is the channel entry point. Processing is deferred by the reception duration;
// a second arrival during that window destroys both packets and re-arms the window.
func (n *Node) Receive(p *packet.Packet) {
	if n.reception == Receiving {
		n.sched.Cancel(n.receptionHandle)
		if n.receiving != nil {
			n.drop(n.receiving, DropCollision)
			n.receiving = nil
		}
		n.drop(p, DropCollision)
		n.receptionHandle = n.sched.Schedule(n.cfg.NodeReceptionDuration, "node.reception", n.receptionComplete)
		return
	}
	n.reception = Receiving
	n.receiving = p
	n.receptionHandle = n.sched.Schedule(n.cfg.NodeReceptionDuration, "node.reception", n.receptionComplete)
}

func (n *Node) receptionComplete() {
	p := n.receiving
	n.reception = Ready
	n.receiving = nil
	n.receptionHandle = sim.EventHandle{}
	if p != nil {
		n.process(p)
	}
}

func (n *Node) process(p *packet.Packet) {
	switch n.role {
	case RoleSource:
		n.sourceReceive(p)
	case RoleGateway:
		n.gatewayReceive(p)
	default:
		if isFlooding(n.cfg.NodesMode) {
			n.floodReceive(p)
			return
		}
		n.relayReceive(p)
	}
}

// broadcast hands p to the channel and counts the transmission.
func (n *Node) broadcast(p *packet.Packet, kind TransmissionKind) {
	n.log.WithFields(logrus.Fields{"packet": p.String(), "kind": string(kind)}).Debugf("[t=%.6f] broadcasting", n.sched.Now())
	n.rec.ObserveTransmission(n.id, kind)
	n.medium.Deliver(n.id, p)
}

func (n *Node) drop(p *packet.Packet, reason DropReason) {
	n.log.WithFields(logrus.Fields{"reason": string(reason), "message": int64(p.MessageID)}).Debugf("[t=%.6f] dropped %s", n.sched.Now(), p)
	n.rec.ObserveDrop(n.id, reason)
}

func (n *Node) remember(p *packet.Packet) {
	n.remembered.Set(n.keyOf(p), struct{}{}, ttlcache.NoTTL)
}
