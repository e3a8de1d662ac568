package node

import (
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// SourceHooks are the callbacks a source reports to. Either may be nil.
type SourceHooks struct {
	OnSend func(p *packet.Packet)
	OnAck  func(acked packet.MessageID, at float64)
}

type sourceState struct {
	interval float64
	hooks    SourceHooks
	sent     int
	acks     int
}

// NewSource creates a source that emits a fresh message every interval once started.
func NewSource(id packet.NodeID, x, y float64, interval float64, d Deps, hooks SourceHooks) *Node {
	n := newNode(id, x, y, RoleSource, d)
	n.source = &sourceState{interval: interval, hooks: hooks}
	return n
}

// Start schedules the first emission after offset; later ones follow every interval.
func (n *Node) Start(offset float64) {
	n.sched.Schedule(offset, "source.emit", n.emit)
}

// Sent returns how many messages the source emitted.
func (n *Node) Sent() int {
	if n.source == nil {
		return 0
	}
	return n.source.sent
}

func (n *Node) emit() {
	p := packet.NewMessage(n.alloc, n.id, n.sched.Now())
	n.source.sent++
	if n.source.hooks.OnSend != nil {
		n.source.hooks.OnSend(p)
	}
	n.broadcast(p, TransmitSource)
	n.sched.Schedule(n.source.interval, "source.emit", n.emit)
}

// sourceReceive only takes note of acknowledgements; sources never relay.
func (n *Node) sourceReceive(p *packet.Packet) {
	if !p.IsAck() {
		return
	}
	n.source.acks++
	n.log.WithField("message", int64(*p.AckOf)).Debugf("[t=%.6f] received ack %s", n.sched.Now(), p)
	if n.source.hooks.OnAck != nil {
		n.source.hooks.OnAck(*p.AckOf, n.sched.Now())
	}
}
