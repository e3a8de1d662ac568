package node

import (
	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

func isFlooding(mode string) bool {
	return mode == sim.ModeFlooding || mode == sim.ModeFastFlooding || mode == sim.ModeSlowFlooding
}

// floodDelay is the wait before a flooding relay retransmits.
func (n *Node) floodDelay() float64 {
	c := n.cfg
	switch c.NodesMode {
	case sim.ModeFastFlooding:
		return c.JitterMinValue + n.rng.Float64()*c.JitterIntervalDuration()
	case sim.ModeSlowFlooding:
		return c.JitterMinValue + n.rng.Float64()*(c.JitterMaxValue-c.JitterMinValue)
	}
	return 0
}

// floodReceive retransmits every new message once and frees the slot. It never listens
// for follow-ups and never adapts its jitter.
func (n *Node) floodReceive(p *packet.Packet) {
	s := n.register(p)
	if s == nil {
		return
	}
	if s.State != Idle {
		return
	}
	if p.IsAck() && !n.cfg.RetransmitAcks {
		n.complete(s, p)
		return
	}
	s.pending = p
	s.State = RetxPending
	mid := s.MessageID
	s.handle = n.sched.Schedule(n.floodDelay(), "node.flood", func() { n.floodTransmit(s, mid) })
}

func (n *Node) floodTransmit(s *Slot, mid packet.MessageID) {
	n.expectSlot(s, mid, RetxPending, "flood transmission")
	s.RetransmissionTime = n.sched.Now()
	s.Retransmitted = true
	n.broadcast(s.pending.Forward(n.id), TransmitRelay)
	n.complete(s, s.pending)
}
