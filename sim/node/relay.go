package node

import (
	"github.com/sirupsen/logrus"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// boundSlot returns the slot currently bound to message id, if any.
func (n *Node) boundSlot(id packet.MessageID) *Slot {
	for _, s := range n.slots {
		if s.Bound && s.MessageID == id {
			return s
		}
	}
	return nil
}

func (n *Node) freeSlot() *Slot {
	for _, s := range n.slots {
		if !s.Bound {
			return s
		}
	}
	return nil
}

// register finds or binds the slot handling p's message. A nil result means p was
// dropped: no free slot, or the message was handled recently.
func (n *Node) register(p *packet.Packet) *Slot {
	if s := n.boundSlot(p.MessageID); s != nil {
		return s
	}
	s := n.freeSlot()
	if s == nil {
		n.drop(p, DropCapacity)
		return nil
	}
	if n.cfg.DisallowMultipleRetransmissions && n.Remembers(p) {
		n.drop(p, DropPingPong)
		return nil
	}
	s.softSwitch(p)
	return s
}

// complete ends the slot's cycle and frees it. Done is not a distinct state.
func (n *Node) complete(s *Slot, p *packet.Packet) {
	if p != nil {
		n.remember(p)
	}
	s.release()
}

// expectSlot guards scheduled callbacks against slots that were released or rebound.
func (n *Node) expectSlot(s *Slot, id packet.MessageID, want State, what string) {
	if !s.Bound || s.MessageID != id {
		sim.Invariantf("node %d: %s fired for message %d against a freed slot", n.id, what, id)
	}
	if s.State != want {
		sim.Invariantf("node %d: %s fired in state %s for message %d", n.id, what, s.State, id)
	}
}

func (n *Node) relayReceive(p *packet.Packet) {
	s := n.register(p)
	if s == nil {
		return
	}
	switch s.State {
	case Idle:
		n.onIdle(s, p)
	case RetxPending:
		n.onRetxPending(s, p)
	case FollowupPending:
		n.onFollowupPending(s, p)
	default:
		sim.Invariantf("node %d: slot in unknown state %d", n.id, int(s.State))
	}
}

func (n *Node) onIdle(s *Slot, p *packet.Packet) {
	if p.IsAck() {
		// someone else is being acknowledged, so tighten our window
		s.stepReduce()
		if !n.cfg.RetransmitAcks {
			n.complete(s, p)
			return
		}
	}
	s.pending = p
	s.State = RetxPending
	delay := s.drawJitter(n.rng)
	mid := s.MessageID
	s.handle = n.sched.Schedule(delay, "node.transmit", func() { n.transmitSchedulable(s, mid) })
	n.log.WithField("message", int64(mid)).Debugf("[t=%.6f] retransmission in %.3f, window [%d, %d)", n.sched.Now(), delay, s.MinBucket, s.MaxBucket)
}

func (n *Node) onRetxPending(s *Slot, p *packet.Packet) {
	s.registerNeighbour(p.LastInPath)
	directAck := p.IsAck() && p.PacketID != s.PacketID
	boldSuppress := s.Mode == Bold && p.BeforeLastInPath == s.AntecessorID
	if !directAck && !boldSuppress {
		return
	}
	n.sched.Cancel(s.handle)
	if directAck {
		s.stepReduce()
	}
	s.setMode(s.Mode)
	n.drop(s.pending, DropSuppressed)
	n.complete(s, s.pending)
}

// transmitSchedulable fires when the jitter timer elapses.
func (n *Node) transmitSchedulable(s *Slot, mid packet.MessageID) {
	n.expectSlot(s, mid, RetxPending, "transmission")
	if n.rng.Float64() >= s.Probability {
		n.drop(s.pending, DropSuppressed)
		s.clearNeighbours()
		n.complete(s, s.pending)
		return
	}
	s.RetransmissionTime = n.sched.Now()
	s.Retransmitted = true
	n.broadcast(s.pending.Forward(n.id), TransmitRelay)
	s.State = FollowupPending
	s.handle = n.sched.Schedule(n.cfg.FollowupTimeout(), "node.followup_timeout", func() { n.followupTimeout(s, mid) })
}

func (n *Node) onFollowupPending(s *Slot, p *packet.Packet) {
	if p.BeforeLastInPath != n.id {
		s.registerNeighbour(p.LastInPath)
		return
	}
	if p.IsAck() && p.PacketID != s.PacketID {
		// acknowledged straight after our own transmission: we are next to a gateway
		s.halfReduceWithMinimize()
		n.sched.Cancel(s.handle)
		s.maybeRelease(-1, true)
		n.complete(s, s.pending)
		if n.cfg.RetransmitAcks {
			n.relayReceive(p)
		}
		return
	}
	s.registerNeighbour(p.LastInPath)
	observed := n.estimateDownstreamJitter(s, p)
	s.adapt(observed)
	n.sched.Cancel(s.handle)
	s.maybeRelease(observed, false)
	n.log.WithFields(logrus.Fields{"message": int64(s.MessageID), "observed": observed}).Debugf("[t=%.6f] follow-up from %d", n.sched.Now(), p.LastInPath)
	n.complete(s, s.pending)
}

func (n *Node) followupTimeout(s *Slot, mid packet.MessageID) {
	n.expectSlot(s, mid, FollowupPending, "follow-up timeout")
	s.stepIncrease()
	s.maybeEngageSuppression(true)
	n.log.WithField("message", int64(mid)).Debugf("[t=%.6f] no follow-up heard, window [%d, %d) mode %s", n.sched.Now(), s.MinBucket, s.MaxBucket, s.Mode)
	n.complete(s, s.pending)
}

// estimateDownstreamJitter derives how long the relay that forwarded our packet waited
// before doing so, from the round trip since our retransmission. Clocks are assumed
// synchronised.
func (n *Node) estimateDownstreamJitter(s *Slot, p *packet.Packet) float64 {
	delay, ok := n.medium.EdgeDelay(n.id, p.LastInPath)
	if !ok {
		delay, ok = n.medium.EdgeDelay(p.LastInPath, n.id)
	}
	if !ok {
		sim.Invariantf("node %d heard %d without a link between them", n.id, p.LastInPath)
	}
	return (n.sched.Now() - s.RetransmissionTime) - 2*delay
}
