package node

import (
	"github.com/sirupsen/logrus"

	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// Arrival describes the first reception of a message by a gateway.
type Arrival struct {
	MessageID    packet.MessageID
	SourceID     packet.NodeID
	GatewayID    packet.NodeID
	EmissionTime float64
	ArrivalTime  float64
	HopCount     int
}

// Delay is the source-to-gateway delay.
func (a Arrival) Delay() float64 { return a.ArrivalTime - a.EmissionTime }

type gatewayState struct {
	acked     map[packet.MessageID]struct{}
	onArrival func(Arrival)
}

// NewGateway creates a gateway. onArrival, when non-nil, is called once per distinct message.
func NewGateway(id packet.NodeID, x, y float64, d Deps, onArrival func(Arrival)) *Node {
	n := newNode(id, x, y, RoleGateway, d)
	n.gateway = &gatewayState{
		acked:     make(map[packet.MessageID]struct{}),
		onArrival: onArrival,
	}
	return n
}

// Acknowledged returns how many distinct messages the gateway acknowledged.
func (n *Node) Acknowledged() int {
	if n.gateway == nil {
		return 0
	}
	return len(n.gateway.acked)
}

func (n *Node) gatewayReceive(p *packet.Packet) {
	if p.IsAck() {
		n.log.WithField("message", int64(p.MessageID)).Debugf("[t=%.6f] ack ignored %s", n.sched.Now(), p)
		return
	}
	if _, done := n.gateway.acked[p.MessageID]; done {
		n.log.WithField("message", int64(p.MessageID)).Debugf("[t=%.6f] duplicate copy ignored", n.sched.Now())
		return
	}
	n.gateway.acked[p.MessageID] = struct{}{}

	now := n.sched.Now()
	a := Arrival{
		MessageID:    p.MessageID,
		SourceID:     p.SourceID,
		GatewayID:    n.id,
		EmissionTime: p.FirstEmissionTime,
		ArrivalTime:  now,
		HopCount:     p.HopCount(),
	}
	n.log.WithFields(logrus.Fields{
		"message": int64(a.MessageID),
		"source":  int(a.SourceID),
		"hops":    a.HopCount,
	}).Infof("[t=%.6f] source-to-gateway delay %.3f", now, a.Delay())
	if n.gateway.onArrival != nil {
		n.gateway.onArrival(a)
	}
	n.broadcast(packet.NewAck(n.alloc, n.id, now, p), TransmitAck)
}
