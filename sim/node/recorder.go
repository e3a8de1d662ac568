package node

import "github.com/piconetwork/lpwan-sim/sim/packet"

// DropReason names an expected, recoverable drop. Invariant violations are never drops.
type DropReason string

const (
	DropCapacity   DropReason = "capacity"
	DropPingPong   DropReason = "ping_pong"
	DropCollision  DropReason = "collision"
	DropEdgeLoss   DropReason = "edge_loss"
	DropSuppressed DropReason = "suppressed"
)

// TransmissionKind classifies a broadcast.
type TransmissionKind string

const (
	TransmitSource TransmissionKind = "source"
	TransmitRelay  TransmissionKind = "relay"
	TransmitAck    TransmissionKind = "ack"
)

// Recorder receives protocol observations, usually a metrics collector.
type Recorder interface {
	ObserveDrop(node packet.NodeID, reason DropReason)
	ObserveTransmission(node packet.NodeID, kind TransmissionKind)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) ObserveDrop(packet.NodeID, DropReason)               {}
func (NopRecorder) ObserveTransmission(packet.NodeID, TransmissionKind) {}
