// Package trace records the lifecycle of every message of a run and summarizes it.
// This package depends only on sim/packet and stores pure data types.
package trace

import "github.com/piconetwork/lpwan-sim/sim/packet"

// PacketRecord captures one message from emission to its first gateway reception.
// AckTime and HopCount stay nil when no gateway ever received the message.
type PacketRecord struct {
	MessageID    packet.MessageID `yaml:"message_id"`
	SourceID     packet.NodeID    `yaml:"source_id"`
	EmissionTime float64          `yaml:"emission_time"`
	AckTime      *float64         `yaml:"ack_time,omitempty"`
	HopCount     *int             `yaml:"hop_count,omitempty"`
	// SourceAckTime is when the source first heard an ACK for the message.
	SourceAckTime *float64 `yaml:"source_ack_time,omitempty"`
}

// Delivered reports whether a gateway received the message.
func (r PacketRecord) Delivered() bool {
	return r.AckTime != nil
}

// Delay is the source-to-gateway delay, or zero if undelivered.
func (r PacketRecord) Delay() float64 {
	if r.AckTime == nil {
		return 0
	}
	return *r.AckTime - r.EmissionTime
}
