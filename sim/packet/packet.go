// Package packet defines the protocol envelope exchanged between nodes.
// This package has no dependencies on the rest of sim/: it holds pure data types.
package packet

import (
	"fmt"
	"slices"
)

// NodeID identifies a node in the network. Zero means "nobody".
type NodeID int

// NoNode marks an unset path entry.
const NoNode NodeID = 0

// PacketID identifies one transmission instance.
type PacketID int64

// MessageID groups a message and its acknowledgement under one logical exchange.
type MessageID int64

// IDAllocator hands out packet ids for one simulation run.
// Ids start at 1 and increase monotonically.
type IDAllocator struct {
	next PacketID
}

// NewIDAllocator returns an allocator whose first id is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: 1}
}

// Next returns a fresh packet id.
func (a *IDAllocator) Next() PacketID {
	id := a.next
	a.next++
	return id
}

// Packet is the routing envelope. Values are treated as immutable once handed to the
// channel: Forward and Clone return independent copies.
type Packet struct {
	PacketID          PacketID
	MessageID         MessageID
	SourceID          NodeID
	FirstEmissionTime float64
	LastInPath        NodeID
	BeforeLastInPath  NodeID
	// AckOf is the acknowledged message when this packet is an ACK.
	AckOf *MessageID
	// Path lists every node the packet went through, diagnostic only.
	Path []NodeID
}

// NewMessage builds a fresh message emitted by source at time now.
// Its MessageID equals its own PacketID.
func NewMessage(alloc *IDAllocator, source NodeID, now float64) *Packet {
	id := alloc.Next()
	return &Packet{
		PacketID:          id,
		MessageID:         MessageID(id),
		SourceID:          source,
		FirstEmissionTime: now,
		LastInPath:        source,
		BeforeLastInPath:  NoNode,
		Path:              []NodeID{source},
	}
}

// NewAck builds the acknowledgement of acked, emitted by gateway at time now.
// The ACK gets a fresh PacketID while its MessageID is the acknowledged PacketID.
func NewAck(alloc *IDAllocator, gateway NodeID, now float64, acked *Packet) *Packet {
	mid := MessageID(acked.PacketID)
	return &Packet{
		PacketID:          alloc.Next(),
		MessageID:         mid,
		SourceID:          gateway,
		FirstEmissionTime: now,
		LastInPath:        gateway,
		BeforeLastInPath:  acked.LastInPath,
		AckOf:             &mid,
		Path:              []NodeID{gateway},
	}
}

// IsAck reports whether the packet acknowledges a message.
func (p *Packet) IsAck() bool {
	return p.AckOf != nil
}

// Clone returns a deep copy.
func (p *Packet) Clone() *Packet {
	cp := *p
	cp.Path = slices.Clone(p.Path)
	if p.AckOf != nil {
		ack := *p.AckOf
		cp.AckOf = &ack
	}
	return &cp
}

// Forward returns the copy that node by retransmits. The receiver is untouched.
func (p *Packet) Forward(by NodeID) *Packet {
	cp := p.Clone()
	cp.BeforeLastInPath = p.LastInPath
	cp.LastInPath = by
	return cp
}

// Received returns the copy delivered to node to, with to appended to the path.
func (p *Packet) Received(to NodeID) *Packet {
	cp := p.Clone()
	cp.Path = append(cp.Path, to)
	return cp
}

// HopCount is the number of relays between the emitter and the current holder.
func (p *Packet) HopCount() int {
	return max(len(p.Path)-2, 0)
}

func (p *Packet) String() string {
	kind := "msg"
	if p.IsAck() {
		kind = "ack"
	}
	return fmt.Sprintf("<%s %d/m%d src=%d last=%d before=%d path=%v>",
		kind, p.PacketID, p.MessageID, p.SourceID, p.LastInPath, p.BeforeLastInPath, p.Path)
}
