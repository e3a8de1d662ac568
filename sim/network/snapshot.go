package network

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/channel"
	"github.com/piconetwork/lpwan-sim/sim/packet"
	"github.com/piconetwork/lpwan-sim/sim/trace"
)

// Snapshot is the post-run state handed to offline analysis. The layout is not a
// stable format.
type Snapshot struct {
	Parameters sim.Config           `yaml:"parameters"`
	Clock      float64              `yaml:"clock"`
	Events     int                  `yaml:"events"`
	Nodes      []NodeSnapshot       `yaml:"nodes"`
	Links      []channel.Link       `yaml:"links"`
	Packets    []trace.PacketRecord `yaml:"packets,omitempty"`
}

// NodeSnapshot is one node's final state.
type NodeSnapshot struct {
	ID           packet.NodeID  `yaml:"id"`
	Role         string         `yaml:"role"`
	X            float64        `yaml:"x"`
	Y            float64        `yaml:"y"`
	Reception    string         `yaml:"reception"`
	Slots        []SlotSnapshot `yaml:"slots,omitempty"`
	Sent         int            `yaml:"sent,omitempty"`
	Acknowledged int            `yaml:"acknowledged,omitempty"`
}

// SlotSnapshot is one slot's final jitter and suppression state.
type SlotSnapshot struct {
	Bound              bool             `yaml:"bound"`
	MessageID          packet.MessageID `yaml:"message_id"`
	State              string           `yaml:"state"`
	MinBucket          int              `yaml:"min_bucket"`
	MaxBucket          int              `yaml:"max_bucket"`
	MinJitter          float64          `yaml:"min_jitter"`
	MaxJitter          float64          `yaml:"max_jitter"`
	Mode               string           `yaml:"mode"`
	Probability        float64          `yaml:"probability"`
	Neighbours         []packet.NodeID  `yaml:"neighbours,omitempty"`
	Retransmitted      bool             `yaml:"retransmitted"`
	RetransmissionTime float64          `yaml:"retransmission_time"`
}

// Snapshot captures parameters, positions, adjacency, slot state and packet records.
func (n *Network) Snapshot() Snapshot {
	snap := Snapshot{
		Parameters: n.Config,
		Clock:      n.Sim.Clock,
		Events:     n.Sim.ExecutedEvents,
		Links:      n.Channel.Edges(),
		Packets:    n.Trace.Packets,
	}
	for _, nd := range n.Nodes() {
		x, y := nd.Position()
		ns := NodeSnapshot{
			ID:           nd.ID(),
			Role:         nd.Role().String(),
			X:            x,
			Y:            y,
			Reception:    nd.Reception().String(),
			Sent:         nd.Sent(),
			Acknowledged: nd.Acknowledged(),
		}
		for _, s := range nd.Slots() {
			neighbours := make([]packet.NodeID, 0, len(s.Neighbours))
			for id := range s.Neighbours {
				neighbours = append(neighbours, id)
			}
			slices.Sort(neighbours)
			ns.Slots = append(ns.Slots, SlotSnapshot{
				Bound:              s.Bound,
				MessageID:          s.MessageID,
				State:              s.State.String(),
				MinBucket:          s.MinBucket,
				MaxBucket:          s.MaxBucket,
				MinJitter:          s.MinJitter(),
				MaxJitter:          s.MaxJitter(),
				Mode:               s.Mode.String(),
				Probability:        s.Probability,
				Neighbours:         neighbours,
				Retransmitted:      s.Retransmitted,
				RetransmissionTime: s.RetransmissionTime,
			})
		}
		snap.Nodes = append(snap.Nodes, ns)
	}
	return snap
}

// WriteSnapshot marshals the snapshot as YAML to path.
func (n *Network) WriteSnapshot(path string) error {
	data, err := yaml.Marshal(n.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parsing snapshot: %w", err)
	}
	return snap, nil
}
