package network

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// Node roles accepted in a topology file.
const (
	RoleRelay   = "relay"
	RoleSource  = "source"
	RoleGateway = "gateway"
)

var validRoles = map[string]bool{
	RoleRelay:   true,
	RoleSource:  true,
	RoleGateway: true,
}

// NodeSpec places one node.
type NodeSpec struct {
	ID   packet.NodeID `yaml:"id"`
	Role string        `yaml:"role"`
	X    float64       `yaml:"x"`
	Y    float64       `yaml:"y"`
	// Start delays a source's first emission.
	Start float64 `yaml:"start,omitempty"`
}

// LinkSpec declares a link. Distance defaults to the euclidean distance between the
// endpoints, reliability to 1 and bidirectional to true.
type LinkSpec struct {
	From          packet.NodeID `yaml:"from"`
	To            packet.NodeID `yaml:"to"`
	Distance      *float64      `yaml:"distance,omitempty"`
	Reliability   *float64      `yaml:"reliability,omitempty"`
	Bidirectional *bool         `yaml:"bidirectional,omitempty"`
}

// MeshSpec asks for every pair of nodes within Radius to be linked. A zero radius
// uses the configured hearing radius.
type MeshSpec struct {
	Radius      float64  `yaml:"radius,omitempty"`
	Reliability *float64 `yaml:"reliability,omitempty"`
}

// Topology is the node layout and adjacency fed to the channel before a run.
type Topology struct {
	Nodes []NodeSpec `yaml:"nodes"`
	Links []LinkSpec `yaml:"links,omitempty"`
	Mesh  *MeshSpec  `yaml:"mesh,omitempty"`
}

// LoadTopology reads a YAML topology file, rejecting unknown keys.
func LoadTopology(path string) (Topology, error) {
	var topo Topology
	data, err := os.ReadFile(path)
	if err != nil {
		return topo, fmt.Errorf("reading topology: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&topo); err != nil {
		return topo, fmt.Errorf("parsing topology: %w", err)
	}
	return topo, nil
}

// LineTopology builds source - relays - gateway on the x axis, spacing apart, with
// fully reliable bidirectional links. The source is node 1 and the gateway is last.
func LineTopology(relays int, spacing float64) Topology {
	var topo Topology
	total := relays + 2
	for i := 1; i <= total; i++ {
		role := RoleRelay
		switch i {
		case 1:
			role = RoleSource
		case total:
			role = RoleGateway
		}
		topo.Nodes = append(topo.Nodes, NodeSpec{ID: packet.NodeID(i), Role: role, X: float64(i-1) * spacing})
	}
	for i := 1; i < total; i++ {
		topo.Links = append(topo.Links, LinkSpec{From: packet.NodeID(i), To: packet.NodeID(i + 1)})
	}
	return topo
}

// Validate checks roles, ids and link endpoints before anything is built.
func (t Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("topology has no nodes")
	}
	seen := make(map[packet.NodeID]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID <= packet.NoNode {
			return fmt.Errorf("node id must be positive, got %d", n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
		if !validRoles[n.Role] {
			return fmt.Errorf("node %d: unknown role %q", n.ID, n.Role)
		}
		if n.Start < 0 {
			return fmt.Errorf("node %d: start must be non-negative, got %f", n.ID, n.Start)
		}
	}
	for _, l := range t.Links {
		if !seen[l.From] || !seen[l.To] {
			return fmt.Errorf("link %d -> %d references an unknown node", l.From, l.To)
		}
		if l.Reliability != nil && (*l.Reliability < 0 || *l.Reliability > 1) {
			return fmt.Errorf("link %d -> %d: reliability must be in [0, 1], got %f", l.From, l.To, *l.Reliability)
		}
		if l.Distance != nil && *l.Distance < 0 {
			return fmt.Errorf("link %d -> %d: distance must be non-negative, got %f", l.From, l.To, *l.Distance)
		}
	}
	if t.Mesh != nil {
		if t.Mesh.Radius < 0 {
			return fmt.Errorf("mesh radius must be non-negative, got %f", t.Mesh.Radius)
		}
		if r := t.Mesh.Reliability; r != nil && (*r < 0 || *r > 1) {
			return fmt.Errorf("mesh reliability must be in [0, 1], got %f", *r)
		}
	}
	return nil
}

func (t Topology) spec(id packet.NodeID) NodeSpec {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n
		}
	}
	return NodeSpec{}
}

// resolve fills the link defaults.
func (t Topology) resolve(l LinkSpec) (distance, reliability float64, bidirectional bool) {
	a, b := t.spec(l.From), t.spec(l.To)
	distance = math.Hypot(a.X-b.X, a.Y-b.Y)
	if l.Distance != nil {
		distance = *l.Distance
	}
	reliability = 1
	if l.Reliability != nil {
		reliability = *l.Reliability
	}
	bidirectional = true
	if l.Bidirectional != nil {
		bidirectional = *l.Bidirectional
	}
	return distance, reliability, bidirectional
}
