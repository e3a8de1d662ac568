package trace

import "github.com/piconetwork/lpwan-sim/sim/packet"

// TraceLevel controls the verbosity of lifecycle tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelPackets records one PacketRecord per emitted message.
	TraceLevelPackets TraceLevel = "packets"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:    true,
	TraceLevelPackets: true,
	"":                true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects packet lifecycle records during a simulation, in emission order.
type SimulationTrace struct {
	Config  TraceConfig
	Packets []PacketRecord

	index map[packet.MessageID]int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:  config,
		Packets: make([]PacketRecord, 0),
		index:   make(map[packet.MessageID]int),
	}
}

func (st *SimulationTrace) enabled() bool {
	return st != nil && st.Config.Level == TraceLevelPackets
}

// RecordEmission appends a record for a freshly emitted message.
func (st *SimulationTrace) RecordEmission(id packet.MessageID, source packet.NodeID, at float64) {
	if !st.enabled() {
		return
	}
	st.index[id] = len(st.Packets)
	st.Packets = append(st.Packets, PacketRecord{MessageID: id, SourceID: source, EmissionTime: at})
}

// RecordArrival notes the first gateway reception of a message. Later receptions, and
// messages never emitted through RecordEmission, are ignored.
func (st *SimulationTrace) RecordArrival(id packet.MessageID, at float64, hops int) {
	if !st.enabled() {
		return
	}
	i, ok := st.index[id]
	if !ok || st.Packets[i].AckTime != nil {
		return
	}
	st.Packets[i].AckTime = &at
	st.Packets[i].HopCount = &hops
}

// RecordSourceAck notes the first ACK heard back by the source.
func (st *SimulationTrace) RecordSourceAck(id packet.MessageID, at float64) {
	if !st.enabled() {
		return
	}
	i, ok := st.index[id]
	if !ok || st.Packets[i].SourceAckTime != nil {
		return
	}
	st.Packets[i].SourceAckTime = &at
}

// Record returns the lifecycle record of a message.
func (st *SimulationTrace) Record(id packet.MessageID) (PacketRecord, bool) {
	if st == nil {
		return PacketRecord{}, false
	}
	i, ok := st.index[id]
	if !ok {
		return PacketRecord{}, false
	}
	return st.Packets[i], true
}
