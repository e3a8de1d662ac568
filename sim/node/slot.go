package node

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// State is the per-slot protocol state. A completed cycle returns straight to Idle.
type State int

const (
	Idle State = iota
	RetxPending
	FollowupPending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case RetxPending:
		return "RetxPending"
	case FollowupPending:
		return "FollowupPending"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText lets snapshots carry state names.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SuppressionMode controls the probability that a relay actually retransmits once its
// jitter timer expires.
type SuppressionMode int

const (
	NeverEngaged SuppressionMode = iota
	Regular
	Conservative
	Aggressive
	Bold
)

func (m SuppressionMode) String() string {
	switch m {
	case NeverEngaged:
		return "NeverEngaged"
	case Regular:
		return "Regular"
	case Conservative:
		return "Conservative"
	case Aggressive:
		return "Aggressive"
	case Bold:
		return "Bold"
	}
	return fmt.Sprintf("SuppressionMode(%d)", int(m))
}

// MarshalText lets snapshots carry mode names.
func (m SuppressionMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// SwitchModeFor returns the suppression mode a relay falls into when its jitter window
// saturates, for the configured nodes mode. Flooding modes never suppress.
func SwitchModeFor(nodesMode string) SuppressionMode {
	switch nodesMode {
	case sim.ModeConservative:
		return Conservative
	case sim.ModeAggressive:
		return Aggressive
	case sim.ModeBold:
		return Bold
	default:
		return Regular
	}
}

// Slot is the jitter and suppression state a node keeps for one in-flight message.
// Slots are allocated once and soft-switched between messages: bucket range, mode and
// overheard neighbours survive from one occupant to the next.
type Slot struct {
	MessageID    packet.MessageID
	PacketID     packet.PacketID
	SourceID     packet.NodeID
	AntecessorID packet.NodeID
	Bound        bool

	State State

	// [MinBucket, MaxBucket) over cfg.JitterIntervals buckets.
	MinBucket int
	MaxBucket int

	Mode        SuppressionMode
	Probability float64
	Neighbours  map[packet.NodeID]struct{}

	RetransmissionTime float64
	Retransmitted      bool

	pending *packet.Packet
	handle  sim.EventHandle

	cfg        *sim.Config
	switchMode SuppressionMode
}

func newSlot(cfg *sim.Config) *Slot {
	s := &Slot{
		cfg:         cfg,
		switchMode:  SwitchModeFor(cfg.NodesMode),
		Mode:        NeverEngaged,
		Probability: 1.0,
		Neighbours:  make(map[packet.NodeID]struct{}),
	}
	s.resetJitter()
	return s
}

// softSwitch binds the slot to a new message, keeping jitter and suppression state.
func (s *Slot) softSwitch(p *packet.Packet) {
	s.MessageID = p.MessageID
	s.PacketID = p.PacketID
	s.SourceID = p.SourceID
	s.AntecessorID = p.LastInPath
	s.Bound = true
	s.handle = sim.EventHandle{}
	s.pending = nil
	s.Retransmitted = false
	s.RetransmissionTime = 0
	if s.Mode == NeverEngaged {
		s.setMode(Regular)
	}
}

// release frees the slot. The state returns to Idle; jitter and suppression survive.
func (s *Slot) release() {
	s.Bound = false
	s.State = Idle
	s.handle = sim.EventHandle{}
	s.pending = nil
}

func (s *Slot) checkBuckets() {
	n := s.cfg.JitterIntervals
	if s.MinBucket < 0 || s.MinBucket >= s.MaxBucket || s.MaxBucket > n {
		sim.Invariantf("jitter buckets [%d, %d) outside 0..%d", s.MinBucket, s.MaxBucket, n)
	}
}

func (s *Slot) bucketValue(b int) float64 {
	c := s.cfg
	return float64(b)/float64(c.JitterIntervals)*(c.JitterMaxValue-c.JitterMinValue) + c.JitterMinValue
}

// MinJitter is the lower bound of the current jitter window, in time units.
func (s *Slot) MinJitter() float64 { return s.bucketValue(s.MinBucket) }

// MaxJitter is the upper bound of the current jitter window, in time units.
func (s *Slot) MaxJitter() float64 { return s.bucketValue(s.MaxBucket) }

// AverageJitter is the centre of the current jitter window.
func (s *Slot) AverageJitter() float64 { return (s.MinJitter() + s.MaxJitter()) / 2 }

// drawJitter picks a delay uniformly in the current window.
func (s *Slot) drawJitter(rng *rand.Rand) float64 {
	lo, hi := s.MinJitter(), s.MaxJitter()
	return lo + rng.Float64()*(hi-lo)
}

func (s *Slot) clipJitter(j float64) float64 {
	return max(s.cfg.JitterMinValue, min(s.cfg.JitterMaxValue, j))
}

func (s *Slot) resetJitter() {
	s.MinBucket = 0
	s.MaxBucket = s.cfg.JitterIntervals
}

// setIntervalAround narrows the window to the bucket containing j.
func (s *Slot) setIntervalAround(j float64) {
	n := s.cfg.JitterIntervals
	pos := (s.clipJitter(j) - s.cfg.JitterMinValue) / s.cfg.JitterIntervalDuration()
	lo, hi := int(math.Floor(pos)), int(math.Ceil(pos))
	if hi == lo {
		hi = lo + 1
	}
	if hi > n {
		hi = n
		lo = n - 1
	}
	s.MinBucket, s.MaxBucket = lo, hi
	s.checkBuckets()
	s.maybeEngageSuppression(false)
}

func (s *Slot) stepReduce() {
	s.MinBucket = max(0, s.MinBucket-1)
	s.MaxBucket = max(s.MinBucket+1, s.MaxBucket-1)
	s.checkBuckets()
}

func (s *Slot) stepIncrease() {
	s.MaxBucket = min(s.MaxBucket+1, s.cfg.JitterIntervals)
	s.MinBucket = min(s.MinBucket+1, s.MaxBucket-1)
	s.checkBuckets()
	s.maybeEngageSuppression(false)
}

func (s *Slot) halfReduceWithMinimize() {
	s.setIntervalAround(s.AverageJitter() / 2)
}

// adapt blends an observed downstream jitter into the window centre.
func (s *Slot) adapt(observed float64) {
	a := s.cfg.AdaptationFactor
	s.setIntervalAround((1-a)*s.AverageJitter() + a*observed)
}

func (s *Slot) registerNeighbour(id packet.NodeID) {
	if _, ok := s.Neighbours[id]; ok {
		return
	}
	if len(s.Neighbours) >= s.cfg.MaxNeighboursStorable {
		return
	}
	s.Neighbours[id] = struct{}{}
}

func (s *Slot) clearNeighbours() {
	clear(s.Neighbours)
}

// setMode selects a suppression mode and derives its forwarding probability.
func (s *Slot) setMode(m SuppressionMode) {
	switch m {
	case Conservative:
		s.Probability = 1.0 / float64(1+len(s.Neighbours))
	case Aggressive:
		s.Probability = s.cfg.AggressiveProbability
	default:
		s.Probability = 1.0
	}
	s.Mode = m
}

// maybeEngageSuppression switches to the configured suppression mode once the window
// has saturated or a follow-up went unanswered.
func (s *Slot) maybeEngageSuppression(noFollowup bool) {
	if noFollowup || s.MaxBucket == s.cfg.JitterIntervals {
		s.setMode(s.switchMode)
	}
}

// maybeRelease returns to Regular when a follow-up shows suppression is unnecessary.
func (s *Slot) maybeRelease(observed float64, directAck bool) {
	switch s.Mode {
	case Conservative:
		s.setMode(Regular)
	case Aggressive, Bold:
		if directAck || observed <= s.AverageJitter() {
			s.setMode(Regular)
		}
	}
}
