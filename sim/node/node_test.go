package node

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piconetwork/lpwan-sim/sim"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

const relayID packet.NodeID = 5

type fakeMedium struct {
	sent      []*packet.Packet
	delay     float64
	onDeliver func(p *packet.Packet)
}

func (m *fakeMedium) Deliver(_ packet.NodeID, p *packet.Packet) {
	m.sent = append(m.sent, p)
	if m.onDeliver != nil {
		m.onDeliver(p)
	}
}

func (m *fakeMedium) EdgeDelay(_, _ packet.NodeID) (float64, bool) {
	return m.delay, true
}

type countingRecorder struct {
	drops map[DropReason]int
	tx    map[TransmissionKind]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{drops: map[DropReason]int{}, tx: map[TransmissionKind]int{}}
}

func (r *countingRecorder) ObserveDrop(_ packet.NodeID, reason DropReason) { r.drops[reason]++ }
func (r *countingRecorder) ObserveTransmission(_ packet.NodeID, kind TransmissionKind) {
	r.tx[kind]++
}

type harness struct {
	sim    *sim.Simulator
	medium *fakeMedium
	rec    *countingRecorder
	alloc  *packet.IDAllocator
	deps   Deps
}

func newHarness(horizon float64, mutate func(*sim.Config)) *harness {
	cfg := sim.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		sim:    sim.NewSimulator(horizon, 0),
		medium: &fakeMedium{},
		rec:    newCountingRecorder(),
		alloc:  packet.NewIDAllocator(),
	}
	h.deps = Deps{
		Sched:    h.sim,
		Medium:   h.medium,
		Alloc:    h.alloc,
		Config:   &cfg,
		RNG:      sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)).ForSubsystem(sim.SubsystemNode(int(relayID))),
		Recorder: h.rec,
	}
	return h
}

// deliverAt makes p arrive at n at absolute time t.
func (h *harness) deliverAt(n *Node, t float64, p *packet.Packet) {
	h.sim.Schedule(t-h.sim.Now(), "test.arrival", func() { n.Receive(p) })
}

func (h *harness) run() {
	h.sim.Run(context.Background())
}

func TestRelay_RegularCycleWithoutFollowup(t *testing.T) {
	// GIVEN a regular relay hearing one message from node 1
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	msg := packet.NewMessage(h.alloc, 1, 0).Received(relayID)
	h.deliverAt(n, 0, msg)

	// WHEN nobody forwards the retransmission
	h.run()

	// THEN the relay retransmitted exactly once, widened its window and freed the slot
	require.Len(t, h.medium.sent, 1)
	fwd := h.medium.sent[0]
	assert.Equal(t, relayID, fwd.LastInPath)
	assert.Equal(t, packet.NodeID(1), fwd.BeforeLastInPath)
	assert.Equal(t, msg.PacketID, fwd.PacketID)

	s := n.Slots()[0]
	assert.False(t, s.Bound)
	assert.Equal(t, Idle, s.State)
	assert.Equal(t, [2]int{1, 10}, [2]int{s.MinBucket, s.MaxBucket})
	assert.Equal(t, Regular, s.Mode)
	assert.True(t, s.Retransmitted)
	assert.True(t, n.Remembers(msg))

	// the follow-up timeout ran 2 * JitterMaxValue after the retransmission
	assert.InDelta(t, s.RetransmissionTime+96, h.sim.Now(), 1e-9)
	assert.Equal(t, 1, h.rec.tx[TransmitRelay])
}

func TestRelay_StateWhileWaiting(t *testing.T) {
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	n.Slots()[0].MinBucket, n.Slots()[0].MaxBucket = 9, 10
	h.deliverAt(n, 0, packet.NewMessage(h.alloc, 1, 0).Received(relayID))

	var states []State
	sample := func() { states = append(states, n.Slots()[0].State) }
	h.sim.Schedule(0.3, "sample", sample) // still receiving
	h.sim.Schedule(10, "sample", sample)  // waiting out the jitter
	h.sim.Schedule(100, "sample", sample) // listening for the follow-up
	h.sim.Schedule(200, "sample", sample) // done
	h.run()

	assert.Equal(t, []State{Idle, RetxPending, FollowupPending, Idle}, states)
}

func TestRelay_FollowupAdaptsJitter(t *testing.T) {
	// GIVEN a relay whose retransmission is forwarded by node 6 ten units later
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	h.medium.onDeliver = func(p *packet.Packet) {
		echo := p.Forward(6).Received(relayID)
		h.sim.Schedule(10, "echo", func() { n.Receive(echo) })
	}
	h.deliverAt(n, 0, packet.NewMessage(h.alloc, 1, 0).Received(relayID))

	// WHEN the simulation runs
	h.run()

	// THEN the observed downstream jitter (10 + reception time) is blended in:
	// 0.4*24 + 0.6*10.6 = 15.96, which lies in bucket 3
	s := n.Slots()[0]
	assert.Equal(t, [2]int{3, 4}, [2]int{s.MinBucket, s.MaxBucket})
	assert.False(t, s.Bound)
	assert.Contains(t, s.Neighbours, packet.NodeID(6))
	assert.Len(t, h.medium.sent, 1)
	assert.Equal(t, 1, h.sim.CancelledEvents, "follow-up timeout cancelled")
}

func TestRelay_DirectAckSuppressesPendingTransmission(t *testing.T) {
	// GIVEN a relay waiting out a long jitter
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	n.Slots()[0].MinBucket, n.Slots()[0].MaxBucket = 9, 10
	msg := packet.NewMessage(h.alloc, 1, 0).Received(relayID)
	h.deliverAt(n, 0, msg)

	// WHEN the gateway's ACK for that message is overheard
	ack := packet.NewAck(h.alloc, 9, 1, msg.Forward(7)).Received(relayID)
	h.deliverAt(n, 1, ack)
	h.run()

	// THEN the transmission is cancelled and the window tightened
	assert.Empty(t, h.medium.sent)
	assert.Equal(t, 1, h.rec.drops[DropSuppressed])
	s := n.Slots()[0]
	assert.False(t, s.Bound)
	assert.Equal(t, [2]int{8, 9}, [2]int{s.MinBucket, s.MaxBucket})
}

func TestRelay_OverheardCopyDoesNotSuppressRegular(t *testing.T) {
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	n.Slots()[0].MinBucket, n.Slots()[0].MaxBucket = 9, 10
	msg := packet.NewMessage(h.alloc, 1, 0)
	h.deliverAt(n, 0, msg.Received(relayID))
	h.deliverAt(n, 1, msg.Forward(7).Received(relayID))
	h.run()

	assert.Len(t, h.medium.sent, 1)
	assert.Contains(t, n.Slots()[0].Neighbours, packet.NodeID(7))
}

func TestRelay_BoldSuppressesOnSameAntecessor(t *testing.T) {
	// GIVEN a bold relay that got the message from node 1
	h := newHarness(0, func(c *sim.Config) { c.NodesMode = sim.ModeBold })
	n := NewRelay(relayID, 0, 0, h.deps)
	s := n.Slots()[0]
	s.MinBucket, s.MaxBucket = 9, 10
	s.setMode(Bold)
	msg := packet.NewMessage(h.alloc, 1, 0)
	h.deliverAt(n, 0, msg.Received(relayID))

	// WHEN node 7, which also heard node 1, retransmits first
	h.deliverAt(n, 2, msg.Forward(7).Received(relayID))
	h.run()

	// THEN the bold relay stays silent
	assert.Empty(t, h.medium.sent)
	assert.Equal(t, 1, h.rec.drops[DropSuppressed])
	assert.Equal(t, Bold, s.Mode)
}

func TestRelay_CapacityExhaustedDropsOtherMessages(t *testing.T) {
	h := newHarness(5, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	n.Slots()[0].MinBucket, n.Slots()[0].MaxBucket = 9, 10
	h.deliverAt(n, 0, packet.NewMessage(h.alloc, 1, 0).Received(relayID))
	h.deliverAt(n, 2, packet.NewMessage(h.alloc, 2, 0).Received(relayID))
	h.run()

	assert.Equal(t, 1, h.rec.drops[DropCapacity])
	assert.Equal(t, 1, n.OccupiedSlots())
}

func TestRelay_SlotsNeverExceedCapacity(t *testing.T) {
	h := newHarness(0, func(c *sim.Config) { c.PacketsStateCapacity = 2 })
	n := NewRelay(relayID, 0, 0, h.deps)
	for i := 0; i < 40; i++ {
		h.deliverAt(n, float64(i)*1.5, packet.NewMessage(h.alloc, packet.NodeID(10+i%3), 0).Received(relayID))
	}
	maxSeen := 0
	for i := 0; i < 400; i++ {
		h.sim.Schedule(float64(i)*0.5, "sample", func() { maxSeen = max(maxSeen, n.OccupiedSlots()) })
	}
	h.run()

	assert.Equal(t, 2, maxSeen)
	assert.Positive(t, h.rec.drops[DropCapacity])
}

func TestRelay_PingPongPrevention(t *testing.T) {
	tests := []struct {
		name     string
		disallow bool
		wantSent int
		wantDrop int
	}{
		{"remembered message is dropped", true, 1, 1},
		{"memory disabled retransmits again", false, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(0, func(c *sim.Config) { c.DisallowMultipleRetransmissions = tt.disallow })
			n := NewRelay(relayID, 0, 0, h.deps)
			msg := packet.NewMessage(h.alloc, 1, 0)
			h.deliverAt(n, 0, msg.Received(relayID))
			h.deliverAt(n, 500, msg.Forward(3).Received(relayID))
			h.run()

			assert.Len(t, h.medium.sent, tt.wantSent)
			assert.Equal(t, tt.wantDrop, h.rec.drops[DropPingPong])
		})
	}
}

func TestRelay_RememberedSetEvictsOldest(t *testing.T) {
	h := newHarness(0, func(c *sim.Config) { c.PacketsRememberCapacity = 2 })
	n := NewRelay(relayID, 0, 0, h.deps)
	var msgs []*packet.Packet
	for i := 0; i < 3; i++ {
		m := packet.NewMessage(h.alloc, 1, 0)
		msgs = append(msgs, m)
		h.deliverAt(n, float64(i)*500, m.Received(relayID))
	}
	h.run()

	assert.False(t, n.Remembers(msgs[0]))
	assert.True(t, n.Remembers(msgs[1]))
	assert.True(t, n.Remembers(msgs[2]))
}

func TestRelay_IdleAckTightensWindowWithoutRetransmitting(t *testing.T) {
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	msg := packet.NewMessage(h.alloc, 1, 0)
	h.deliverAt(n, 0, packet.NewAck(h.alloc, 9, 0, msg).Received(relayID))
	h.run()

	s := n.Slots()[0]
	assert.Empty(t, h.medium.sent)
	assert.False(t, s.Bound)
	assert.Equal(t, [2]int{0, 9}, [2]int{s.MinBucket, s.MaxBucket})
}

func TestRelay_RetransmitAcks(t *testing.T) {
	h := newHarness(0, func(c *sim.Config) { c.RetransmitAcks = true })
	n := NewRelay(relayID, 0, 0, h.deps)
	msg := packet.NewMessage(h.alloc, 1, 0)
	h.deliverAt(n, 0, packet.NewAck(h.alloc, 9, 0, msg).Received(relayID))
	h.run()

	require.Len(t, h.medium.sent, 1)
	assert.True(t, h.medium.sent[0].IsAck())
	assert.Equal(t, relayID, h.medium.sent[0].LastInPath)
}

func TestRelay_AckOfHandledMessage(t *testing.T) {
	tests := []struct {
		name           string
		retransmitAcks bool
		wantSent       int
		wantPingPong   int
	}{
		{"dropped as ping-pong", false, 1, 1},
		{"relayed when acks are retransmitted", true, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a relay that completed a full cycle for a message
			h := newHarness(0, func(c *sim.Config) { c.RetransmitAcks = tt.retransmitAcks })
			n := NewRelay(relayID, 0, 0, h.deps)
			msg := packet.NewMessage(h.alloc, 1, 0)
			h.deliverAt(n, 0, msg.Received(relayID))
			var window [2]int
			h.sim.Schedule(250, "sample", func() {
				s := n.Slots()[0]
				window = [2]int{s.MinBucket, s.MaxBucket}
			})

			// WHEN the ACK of that message reaches it later, relayed by node 6
			ack := packet.NewAck(h.alloc, 9, 280, msg.Forward(7)).Forward(6).Received(relayID)
			h.deliverAt(n, 300, ack)
			h.run()

			// THEN the shared memory entry decides whether the ACK is handled at all
			assert.Len(t, h.medium.sent, tt.wantSent)
			assert.Equal(t, tt.wantPingPong, h.rec.drops[DropPingPong])
			assert.Equal(t, [2]int{1, 10}, window)
			if !tt.retransmitAcks {
				s := n.Slots()[0]
				assert.Equal(t, window, [2]int{s.MinBucket, s.MaxBucket}, "window untouched by the dropped ack")
				assert.True(t, n.Remembers(ack))
			} else {
				assert.True(t, h.medium.sent[1].IsAck())
			}
		})
	}
}

func TestRelay_GatewayAckAfterOwnTransmission(t *testing.T) {
	tests := []struct {
		name           string
		retransmitAcks bool
		wantWindow     [2]int
		wantSent       int
	}{
		// 21.6 / 2 = 10.8 lies in bucket 2
		{"completes the cycle", false, [2]int{2, 3}, 1},
		// relaying the ack as a fresh packet tightens once more
		{"then relays the ack", true, [2]int{1, 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN an aggressive relay that always forwards, window [4, 5)
			h := newHarness(0, func(c *sim.Config) {
				c.NodesMode = sim.ModeAggressive
				c.AggressiveProbability = 1
				c.RetransmitAcks = tt.retransmitAcks
			})
			n := NewRelay(relayID, 0, 0, h.deps)
			s := n.Slots()[0]
			s.MinBucket, s.MaxBucket = 4, 5
			s.setMode(Aggressive)

			// the gateway acknowledges our forward one unit after hearing it
			var window [2]int
			var mode SuppressionMode
			h.medium.onDeliver = func(p *packet.Packet) {
				if p.IsAck() {
					return
				}
				ack := packet.NewAck(h.alloc, 9, h.sim.Now()+1, p).Received(relayID)
				h.sim.Schedule(1, "gateway.ack", func() { n.Receive(ack) })
				// once the ack has been received and processed
				h.sim.Schedule(1.7, "sample", func() {
					window = [2]int{s.MinBucket, s.MaxBucket}
					mode = s.Mode
				})
			}
			h.deliverAt(n, 0, packet.NewMessage(h.alloc, 1, 0).Received(relayID))

			// WHEN the simulation runs
			h.run()

			// THEN the window is halved, the follow-up timeout cancelled and the relay
			// released to Regular
			assert.Equal(t, tt.wantWindow, window)
			assert.Equal(t, Regular, mode)
			assert.Equal(t, 1, h.sim.CancelledEvents)
			require.Len(t, h.medium.sent, tt.wantSent)
			if tt.retransmitAcks {
				relayed := h.medium.sent[1]
				assert.True(t, relayed.IsAck())
				assert.Equal(t, relayID, relayed.LastInPath)
			} else {
				assert.False(t, s.Bound)
				assert.Equal(t, Idle, s.State)
				assert.Equal(t, 1.0, s.Probability)
			}
		})
	}
}

func TestRelay_FollowupTimeoutEngagesConfiguredMode(t *testing.T) {
	tests := []struct {
		mode            string
		wantMode        SuppressionMode
		wantProbability float64
	}{
		{sim.ModeConservative, Conservative, 0.5}, // one known neighbour
		{sim.ModeAggressive, Aggressive, 0.2},
		{sim.ModeBold, Bold, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			// GIVEN a relay whose window [2, 5) is far from the top bucket
			h := newHarness(0, func(c *sim.Config) { c.NodesMode = tt.mode })
			n := NewRelay(relayID, 0, 0, h.deps)
			s := n.Slots()[0]
			s.MinBucket, s.MaxBucket = 2, 5
			msg := packet.NewMessage(h.alloc, 1, 0)
			h.deliverAt(n, 0, msg.Received(relayID))
			// node 7 is overheard while the jitter runs
			h.deliverAt(n, 1, msg.Forward(7).Received(relayID))

			// WHEN the relay forwards and no follow-up is ever heard
			h.run()

			// THEN the timeout widens the window and switches to the configured mode
			require.Len(t, h.medium.sent, 1)
			assert.Equal(t, [2]int{3, 6}, [2]int{s.MinBucket, s.MaxBucket})
			assert.Equal(t, tt.wantMode, s.Mode)
			assert.InDelta(t, tt.wantProbability, s.Probability, 1e-12)
			assert.Contains(t, s.Neighbours, packet.NodeID(7))
			assert.Zero(t, h.sim.CancelledEvents)
			assert.False(t, s.Bound)
		})
	}
}

func TestRelay_AggressiveForwardingRate(t *testing.T) {
	// GIVEN an aggressive relay with p_min = 0.2
	h := newHarness(0, func(c *sim.Config) { c.NodesMode = sim.ModeAggressive })
	n := NewRelay(relayID, 0, 0, h.deps)
	n.Slots()[0].setMode(Aggressive)

	// WHEN it hears many fresh messages, spaced beyond a full cycle
	const trials = 2000
	for i := 0; i < trials; i++ {
		h.deliverAt(n, float64(i)*200, packet.NewMessage(h.alloc, 1, 0).Received(relayID))
	}
	h.run()

	// THEN it forwards about one in five
	rate := float64(len(h.medium.sent)) / trials
	assert.InDelta(t, 0.2, rate, 0.04)
	assert.Equal(t, trials-len(h.medium.sent), h.rec.drops[DropSuppressed])
	assert.Equal(t, Aggressive, n.Slots()[0].Mode)
}

func TestRelay_TransmitOnFreedSlotIsInvariantViolation(t *testing.T) {
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	s := n.Slots()[0]

	assert.PanicsWithError(t, "invariant violation: node 5: transmission fired for message 99 against a freed slot", func() {
		n.transmitSchedulable(s, 99)
	})

	s.softSwitch(packet.NewMessage(h.alloc, 1, 0))
	assert.Panics(t, func() { n.transmitSchedulable(s, s.MessageID) }, "bound but Idle")
	assert.Panics(t, func() { n.followupTimeout(s, s.MessageID) })
}

func TestNode_CollisionDropsBothAndExtendsWindow(t *testing.T) {
	// GIVEN two packets arriving 0.3 apart with a 0.6 reception time
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	h.deliverAt(n, 0, packet.NewMessage(h.alloc, 1, 0).Received(relayID))
	h.deliverAt(n, 0.3, packet.NewMessage(h.alloc, 2, 0).Received(relayID))

	var states []ReceptionState
	sample := func() { states = append(states, n.Reception()) }
	h.sim.Schedule(0.2, "sample", sample)
	h.sim.Schedule(0.7, "sample", sample)
	h.sim.Schedule(0.85, "sample", sample)
	h.sim.Schedule(0.95, "sample", sample)

	// WHEN the simulation runs
	h.run()

	// THEN both are lost and the node is busy until 0.3 + 0.6
	assert.Equal(t, 2, h.rec.drops[DropCollision])
	assert.Equal(t, []ReceptionState{Receiving, Receiving, Receiving, Ready}, states)
	assert.Empty(t, h.medium.sent)
	assert.Equal(t, 0, n.OccupiedSlots())
}

func TestNode_RepeatedCollisionsKeepExtending(t *testing.T) {
	h := newHarness(0, nil)
	n := NewRelay(relayID, 0, 0, h.deps)
	for i, at := range []float64{0, 0.4, 0.8, 1.2} {
		h.deliverAt(n, at, packet.NewMessage(h.alloc, packet.NodeID(i+1), 0).Received(relayID))
	}
	var busyAt17 ReceptionState
	h.sim.Schedule(1.7, "sample", func() { busyAt17 = n.Reception() })
	h.run()

	assert.Equal(t, 4, h.rec.drops[DropCollision])
	assert.Equal(t, Receiving, busyAt17)
	assert.Equal(t, Ready, n.Reception())
}

func TestGateway_AcknowledgesEachMessageOnce(t *testing.T) {
	// GIVEN a gateway and two copies of the same message via different relays
	h := newHarness(0, nil)
	var arrivals []Arrival
	gw := NewGateway(9, 0, 0, h.deps, func(a Arrival) { arrivals = append(arrivals, a) })
	msg := packet.NewMessage(h.alloc, 1, 2)
	viaThree := msg.Received(2).Forward(2).Received(3).Forward(3).Received(9)
	viaFour := msg.Received(4).Forward(4).Received(9)
	h.deliverAt(gw, 10, viaThree)
	h.deliverAt(gw, 20, viaFour)

	// WHEN both arrive
	h.run()

	// THEN exactly one ACK is emitted, for the first copy
	require.Len(t, arrivals, 1)
	assert.Equal(t, packet.MessageID(msg.PacketID), arrivals[0].MessageID)
	assert.Equal(t, 2, arrivals[0].HopCount)
	assert.InDelta(t, 8.6, arrivals[0].Delay(), 1e-9)
	require.Len(t, h.medium.sent, 1)
	ack := h.medium.sent[0]
	assert.True(t, ack.IsAck())
	assert.Equal(t, packet.MessageID(msg.PacketID), ack.MessageID)
	assert.Equal(t, packet.NodeID(3), ack.BeforeLastInPath)
	assert.Equal(t, 1, gw.Acknowledged())
	assert.Equal(t, 1, h.rec.tx[TransmitAck])
}

func TestGateway_IgnoresAcksWithDebugTrace(t *testing.T) {
	hook := test.NewGlobal()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logrus.SetLevel(level)
		hook.Reset()
	})

	// GIVEN a gateway hearing an ACK relayed back towards it
	h := newHarness(0, nil)
	var arrivals []Arrival
	gw := NewGateway(9, 0, 0, h.deps, func(a Arrival) { arrivals = append(arrivals, a) })
	msg := packet.NewMessage(h.alloc, 1, 0)
	h.deliverAt(gw, 5, packet.NewAck(h.alloc, 8, 4, msg).Forward(4).Received(9))

	// WHEN it is received
	h.run()

	// THEN nothing is acknowledged or sent, but the drop shows up in the trace
	assert.Empty(t, arrivals)
	assert.Empty(t, h.medium.sent)
	assert.Zero(t, gw.Acknowledged())
	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel && strings.Contains(e.Message, "ack ignored") {
			found = true
		}
	}
	assert.True(t, found, "debug entry for the ignored ack")
}

func TestSource_EmitsPeriodicallyAndNeverRelays(t *testing.T) {
	h := newHarness(1000, func(c *sim.Config) { c.SourceRecurrentDelay = 300 })
	var sent []*packet.Packet
	var acked []packet.MessageID
	src := NewSource(1, 0, 0, h.deps.Config.SourceRecurrentDelay, h.deps, SourceHooks{
		OnSend: func(p *packet.Packet) { sent = append(sent, p) },
		OnAck:  func(id packet.MessageID, _ float64) { acked = append(acked, id) },
	})
	src.Start(0)

	other := packet.NewMessage(h.alloc, 7, 0).Received(1)
	h.deliverAt(src, 50, other)
	h.sim.Schedule(100, "ack", func() {
		src.Receive(packet.NewAck(h.alloc, 9, 100, sent[0]).Received(1))
	})
	h.run()

	// emissions at 0, 300, 600, 900
	assert.Equal(t, 4, src.Sent())
	require.Len(t, sent, 4)
	assert.Equal(t, 300.0, sent[1].FirstEmissionTime)
	assert.Len(t, h.medium.sent, 4, "the foreign message is not relayed")
	assert.Equal(t, []packet.MessageID{packet.MessageID(sent[0].PacketID)}, acked)
}

func TestFlooding_RetransmitsOnceAndFreesSlot(t *testing.T) {
	tests := []struct {
		mode     string
		minDelay float64
		maxDelay float64
	}{
		{sim.ModeFlooding, 0, 0},
		{sim.ModeFastFlooding, 0, 4.8},
		{sim.ModeSlowFlooding, 0, 48},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			h := newHarness(0, func(c *sim.Config) { c.NodesMode = tt.mode })
			n := NewRelay(relayID, 0, 0, h.deps)
			var at float64
			h.medium.onDeliver = func(*packet.Packet) { at = h.sim.Now() }
			msg := packet.NewMessage(h.alloc, 1, 0)
			h.deliverAt(n, 0, msg.Received(relayID))
			h.deliverAt(n, 60, msg.Forward(3).Received(relayID))
			h.run()

			require.Len(t, h.medium.sent, 1)
			delay := at - 0.6
			assert.GreaterOrEqual(t, delay, tt.minDelay-1e-9)
			assert.LessOrEqual(t, delay, tt.maxDelay)
			assert.Equal(t, 0, n.OccupiedSlots())
			assert.Equal(t, 1, h.rec.drops[DropPingPong])
		})
	}
}
