// sim/simulator.go
package sim

import (
	"container/heap"
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler is the part of the Simulator that protocol components depend on.
type Scheduler interface {
	Now() float64
	Schedule(delay float64, name string, fn func()) EventHandle
	Cancel(h EventHandle)
}

// Simulator holds the simulation clock, the event queue and the run loop.
// It is single-threaded: every callback runs on the goroutine that called Run.
type Simulator struct {
	Clock float64
	// Horizon stops the run once the next event lies beyond it. Zero or negative disables it.
	Horizon float64
	// Slowness, when positive, sleeps Slowness*dt wall-clock seconds before each event.
	Slowness float64

	EventQueue EventQueue
	// live holds the ids of events that are queued and still effective.
	// Cancelling removes the id; the queue entry is skipped when popped.
	live    map[uint64]struct{}
	nextSeq uint64

	ExecutedEvents  int
	CancelledEvents int

	running bool
	sleep   func(time.Duration)
}

// NewSimulator creates a simulator with an empty queue and the clock at zero.
func NewSimulator(horizon float64, slowness float64) *Simulator {
	return &Simulator{
		Clock:      0,
		Horizon:    horizon,
		Slowness:   slowness,
		EventQueue: make(EventQueue, 0),
		live:       make(map[uint64]struct{}),
		sleep:      time.Sleep,
	}
}

// Now returns the current simulation time.
func (sim *Simulator) Now() float64 {
	return sim.Clock
}

// Schedule queues fn to run delay time units from now and returns a handle for Cancel.
// A negative or NaN delay would put the event in the past and is an invariant violation.
func (sim *Simulator) Schedule(delay float64, name string, fn func()) EventHandle {
	if delay < 0 || math.IsNaN(delay) {
		Invariantf("event %q scheduled with delay %v at t=%.6f", name, delay, sim.Clock)
	}
	sim.nextSeq++
	ev := &Event{
		time: sim.Clock + delay,
		seq:  sim.nextSeq,
		name: name,
		fn:   fn,
	}
	heap.Push(&sim.EventQueue, ev)
	sim.live[ev.seq] = struct{}{}
	logrus.Tracef("[t=%.6f] Scheduled %s for t=%.6f", sim.Clock, name, ev.time)
	return EventHandle{id: ev.seq}
}

// Cancel makes the referenced event a no-op. Cancelling twice, cancelling a fired
// event or cancelling the zero handle does nothing.
func (sim *Simulator) Cancel(h EventHandle) {
	if _, ok := sim.live[h.id]; !ok {
		return
	}
	delete(sim.live, h.id)
	sim.CancelledEvents++
}

// Pending reports whether the handle still refers to an event that will fire.
func (sim *Simulator) Pending(h EventHandle) bool {
	_, ok := sim.live[h.id]
	return ok
}

// Len returns the number of queued entries, including cancelled ones not yet popped.
func (sim *Simulator) Len() int {
	return len(sim.EventQueue)
}

// Stop ends the run after the current callback returns.
func (sim *Simulator) Stop() {
	sim.running = false
	logrus.Debugf("[t=%.6f] Simulator stopped", sim.Clock)
}

// Run executes events in time order until the queue drains, the horizon is passed,
// Stop is called or ctx is cancelled.
func (sim *Simulator) Run(ctx context.Context) {
	sim.running = true
	for len(sim.EventQueue) > 0 && sim.running {
		if ctx.Err() != nil {
			logrus.Warnf("[t=%.6f] Simulation interrupted: %v", sim.Clock, ctx.Err())
			break
		}
		// get the next event to be simulated
		ev := heap.Pop(&sim.EventQueue).(*Event)
		if ev.time < sim.Clock {
			Invariantf("event %q at t=%.6f popped after clock t=%.6f", ev.name, ev.time, sim.Clock)
		}
		if sim.Horizon > 0 && ev.time > sim.Horizon {
			// leave the clock where it is; the event is beyond the simulated window
			delete(sim.live, ev.seq)
			break
		}
		if _, effective := sim.live[ev.seq]; !effective {
			continue
		}
		delete(sim.live, ev.seq)
		if sim.Slowness > 0 {
			sim.sleep(time.Duration(sim.Slowness * (ev.time - sim.Clock) * float64(time.Second)))
		}
		// advance the clock
		sim.Clock = ev.time
		logrus.Tracef("[t=%.6f] Executing %s", sim.Clock, ev.name)
		ev.fn()
		sim.ExecutedEvents++
	}
	sim.running = false
	logrus.Infof("[t=%.6f] Simulation ended after %d events", sim.Clock, sim.ExecutedEvents)
}
