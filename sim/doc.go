// Package sim provides the discrete-event simulation kernel for lpwan-sim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Event, EventHandle and the time-ordered EventQueue
//   - simulator.go: the clock, Schedule/Cancel and the Run loop
//   - config.go: every simulation parameter and its validation
//
// # Architecture
//
// The sim package owns time; the protocol lives in sub-packages:
//   - sim/packet/: packet envelope, id allocation, copy-on-forward
//   - sim/channel/: topology graph and lossy, delayed broadcast fan-out
//   - sim/node/: relay jitter/suppression state machine, Source and Gateway roles
//   - sim/network/: assembles a channel and its nodes from a topology, runs, snapshots
//   - sim/metrics/: Prometheus counters for drops, transmissions and deliveries
//   - sim/trace/: packet lifecycle records and summary statistics
//
// Components never hold each other directly across the event boundary: the channel
// resolves receivers by node id when a delivery event fires.
//
// # Ordering
//
// Events run in non-decreasing time order. Events at the same timestamp run in the
// order they were scheduled. Cancellation is lazy: a cancelled event stays queued
// and is skipped when popped.
package sim
