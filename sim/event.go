package sim

// Event is a single scheduled callback on the simulation timeline.
// Events are owned by the Simulator's queue; callers only ever see an EventHandle.
type Event struct {
	time float64 // Simulation time at which the callback fires
	seq  uint64  // Insertion sequence, breaks ties between equal timestamps
	name string  // Label used in trace logs
	fn   func()
}

// Timestamp returns the scheduled time of the event.
func (e *Event) Timestamp() float64 {
	return e.time
}

// Name returns the label given at scheduling time.
func (e *Event) Name() string {
	return e.name
}

// EventHandle identifies a scheduled event so it can be cancelled later.
// The zero value refers to no event; cancelling it is a no-op.
type EventHandle struct {
	id uint64
}

// Valid reports whether the handle was returned by Schedule.
func (h EventHandle) Valid() bool {
	return h.id != 0
}

// EventQueue implements heap.Interface and orders events by timestamp, then by
// insertion sequence. See https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []*Event

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	if eq[i].time != eq[j].time {
		return eq[i].time < eq[j].time
	}
	return eq[i].seq < eq[j].seq
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(*Event))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*eq = old[0 : n-1]
	return item
}
