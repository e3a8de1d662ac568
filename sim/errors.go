package sim

import "fmt"

// InvariantError reports a protocol composition bug: a handler fired in a state it can
// never legally observe, an event scheduled in the past, an unknown node referenced.
// It is raised with panic and is never meant to be recovered by the simulation itself.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// Invariantf panics with an *InvariantError built from the format string.
func Invariantf(format string, args ...any) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}
