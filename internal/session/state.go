package session

// State is the booking progress of a Session.
type State string

const (
	StateIdle                 State = "idle"
	StateChecking             State = "checking"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateBooking              State = "booking"
	StateCompleted            State = "completed"
	StateError                State = "error"
)

// transitions is the state graph. idle -> booking is only taken for platforms
// without an availability step; awaiting_confirmation -> checking when the
// user picks another slot before confirming.
var transitions = map[State][]State{
	StateIdle:                 {StateChecking, StateBooking, StateError},
	StateChecking:             {StateChecking, StateAwaitingConfirmation, StateError},
	StateAwaitingConfirmation: {StateBooking, StateChecking, StateError},
	StateBooking:              {StateAwaitingConfirmation, StateCompleted, StateError},
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the Session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// holdsPageState reports whether a diagnostic snapshot is worth taking.
func (s State) holdsPageState() bool {
	return s == StateChecking || s == StateAwaitingConfirmation || s == StateBooking
}
