package auth

// State is the derived authentication state consumed by route guards.
type State int

const (
	// StateUnknown means the state is still being determined: the store has not
	// been loaded yet or a refresh is in flight.
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// StateSource is anything that can report the current authentication state.
type StateSource interface {
	AuthState() State
}

// StateFunc adapts a plain function to StateSource.
type StateFunc func() State

func (f StateFunc) AuthState() State { return f() }

// StateFromSignal converts a nullable boolean signal; nil means not yet determined.
func StateFromSignal(isAuthenticated *bool) State {
	switch {
	case isAuthenticated == nil:
		return StateUnknown
	case *isAuthenticated:
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}
