package pwa

// State is the install lifecycle state of one client.
type State int

const (
	StateIdle State = iota
	StateAvailable
	StateConsumed
	StateInstalled
	StateDeclined
	StateDismissed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAvailable:
		return "available"
	case StateConsumed:
		return "consumed"
	case StateInstalled:
		return "installed"
	case StateDeclined:
		return "declined"
	case StateDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further install UI may be shown this session.
func (s State) Terminal() bool {
	return s == StateInstalled || s == StateDismissed
}
