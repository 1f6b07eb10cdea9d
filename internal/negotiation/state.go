package negotiation

type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateAnsweringIncoming
	StateActive
	StateRenegotiating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnsweringIncoming:
		return "answering-incoming"
	case StateActive:
		return "active"
	case StateRenegotiating:
		return "renegotiating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is the coarse connection status shown to the user.
func (s State) Status() Status {
	switch s {
	case StateOffering, StateAwaitingAnswer, StateAnsweringIncoming:
		return StatusConnecting
	case StateActive, StateRenegotiating:
		return StatusConnected
	default:
		return StatusDisconnected
	}
}

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

type MediaStatus string

const (
	MediaSharing    MediaStatus = "sharing"
	MediaNotSharing MediaStatus = "not-sharing"
)

type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "none"
	}
}
