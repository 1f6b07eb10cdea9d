package negotiation

import "errors"

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrSessionClosed is returned by a step whose session was released while
	// it was suspended.
	ErrSessionClosed = errors.New("session closed")
	// ErrControllerClosed is returned once Close has been called.
	ErrControllerClosed = errors.New("controller closed")
	// ErrLinkLost marks the loss of the underlying transport.
	ErrLinkLost = errors.New("link lost")
	// ErrNotActive is returned by media operations outside an active session.
	ErrNotActive = errors.New("session is not active")
	// ErrAlreadySharing is returned when local media is already shared.
	ErrAlreadySharing = errors.New("already sharing")
)
