package signal

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"
)

var ErrInvalidControlMessage = errors.New("invalid control message")

// ControlMessage is exchanged over the in-band control channel once a session
// is active.
type ControlMessage struct {
	ID          string                     `json:"id"`
	Kind        Kind                       `json:"kind"`
	Timestamp   time.Time                  `json:"timestamp"`
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func NewOfferMessage(offer webrtc.SessionDescription) *ControlMessage {
	return &ControlMessage{
		ID:          xid.New().String(),
		Kind:        KindOffer,
		Timestamp:   time.Now(),
		Description: &offer,
	}
}

func NewAnswerMessage(answer webrtc.SessionDescription) *ControlMessage {
	return &ControlMessage{
		ID:          xid.New().String(),
		Kind:        KindAnswer,
		Timestamp:   time.Now(),
		Description: &answer,
	}
}

func NewCandidateMessage(candidate webrtc.ICECandidateInit) *ControlMessage {
	return &ControlMessage{
		ID:        xid.New().String(),
		Kind:      KindCandidate,
		Timestamp: time.Now(),
		Candidate: &candidate,
	}
}

// Validate reports whether the message carries the payload its kind requires.
func (m *ControlMessage) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidControlMessage)
	}

	switch m.Kind {
	case KindOffer, KindAnswer:
		if m.Description == nil {
			return fmt.Errorf("%w: %s without description", ErrInvalidControlMessage, m.Kind)
		}
		want, _ := sdpTypeFor(m.Kind)
		if m.Description.Type != want {
			return fmt.Errorf("%w: %s carries %s description", ErrInvalidControlMessage, m.Kind, m.Description.Type)
		}
	case KindCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: candidate without payload", ErrInvalidControlMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidControlMessage, m.Kind)
	}

	return nil
}
