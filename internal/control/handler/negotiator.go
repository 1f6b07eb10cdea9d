package handler

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrOfferIgnored tells the offer handler that a colliding offer was
// dropped and no answer is owed.
var ErrOfferIgnored = errors.New("offer ignored")

//go:generate mockgen -source negotiator.go -destination mock/negotiator.go

// Negotiator is the session side of in-band renegotiation.
type Negotiator interface {
	// AnswerRemoteOffer applies a renegotiation offer and returns the local answer.
	AnswerRemoteOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyRemoteAnswer applies the answer to a renegotiation offer sent earlier.
	ApplyRemoteAnswer(ctx context.Context, answer webrtc.SessionDescription) error
	// AddRemoteCandidate applies a candidate discovered after the handshake.
	AddRemoteCandidate(ctx context.Context, candidate webrtc.ICECandidateInit) error
}
