package handler

import (
	"context"

	"github.com/HMasataka/duet/payload/signal"
)

type CandidateHandler struct {
	negotiator Negotiator
}

func NewCandidateHandler(n Negotiator) *CandidateHandler {
	return &CandidateHandler{
		negotiator: n,
	}
}

func (h *CandidateHandler) Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if err := h.negotiator.AddRemoteCandidate(ctx, *msg.Candidate); err != nil {
		return nil, err
	}

	return nil, nil
}

func (h *CandidateHandler) CanHandle(kind signal.Kind) bool {
	return kind == signal.KindCandidate
}
