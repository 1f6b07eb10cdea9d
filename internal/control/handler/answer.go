package handler

import (
	"context"

	"github.com/HMasataka/duet/payload/signal"
)

type AnswerHandler struct {
	negotiator Negotiator
}

func NewAnswerHandler(n Negotiator) *AnswerHandler {
	return &AnswerHandler{
		negotiator: n,
	}
}

func (h *AnswerHandler) Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if err := h.negotiator.ApplyRemoteAnswer(ctx, *msg.Description); err != nil {
		return nil, err
	}

	return nil, nil
}

func (h *AnswerHandler) CanHandle(kind signal.Kind) bool {
	return kind == signal.KindAnswer
}
