package handler

import (
	"context"
	"errors"

	"github.com/HMasataka/duet/payload/signal"
)

type OfferHandler struct {
	negotiator Negotiator
}

func NewOfferHandler(n Negotiator) *OfferHandler {
	return &OfferHandler{
		negotiator: n,
	}
}

func (h *OfferHandler) Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	answer, err := h.negotiator.AnswerRemoteOffer(ctx, *msg.Description)
	if errors.Is(err, ErrOfferIgnored) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return signal.NewAnswerMessage(answer), nil
}

func (h *OfferHandler) CanHandle(kind signal.Kind) bool {
	return kind == signal.KindOffer
}
