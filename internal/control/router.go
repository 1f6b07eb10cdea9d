package control

import (
	"context"

	"github.com/HMasataka/duet/internal/control/handler"
	"github.com/HMasataka/duet/payload/signal"
)

type Router struct {
	handlerRegistry HandlerRegistry
}

func NewRouter() *Router {
	return &Router{
		handlerRegistry: NewHandlerRegistry(),
	}
}

func (r *Router) Register(kind signal.Kind, handler Handler) {
	r.handlerRegistry.Register(kind, handler)
}

func (r *Router) Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
	return r.handlerRegistry.Handle(ctx, msg)
}

// NewControlRouter routes renegotiation traffic to n.
func NewControlRouter(n handler.Negotiator) *Router {
	router := NewRouter()

	router.Register(signal.KindOffer, handler.NewOfferHandler(n))
	router.Register(signal.KindAnswer, handler.NewAnswerHandler(n))
	router.Register(signal.KindCandidate, handler.NewCandidateHandler(n))

	return router
}
