package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/HMasataka/duet/payload/signal"
)

var (
	ErrNilMessage     = errors.New("message is nil")
	ErrNoHandler      = errors.New("no handler found for message kind")
	ErrHandlerIsNil   = errors.New("handler is nil for message kind")
	ErrChannelNotOpen = errors.New("control channel is not open")
)

// Handler processes one kind of control message. A non-nil response is sent
// back to the peer.
type Handler interface {
	Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error)
	CanHandle(kind signal.Kind) bool
}

type HandlerFunc func(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
	return f(ctx, msg)
}

// CanHandle accepts every kind; the registry key decides what reaches f.
func (f HandlerFunc) CanHandle(signal.Kind) bool {
	return true
}

type HandlerRegistry interface {
	Register(kind signal.Kind, handler Handler)

	Get(kind signal.Kind) (Handler, bool)

	Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error)
}

type DefaultHandlerRegistry struct {
	handlers map[signal.Kind]Handler
}

func NewHandlerRegistry() *DefaultHandlerRegistry {
	return &DefaultHandlerRegistry{
		handlers: make(map[signal.Kind]Handler),
	}
}

func (r *DefaultHandlerRegistry) Register(kind signal.Kind, handler Handler) {
	r.handlers[kind] = handler
}

func (r *DefaultHandlerRegistry) Get(kind signal.Kind) (Handler, bool) {
	handler, ok := r.handlers[kind]
	return handler, ok
}

func (r *DefaultHandlerRegistry) Handle(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	handler, ok := r.Get(msg.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, msg.Kind)
	}

	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrHandlerIsNil, msg.Kind)
	}

	return handler.Handle(ctx, msg)
}
