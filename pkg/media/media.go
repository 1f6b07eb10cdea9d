package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source media.go -destination mock/media.go

var (
	// ErrMediaAccessDenied means the user declined capture. Callers report it
	// as not sharing and carry on.
	ErrMediaAccessDenied = errors.New("media access denied")
	// ErrMediaAccessFailed covers every other capture failure and is shown to
	// the user.
	ErrMediaAccessFailed = errors.New("media access failed")
)

// Options selects which local sources to share.
type Options struct {
	Video       bool
	SystemAudio bool
	Microphone  bool
}

func DefaultOptions() Options {
	return Options{
		Video:       true,
		SystemAudio: true,
		Microphone:  true,
	}
}

// Source is a set of local tracks being captured.
type Source interface {
	Tracks() []webrtc.TrackLocal
	// Done is closed when the primary track ends on its own.
	Done() <-chan struct{}
	// Stop releases the capture. It is safe to call more than once.
	Stop()
}

// Provider acquires local media.
type Provider interface {
	Acquire(ctx context.Context, options Options) (Source, error)
}
