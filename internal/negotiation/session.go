package negotiation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/HMasataka/duet/internal/control"
	"github.com/HMasataka/duet/internal/gather"
	"github.com/HMasataka/duet/pkg/media"
	"github.com/pion/webrtc/v4"
)

// session is one negotiation attempt and everything it owns. It is never
// reused once closed.
type session struct {
	id     string
	role   Role
	pc     PeerConnection
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channel  *control.Channel
	gatherer *gather.Gatherer
	source   media.Source
	senders  []*webrtc.RTPSender

	// renegotiate is set while a local change still needs an offer.
	renegotiate atomic.Bool

	closeOnce sync.Once
}

func newSession(id string, role Role, pc PeerConnection, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())

	return &session{
		id:     id,
		role:   role,
		pc:     pc,
		logger: logger.With("session", id, "role", role.String()),
		ctx:    ctx,
		cancel: cancel,
	}
}

// beginGathering starts a new candidate round. Candidates reported before the
// next round are appended to this one until it freezes.
func (s *session) beginGathering(options gather.Options) *gather.Gatherer {
	g := gather.New(options, s.logger)

	s.mu.Lock()
	s.gatherer = g
	s.mu.Unlock()

	return g
}

func (s *session) handleCandidate(candidate *webrtc.ICECandidateInit) {
	s.mu.Lock()
	g := s.gatherer
	s.mu.Unlock()

	if g == nil {
		if candidate != nil {
			s.logger.Debug("candidate outside of a gathering round dropped", "candidate", candidate.Candidate)
		}
		return
	}

	if candidate == nil {
		g.Complete()
		return
	}

	g.Add(*candidate)
}

// attachChannel keeps the first control channel and reports whether ch was kept.
func (s *session) attachChannel(ch *control.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		return false
	}

	s.channel = ch
	return true
}

func (s *session) controlChannel() *control.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *session) sharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

func (s *session) setSource(source media.Source, senders []*webrtc.RTPSender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = source
	s.senders = senders
}

// detachSource removes the shared source. When want is not nil it is only
// removed if it is still the current one.
func (s *session) detachSource(want media.Source) (media.Source, []*webrtc.RTPSender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil || (want != nil && s.source != want) {
		return nil, nil
	}

	source, senders := s.source, s.senders
	s.source = nil
	s.senders = nil

	return source, senders
}

// close releases the session exactly once and reports whether local media
// was being shared at that point.
func (s *session) close() bool {
	wasSharing := false

	s.closeOnce.Do(func() {
		s.cancel()

		source, _ := s.detachSource(nil)
		if source != nil {
			source.Stop()
			wasSharing = true
		}

		if ch := s.controlChannel(); ch != nil {
			if err := ch.Close(); err != nil {
				s.logger.Debug("failed to close control channel", "err", err)
			}
		}

		if err := s.pc.Close(); err != nil {
			s.logger.Warn("failed to close peer connection", "err", err)
		}

		s.logger.Info("session released")
	})

	return wasSharing
}
