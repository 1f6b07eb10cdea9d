package negotiation

import (
	"context"
	"fmt"

	"github.com/HMasataka/duet/internal/control/handler"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/pion/webrtc/v4"
)

// BeginRenegotiation sends a new offer over the control channel of an active
// session. It does nothing when there is no active session or the channel is
// not open yet.
func (c *Controller) BeginRenegotiation(ctx context.Context) {
	_, err := submit(ctx, c, func() (struct{}, error) {
		return struct{}{}, c.renegotiate(ctx, nil)
	})
	if err != nil {
		c.logger.Warn("renegotiation failed", "err", err)
	}
}

// requestRenegotiation marks sess as needing an offer and coalesces bursts of
// requests into one renegotiation.
func (c *Controller) requestRenegotiation(sess *session) {
	sess.renegotiate.Store(true)

	c.debounced(func() {
		c.dispatch(func() {
			if err := c.renegotiate(sess.ctx, sess); err != nil {
				sess.logger.Warn("renegotiation failed", "err", err)
			}
		})
	})
}

// resumeRenegotiation retries a renegotiation that was deferred while the
// session was busy or its channel was closed.
func (c *Controller) resumeRenegotiation(sess *session) {
	if sess.renegotiate.Load() {
		c.requestRenegotiation(sess)
	}
}

// renegotiate runs on the worker. A nil want targets the live session.
func (c *Controller) renegotiate(ctx context.Context, want *session) error {
	state, sess := c.snapshot()
	if sess == nil || (want != nil && sess != want) {
		c.logger.Debug("renegotiation skipped", "reason", "no session")
		return nil
	}

	if state != StateActive {
		sess.logger.Debug("renegotiation deferred", "state", state.String())
		return nil
	}

	ch := sess.controlChannel()
	if ch == nil || !ch.IsOpen() {
		sess.logger.Debug("renegotiation deferred", "reason", "control channel not open")
		return nil
	}

	sess.renegotiate.Store(false)

	offer, err := sess.pc.CreateOffer()
	if err != nil {
		err = fmt.Errorf("failed to create renegotiation offer: %w", err)
		c.fail(sess, err)
		return err
	}
	c.dumpSDP(sess, "local-reoffer", offer)

	if !c.transition(sess, StateRenegotiating) {
		return ErrSessionClosed
	}

	if err := ch.Send(ctx, signal.NewOfferMessage(offer)); err != nil {
		err = fmt.Errorf("failed to send renegotiation offer: %w", err)
		c.fail(sess, err)
		return err
	}

	return nil
}

// negotiator applies in-band renegotiation messages to one session. It runs
// on the controller worker.
type negotiator struct {
	c    *Controller
	sess *session
}

var _ handler.Negotiator = negotiator{}

// AnswerRemoteOffer answers a renegotiation offer. On collision the responder
// rolls back its own pending offer and the initiator keeps it, so exactly one
// offer survives.
func (n negotiator) AnswerRemoteOffer(_ context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	state, sess := n.c.snapshot()
	if sess != n.sess {
		return webrtc.SessionDescription{}, ErrSessionClosed
	}

	switch state {
	case StateActive:
	case StateRenegotiating:
		if sess.role == RoleInitiator {
			sess.logger.Info("offer collision, keeping local offer")
			return webrtc.SessionDescription{}, handler.ErrOfferIgnored
		}

		sess.logger.Info("offer collision, rolling back local offer")
		if err := sess.pc.Rollback(); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("failed to roll back local offer: %w", err)
		}
		sess.renegotiate.Store(true)
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: cannot answer an offer in %s", ErrInvalidState, state)
	}

	if err := sess.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to apply renegotiation offer: %w", err)
	}
	n.c.dumpSDP(sess, "remote-reoffer", offer)

	answer, err := sess.pc.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create renegotiation answer: %w", err)
	}
	n.c.dumpSDP(sess, "local-reanswer", answer)

	if !n.c.transition(sess, StateActive) {
		return webrtc.SessionDescription{}, ErrSessionClosed
	}

	n.c.resumeRenegotiation(sess)

	return answer, nil
}

// ApplyRemoteAnswer completes a renegotiation started locally. An answer
// arriving in any other state is ignored.
func (n negotiator) ApplyRemoteAnswer(_ context.Context, answer webrtc.SessionDescription) error {
	state, sess := n.c.snapshot()
	if sess != n.sess {
		return ErrSessionClosed
	}

	if state != StateRenegotiating {
		sess.logger.Warn("unexpected renegotiation answer ignored", "state", state.String())
		return nil
	}

	if err := sess.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to apply renegotiation answer: %w", err)
	}
	n.c.dumpSDP(sess, "remote-reanswer", answer)

	if !n.c.transition(sess, StateActive) {
		return ErrSessionClosed
	}

	n.c.resumeRenegotiation(sess)

	return nil
}

func (n negotiator) AddRemoteCandidate(_ context.Context, candidate webrtc.ICECandidateInit) error {
	if n.c.currentSession() != n.sess {
		return ErrSessionClosed
	}

	if err := n.sess.pc.AddICECandidate(candidate); err != nil {
		n.sess.logger.Warn("failed to add remote candidate", "candidate", candidate.Candidate, "err", err)
	}

	return nil
}
