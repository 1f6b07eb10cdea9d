package negotiation

import (
	"context"
	"fmt"

	"github.com/HMasataka/duet/internal/control"
	"github.com/HMasataka/duet/internal/gather"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/HMasataka/duet/pkg/identity"
	"github.com/HMasataka/duet/pkg/sdpdebug"
	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"
)

// BeginAsInitiator starts a new session, gathers candidates and returns the
// offer token for the user to deliver. remoteHint is the identity the user
// expects to answer and is only used for a warning.
func (c *Controller) BeginAsInitiator(ctx context.Context, remoteHint string) (signal.Token, error) {
	return submit(ctx, c, func() (signal.Token, error) {
		return c.beginAsInitiator(ctx, remoteHint)
	})
}

// SupplyRemoteToken accepts a token pasted by the user. While awaiting an
// answer it completes the handshake and returns an empty token. From Idle,
// Closed or AnsweringIncoming it answers the offer and returns the answer
// token.
func (c *Controller) SupplyRemoteToken(ctx context.Context, token signal.Token) (signal.Token, error) {
	return submit(ctx, c, func() (signal.Token, error) {
		switch state := c.State(); state {
		case StateAwaitingAnswer:
			return "", c.acceptAnswer(token)
		case StateIdle, StateClosed, StateAnsweringIncoming:
			return c.answerOffer(ctx, token)
		default:
			return "", fmt.Errorf("%w: cannot accept a token in %s", ErrInvalidState, state)
		}
	})
}

func (c *Controller) beginAsInitiator(ctx context.Context, remoteHint string) (signal.Token, error) {
	from, epoch := c.attempt()
	if from != StateIdle && from != StateClosed {
		return "", fmt.Errorf("%w: cannot initiate in %s", ErrInvalidState, from)
	}

	sess, err := c.createSession(RoleInitiator)
	if err != nil {
		return "", err
	}

	if err := c.install(sess, epoch, StateOffering, remoteHint); err != nil {
		return "", err
	}

	token, err := c.offer(ctx, sess)
	if err != nil {
		sess.logger.Warn("failed to create offer token", "err", err)
		c.release(sess, from)
		return "", err
	}

	if !c.transition(sess, StateAwaitingAnswer) {
		return "", ErrSessionClosed
	}

	return token, nil
}

func (c *Controller) offer(ctx context.Context, sess *session) (signal.Token, error) {
	dc, err := sess.pc.CreateDataChannel(c.options.ControlLabel)
	if err != nil {
		return "", fmt.Errorf("failed to create control channel: %w", err)
	}
	c.attachChannel(sess, dc)

	g := sess.beginGathering(c.options.Gather)

	if _, err := sess.pc.CreateOffer(); err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	sess.renegotiate.Store(false)

	candidates, err := c.gather(ctx, sess, g)
	if err != nil {
		return "", err
	}

	desc, err := sess.pc.LocalDescription()
	if err != nil {
		return "", err
	}
	c.dumpSDP(sess, "local-offer", desc)

	return signal.Encode(signal.NewOfferEnvelope(c.id, desc, candidates))
}

func (c *Controller) acceptAnswer(token signal.Token) error {
	_, sess := c.snapshot()
	if sess == nil {
		return ErrSessionClosed
	}

	envelope, err := signal.Decode(token, signal.KindAnswer)
	if err != nil {
		sess.logger.Warn("rejected answer token", "err", err)
		return err
	}

	if err := sess.pc.SetRemoteDescription(envelope.Description); err != nil {
		sess.logger.Warn("failed to apply answer", "err", err)
		return fmt.Errorf("failed to apply answer: %w", err)
	}
	c.dumpSDP(sess, "remote-answer", envelope.Description)

	c.applyCandidates(sess, envelope.Candidates)
	c.setRemoteIdentity(sess, envelope.SenderIdentity)

	if !c.transition(sess, StateActive) {
		return ErrSessionClosed
	}

	c.resumeRenegotiation(sess)

	return nil
}

func (c *Controller) answerOffer(ctx context.Context, token signal.Token) (signal.Token, error) {
	envelope, err := signal.Decode(token, signal.KindOffer)
	if err != nil {
		c.logger.Warn("rejected offer token", "err", err)
		return "", err
	}

	c.release(nil, StateAnsweringIncoming)
	_, epoch := c.attempt()

	sess, err := c.createSession(RoleResponder)
	if err != nil {
		return "", err
	}

	if err := c.install(sess, epoch, StateAnsweringIncoming, ""); err != nil {
		return "", err
	}

	answer, err := c.answer(ctx, sess, envelope)
	if err != nil {
		sess.logger.Warn("failed to answer offer", "err", err)
		c.release(sess, StateAnsweringIncoming)
		return "", err
	}

	c.setRemoteIdentity(sess, envelope.SenderIdentity)

	if !c.transition(sess, StateActive) {
		return "", ErrSessionClosed
	}

	return answer, nil
}

func (c *Controller) answer(ctx context.Context, sess *session, offer signal.Envelope) (signal.Token, error) {
	if err := sess.pc.SetRemoteDescription(offer.Description); err != nil {
		return "", fmt.Errorf("failed to apply offer: %w", err)
	}
	c.dumpSDP(sess, "remote-offer", offer.Description)

	c.applyCandidates(sess, offer.Candidates)

	g := sess.beginGathering(c.options.Gather)

	if _, err := sess.pc.CreateAnswer(); err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	candidates, err := c.gather(ctx, sess, g)
	if err != nil {
		return "", err
	}

	desc, err := sess.pc.LocalDescription()
	if err != nil {
		return "", err
	}
	c.dumpSDP(sess, "local-answer", desc)

	return signal.Encode(signal.NewAnswerEnvelope(c.id, desc, candidates))
}

// gather waits for the round g of sess. A step whose session is released
// while waiting fails with ErrSessionClosed.
func (c *Controller) gather(ctx context.Context, sess *session, g *gather.Gatherer) ([]webrtc.ICECandidateInit, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	result := g.Wait(ctx)

	if sess.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	if result.Reason == gather.ReasonCancelled {
		return nil, ctx.Err()
	}

	sess.logger.Info("candidates gathered",
		"count", len(result.Candidates),
		"reason", result.Reason,
		"elapsed", result.Elapsed,
	)

	return result.Candidates, nil
}

// applyCandidates adds remote candidates in order. A candidate the transport
// rejects is logged and skipped.
func (c *Controller) applyCandidates(sess *session, candidates []webrtc.ICECandidateInit) {
	for i, candidate := range candidates {
		if err := sess.pc.AddICECandidate(candidate); err != nil {
			sess.logger.Warn("failed to add remote candidate", "index", i, "candidate", candidate.Candidate, "err", err)
		}
	}
}

func (c *Controller) createSession(role Role) (*session, error) {
	id := xid.New().String()

	pc, err := c.factory(id)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	sess := newSession(id, role, pc, c.logger)
	c.watch(sess)

	return sess, nil
}

// install makes sess the live session, releasing any previous one. When the
// controller was released after epoch was taken, sess is closed instead.
func (c *Controller) install(sess *session, epoch uint64, to State, remoteHint string) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		sess.close()
		sess.logger.Info("session discarded after teardown")
		return ErrSessionClosed
	}
	previous := c.session
	from := c.state
	c.session = sess
	c.role = sess.role
	c.state = to
	c.remoteHint = remoteHint
	c.remoteIdentity = ""
	c.mu.Unlock()

	if previous != nil && previous.close() {
		c.notifyMedia(MediaNotSharing)
	}

	sess.logger.Info("session started")

	c.notifyState(from, to)

	return nil
}

func (c *Controller) setRemoteIdentity(sess *session, remote identity.PeerIdentity) {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	hint := c.remoteHint
	c.remoteIdentity = remote
	c.mu.Unlock()

	sess.logger.Info("remote peer identified", "remote", remote.String())

	if hint != "" && hint != remote.String() {
		sess.logger.Warn("remote identity differs from the expected peer", "expected", hint, "remote", remote.String())
	}
}

// watch subscribes the controller to the transport events of sess.
func (c *Controller) watch(sess *session) {
	sess.pc.OnICECandidate(sess.handleCandidate)

	sess.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.handleConnectionState(sess, state)
	})

	sess.pc.OnNegotiationNeeded(func() {
		c.requestRenegotiation(sess)
	})

	sess.pc.OnTrack(func(track *webrtc.TrackRemote) {
		sess.logger.Info("remote track", "kind", track.Kind().String(), "id", track.ID())

		if c.options.OnRemoteTrack != nil {
			c.options.OnRemoteTrack(track)
		}
	})

	sess.pc.OnDataChannel(func(dc control.DataChannel) {
		if dc.Label() != c.options.ControlLabel {
			sess.logger.Warn("unexpected data channel", "label", dc.Label())
			return
		}

		c.attachChannel(sess, dc)
	})
}

func (c *Controller) attachChannel(sess *session, dc control.DataChannel) {
	ch := control.NewChannel(sess.ctx, dc, control.NewControlRouter(negotiator{c: c, sess: sess}), control.ChannelOptions{
		Dispatch: c.dispatch,
		OnOpen: func() {
			c.resumeRenegotiation(sess)
		},
		OnError: func(err error) {
			c.fail(sess, err)
		},
		Logger: sess.logger,
	})

	if !sess.attachChannel(ch) {
		sess.logger.Warn("duplicate control channel closed", "label", dc.Label())
		if err := ch.Close(); err != nil {
			sess.logger.Debug("failed to close duplicate control channel", "err", err)
		}
	}
}

func (c *Controller) handleConnectionState(sess *session, state webrtc.PeerConnectionState) {
	sess.logger.Info("connection state changed", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnecting:
		c.notifyStatus(StatusConnecting)
	case webrtc.PeerConnectionStateConnected:
		c.notifyStatus(StatusConnected)
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		go c.linkLost(sess, state)
	}
}

func (c *Controller) linkLost(sess *session, state webrtc.PeerConnectionState) {
	if c.currentSession() != sess {
		return
	}

	sess.logger.Error("session ended", "err", fmt.Errorf("%w: connection %s", ErrLinkLost, state))
	c.release(sess, StateClosed)
}

func (c *Controller) dumpSDP(sess *session, label string, desc webrtc.SessionDescription) {
	sdpdebug.LogSDP(sess.logger, label, desc)

	if c.options.SDPDumpDir == "" {
		return
	}

	path, err := sdpdebug.SaveSDP(c.options.SDPDumpDir, sess.id+"-"+label, desc)
	if err != nil {
		sess.logger.Warn("failed to save sdp", "label", label, "err", err)
		return
	}

	sess.logger.Debug("sdp saved", "label", label, "path", path)
}
