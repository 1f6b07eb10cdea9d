package negotiation

import (
	"context"
	"errors"
	"fmt"

	"github.com/HMasataka/duet/pkg/media"
	"github.com/pion/webrtc/v4"
)

// StartSharing captures local media and adds it to the active session. A
// denied capture is reported as not sharing and returned unchanged so the
// caller can tell it apart from a failure.
func (c *Controller) StartSharing(ctx context.Context, options media.Options) error {
	sess, err := c.shareTarget()
	if err != nil {
		return err
	}

	if c.provider == nil {
		return fmt.Errorf("%w: no media provider", media.ErrMediaAccessFailed)
	}

	source, err := c.provider.Acquire(ctx, options)
	if errors.Is(err, media.ErrMediaAccessDenied) {
		sess.logger.Info("media access denied")
		c.notifyMedia(MediaNotSharing)
		return err
	}
	if err != nil {
		if !errors.Is(err, media.ErrMediaAccessFailed) {
			err = fmt.Errorf("%w: %w", media.ErrMediaAccessFailed, err)
		}
		sess.logger.Warn("media access failed", "err", err)
		return err
	}

	// Once queued the attachment must finish so the source is either owned by
	// the session or stopped here.
	_, err = submit(context.Background(), c, func() (struct{}, error) {
		return struct{}{}, c.attachSource(sess, source)
	})
	if err != nil {
		source.Stop()
		return err
	}

	c.notifyMedia(MediaSharing)

	go c.watchSource(sess, source)

	c.requestRenegotiation(sess)

	return nil
}

// StopSharing removes local media from the session and renegotiates. It does
// nothing when nothing is shared.
func (c *Controller) StopSharing() {
	_, err := submit(context.Background(), c, func() (struct{}, error) {
		sess := c.currentSession()
		if sess == nil {
			return struct{}{}, nil
		}

		c.stopSource(sess, nil)

		return struct{}{}, nil
	})
	if err != nil {
		c.logger.Warn("failed to stop sharing", "err", err)
	}
}

func (c *Controller) shareTarget() (*session, error) {
	state, sess := c.snapshot()
	if sess == nil || (state != StateActive && state != StateRenegotiating) {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, state)
	}

	if sess.sharing() {
		return nil, ErrAlreadySharing
	}

	return sess, nil
}

// attachSource runs on the worker and adds every track of source to sess.
func (c *Controller) attachSource(sess *session, source media.Source) error {
	current, err := c.shareTarget()
	if err != nil {
		return err
	}
	if current != sess {
		return ErrSessionClosed
	}

	senders := make([]*webrtc.RTPSender, 0, len(source.Tracks()))

	for _, track := range source.Tracks() {
		sender, err := sess.pc.AddTrack(track)
		if err != nil {
			c.removeSenders(sess, senders)
			return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
		}

		senders = append(senders, sender)
	}

	sess.setSource(source, senders)

	sess.logger.Info("sharing started", "tracks", len(senders))

	return nil
}

// watchSource stops sharing when source ends on its own.
func (c *Controller) watchSource(sess *session, source media.Source) {
	select {
	case <-source.Done():
		sess.logger.Info("media source ended")

		c.dispatch(func() {
			c.stopSource(sess, source)
		})
	case <-sess.ctx.Done():
	}
}

// stopSource runs on the worker. A nil want stops whatever is shared.
func (c *Controller) stopSource(sess *session, want media.Source) {
	source, senders := sess.detachSource(want)
	if source == nil {
		return
	}

	c.removeSenders(sess, senders)
	source.Stop()

	sess.logger.Info("sharing stopped")
	c.notifyMedia(MediaNotSharing)

	if c.currentSession() == sess {
		c.requestRenegotiation(sess)
	}
}

func (c *Controller) removeSenders(sess *session, senders []*webrtc.RTPSender) {
	for _, sender := range senders {
		if err := sess.pc.RemoveTrack(sender); err != nil {
			sess.logger.Warn("failed to remove track", "err", err)
		}
	}
}
