package negotiation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/duet/internal/control"
	"github.com/HMasataka/duet/internal/gather"
	"github.com/HMasataka/duet/pkg/identity"
	"github.com/HMasataka/duet/pkg/media"
	"github.com/bep/debounce"
	"github.com/gammazero/workerpool"
	"github.com/pion/webrtc/v4"
)

const defaultRenegotiationDebounce = 250 * time.Millisecond

type Options struct {
	Gather gather.Options
	// RenegotiationDebounce coalesces bursts of media changes into one offer.
	RenegotiationDebounce time.Duration
	ControlLabel          string
	// SDPDumpDir receives a copy of every applied description when set.
	SDPDumpDir string

	OnStateChange func(from, to State)
	OnStatus      func(Status)
	OnMediaStatus func(MediaStatus)
	OnRemoteTrack func(*webrtc.TrackRemote)

	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Gather:                gather.DefaultOptions(),
		RenegotiationDebounce: defaultRenegotiationDebounce,
		ControlLabel:          control.Label,
	}
}

// Controller owns at most one negotiation session and drives it through the
// offer, answer and renegotiation lifecycle. Operations and control messages
// are serialized on a single worker.
type Controller struct {
	id       identity.PeerIdentity
	factory  PeerConnectionFactory
	provider media.Provider
	options  Options
	logger   *slog.Logger

	worker    *workerpool.WorkerPool
	submitMu  sync.RWMutex
	stopped   bool
	debounced func(func())

	mu             sync.Mutex
	epoch          uint64 // advances on every release
	state          State
	role           Role
	session        *session
	remoteHint     string
	remoteIdentity identity.PeerIdentity
}

func NewController(id identity.PeerIdentity, factory PeerConnectionFactory, provider media.Provider, options Options) *Controller {
	defaults := DefaultOptions()
	if options.RenegotiationDebounce <= 0 {
		options.RenegotiationDebounce = defaults.RenegotiationDebounce
	}
	if options.ControlLabel == "" {
		options.ControlLabel = defaults.ControlLabel
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Controller{
		id:        id,
		factory:   factory,
		provider:  provider,
		options:   options,
		logger:    options.Logger.With("peer", id.String()),
		worker:    workerpool.New(1),
		debounced: debounce.New(options.RenegotiationDebounce),
		state:     StateIdle,
	}
}

func (c *Controller) Identity() identity.PeerIdentity {
	return c.id
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// RemoteIdentity returns the identity carried by the last accepted remote token.
func (c *Controller) RemoteIdentity() identity.PeerIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteIdentity
}

// Sharing reports whether local media is attached to the live session.
func (c *Controller) Sharing() bool {
	sess := c.currentSession()
	return sess != nil && sess.sharing()
}

// Teardown releases the live session, if any, and leaves the controller in
// StateClosed. It may be called from any state and any goroutine, including
// while another operation is suspended.
func (c *Controller) Teardown() {
	c.release(nil, StateClosed)
}

// Close tears down and stops the worker. Later operations fail with
// ErrControllerClosed.
func (c *Controller) Close() {
	c.submitMu.Lock()
	if c.stopped {
		c.submitMu.Unlock()
		return
	}
	c.stopped = true
	c.submitMu.Unlock()

	c.Teardown()
	c.worker.StopWait()
}

type result[T any] struct {
	value T
	err   error
}

// submit runs fn on the worker and waits for it. ctx bounds the wait for a
// queued fn only; once fn has started its result is returned, and fn observes
// ctx itself.
func submit[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	var zero T

	done := make(chan result[T], 1)
	var claimed atomic.Bool

	accepted := c.dispatch(func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		if err := ctx.Err(); err != nil {
			done <- result[T]{err: err}
			return
		}
		v, err := fn()
		done <- result[T]{value: v, err: err}
	})
	if !accepted {
		return zero, ErrControllerClosed
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return zero, ctx.Err()
		}
		r := <-done
		return r.value, r.err
	}
}

// dispatch queues task on the worker unless the controller is closed.
func (c *Controller) dispatch(task func()) bool {
	c.submitMu.RLock()
	defer c.submitMu.RUnlock()

	if c.stopped {
		return false
	}

	c.worker.Submit(task)
	return true
}

func (c *Controller) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// attempt returns the state and epoch a new step starts from.
func (c *Controller) attempt() (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.epoch
}

func (c *Controller) snapshot() (State, *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.session
}

// transition moves to state to when sess is still the live session.
func (c *Controller) transition(sess *session, to State) bool {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = to
	c.mu.Unlock()

	c.notifyState(from, to)

	return true
}

// release detaches the session and moves to state to. A non-nil sess is only
// released while it is still the live session.
func (c *Controller) release(sess *session, to State) {
	c.mu.Lock()
	if sess != nil && c.session != sess {
		c.mu.Unlock()
		return
	}
	current := c.session
	c.session = nil
	c.epoch++
	from := c.state
	c.state = to
	c.mu.Unlock()

	if current != nil && current.close() {
		c.notifyMedia(MediaNotSharing)
	}

	c.notifyState(from, to)
}

// fail ends sess after an error in an active session.
func (c *Controller) fail(sess *session, err error) {
	sess.logger.Error("session failed", "err", err)
	c.release(sess, StateClosed)
}

func (c *Controller) notifyState(from, to State) {
	if from == to {
		return
	}

	c.logger.Info("state changed", "from", from.String(), "to", to.String())

	if c.options.OnStateChange != nil {
		c.options.OnStateChange(from, to)
	}

	c.notifyStatus(to.Status())
}

func (c *Controller) notifyStatus(status Status) {
	if c.options.OnStatus != nil {
		c.options.OnStatus(status)
	}
}

func (c *Controller) notifyMedia(status MediaStatus) {
	c.logger.Info("media status", "status", status)

	if c.options.OnMediaStatus != nil {
		c.options.OnMediaStatus(status)
	}
}
