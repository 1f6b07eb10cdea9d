package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/HMasataka/duet/payload/signal"
	"github.com/HMasataka/logging"
	"github.com/sourcegraph/jsonrpc2"
)

// Label is the data channel label the initiator opens for control traffic.
const Label = "signaling"

type ChannelOptions struct {
	// Dispatch hands message handling to the owner's mailbox and reports
	// whether the task was accepted. Handlers run inline when nil.
	Dispatch func(task func()) bool
	OnOpen   func()
	OnClose  func()
	// OnError receives handler failures. The channel stays open.
	OnError func(error)
	Logger  *slog.Logger
}

// Channel carries control messages as JSON-RPC notifications over a data
// channel and routes received ones by kind.
type Channel struct {
	dc      DataChannel
	router  *Router
	options ChannelOptions
	logger  *slog.Logger

	stream *stream
	conn   *jsonrpc2.Conn
	cancel context.CancelFunc

	openOnce  sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

func NewChannel(ctx context.Context, dc DataChannel, router *Router, options ChannelOptions) *Channel {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("channel", dc.Label())

	ctx, cancel := context.WithCancel(ctx)

	c := &Channel{
		dc:      dc,
		router:  router,
		options: options,
		logger:  logger,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}

	c.stream = newStream(dc, logger)
	dc.OnMessage(c.stream.push)
	dc.OnClose(c.handleClose)

	c.conn = jsonrpc2.NewConn(ctx, c.stream, channelHandler{channel: c})
	go func() {
		<-c.conn.DisconnectNotify()
		c.Close()
	}()

	dc.OnOpen(c.handleOpen)

	return c
}

func (c *Channel) Label() string {
	return c.dc.Label()
}

// IsOpen reports whether Send can deliver messages.
func (c *Channel) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return c.dc.IsOpen()
	}
}

// Done is closed once the channel is closed by either side.
func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Send delivers msg to the peer. Messages arrive in send order.
func (c *Channel) Send(ctx context.Context, msg *signal.ControlMessage) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}

	if err := msg.Validate(); err != nil {
		return err
	}

	if err := c.conn.Notify(ctx, msg.Kind.String(), msg); err != nil {
		if errors.Is(err, jsonrpc2.ErrClosed) {
			return ErrChannelNotOpen
		}
		return err
	}

	c.logger.Debug("control message sent", "kind", msg.Kind, "id", msg.ID)

	return nil
}

// Close closes the connection and the underlying data channel. It is safe to
// call more than once.
func (c *Channel) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()

		if closeErr := c.conn.Close(); closeErr != nil && !errors.Is(closeErr, jsonrpc2.ErrClosed) {
			err = closeErr
		}

		if c.options.OnClose != nil {
			c.options.OnClose()
		}
	})

	return err
}

func (c *Channel) handleOpen() {
	c.openOnce.Do(func() {
		c.logger.Info("control channel open")

		if c.options.OnOpen != nil {
			c.options.OnOpen()
		}
	})
}

func (c *Channel) handleClose() {
	c.logger.Info("control channel closed")
	c.stream.shutdown()
	c.Close()
}

func (c *Channel) receive(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !req.Notif {
		err := &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "control channel accepts notifications only"}
		if replyErr := conn.ReplyWithError(ctx, req.ID, err); replyErr != nil {
			c.logger.Error("failed to send error reply", "err", replyErr)
		}
		return
	}

	if req.Params == nil {
		c.logger.Warn("control message without params", "method", req.Method)
		return
	}

	var msg signal.ControlMessage
	if err := json.Unmarshal(*req.Params, &msg); err != nil {
		c.logger.Warn("invalid control message", "method", req.Method, "err", err)
		return
	}

	if msg.Kind.String() != req.Method {
		c.logger.Warn("control message kind does not match method", "method", req.Method, "kind", msg.Kind)
		return
	}

	if logging.HasLoggingContext(ctx) {
		c.logger.DebugContext(ctx, "control message received", "kind", msg.Kind, "id", msg.ID)
	}

	task := func() {
		c.handle(ctx, &msg)
	}

	if c.options.Dispatch == nil {
		task()
		return
	}

	if !c.options.Dispatch(task) {
		c.logger.Warn("control message dropped", "kind", msg.Kind, "id", msg.ID)
	}
}

func (c *Channel) handle(ctx context.Context, msg *signal.ControlMessage) {
	response, err := c.router.Handle(ctx, msg)
	if err != nil {
		c.fail(err)
		return
	}

	if response == nil {
		return
	}

	if err := c.Send(ctx, response); err != nil {
		c.fail(err)
	}
}

func (c *Channel) fail(err error) {
	c.logger.Error("failed to handle control message", "err", err)

	if c.options.OnError != nil {
		c.options.OnError(err)
	}
}

type channelHandler struct {
	channel *Channel
}

func (h channelHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.channel.receive(ctx, conn, req)
}
