package webrtc

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

var ErrDataChannelNotOpen = errors.New("data channel is not open")

// DataChannel adapts a pion data channel to text message handlers that can be
// replaced after the channel was created.
type DataChannel struct {
	dc     *webrtc.DataChannel
	logger *slog.Logger

	mu        sync.RWMutex
	onOpen    func()
	onClose   func()
	onMessage func([]byte)

	messagesSent atomic.Int64
	messagesRecv atomic.Int64
	bytesSent    atomic.Int64
	bytesRecv    atomic.Int64
	dropped      atomic.Int64
}

// DataChannelStats counts text traffic on a channel. Dropped counts binary
// messages, which are not delivered.
type DataChannelStats struct {
	Label        string
	MessagesSent int64
	MessagesRecv int64
	BytesSent    int64
	BytesRecv    int64
	Dropped      int64
}

func newDataChannel(dc *webrtc.DataChannel, logger *slog.Logger) *DataChannel {
	d := &DataChannel{
		dc:     dc,
		logger: logger.With("label", dc.Label()),
	}

	dc.OnOpen(func() {
		if handler := d.handler(&d.onOpen); handler != nil {
			handler()
		}
	})

	dc.OnClose(func() {
		if handler := d.handler(&d.onClose); handler != nil {
			handler()
		}
	})

	dc.OnMessage(d.receive)

	dc.OnError(func(err error) {
		d.logger.Warn("data channel error", "err", err)
	})

	return d
}

func (d *DataChannel) handler(h *func()) func() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return *h
}

func (d *DataChannel) receive(msg webrtc.DataChannelMessage) {
	if !msg.IsString {
		d.dropped.Add(1)
		d.logger.Debug("binary message dropped", "size", len(msg.Data))
		return
	}

	d.messagesRecv.Add(1)
	d.bytesRecv.Add(int64(len(msg.Data)))

	d.mu.RLock()
	handler := d.onMessage
	d.mu.RUnlock()

	if handler != nil {
		handler(msg.Data)
	}
}

func (d *DataChannel) Label() string {
	return d.dc.Label()
}

func (d *DataChannel) IsOpen() bool {
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (d *DataChannel) SendText(text string) error {
	if !d.IsOpen() {
		return ErrDataChannelNotOpen
	}

	if err := d.dc.SendText(text); err != nil {
		return err
	}

	d.messagesSent.Add(1)
	d.bytesSent.Add(int64(len(text)))

	return nil
}

func (d *DataChannel) Close() error {
	d.logger.Debug("data channel closing", "stats", d.GetStats())
	return d.dc.Close()
}

func (d *DataChannel) GetStats() DataChannelStats {
	return DataChannelStats{
		Label:        d.dc.Label(),
		MessagesSent: d.messagesSent.Load(),
		MessagesRecv: d.messagesRecv.Load(),
		BytesSent:    d.bytesSent.Load(),
		BytesRecv:    d.bytesRecv.Load(),
		Dropped:      d.dropped.Load(),
	}
}

// OnOpen runs handler once the channel opens, or right away when it already is.
func (d *DataChannel) OnOpen(handler func()) {
	d.mu.Lock()
	d.onOpen = handler
	d.mu.Unlock()

	if handler != nil && d.IsOpen() {
		go handler()
	}
}

func (d *DataChannel) OnClose(handler func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = handler
}

// OnMessage receives the payload of every text message.
func (d *DataChannel) OnMessage(handler func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = handler
}
