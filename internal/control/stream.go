package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/gammazero/deque"
)

// DataChannel is the reliable, ordered transport the control channel runs on.
type DataChannel interface {
	Label() string
	IsOpen() bool
	SendText(text string) error
	OnOpen(handler func())
	OnClose(handler func())
	OnMessage(handler func([]byte))
	Close() error
}

// stream adapts a DataChannel to jsonrpc2.ObjectStream. Each data channel
// message carries exactly one JSON-RPC object.
type stream struct {
	dc     DataChannel
	logger *slog.Logger

	mu      sync.Mutex
	inbound deque.Deque[[]byte]

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newStream(dc DataChannel, logger *slog.Logger) *stream {
	return &stream{
		dc:     dc,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push queues a message received from the data channel.
func (s *stream) push(data []byte) {
	b := make([]byte, len(data))
	copy(b, data)

	s.mu.Lock()
	s.inbound.PushBack(b)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inbound.Len() == 0 {
		return nil, false
	}

	return s.inbound.PopFront(), true
}

func (s *stream) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbound.Len()
}

// WriteObject implements jsonrpc2.ObjectStream.
func (s *stream) WriteObject(obj interface{}) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	return s.dc.SendText(string(b))
}

// ReadObject implements jsonrpc2.ObjectStream. Undecodable messages are
// skipped so a single bad frame does not close the connection.
func (s *stream) ReadObject(v interface{}) error {
	for {
		if b, ok := s.pop(); ok {
			if err := json.Unmarshal(b, v); err != nil {
				s.logger.Warn("dropping undecodable control frame", "err", err, "size", len(b))
				continue
			}
			return nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			if s.pending() == 0 {
				return io.EOF
			}
		}
	}
}

// shutdown unblocks readers once the data channel is gone.
func (s *stream) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Close implements jsonrpc2.ObjectStream.
func (s *stream) Close() error {
	s.shutdown()
	return s.dc.Close()
}
