// Package controltest provides an in-memory data channel pair for tests of
// code built on control.DataChannel.
package controltest

import (
	"errors"
	"sync"
)

var ErrNotOpen = errors.New("controltest: data channel is not open")

// DataChannel is one end of an in-memory, reliable and ordered channel.
type DataChannel struct {
	label string
	peer  *DataChannel

	mu        sync.Mutex
	open      bool
	closed    bool
	onOpen    func()
	onClose   func()
	onMessage func([]byte)
	sent      [][]byte
	closes    int
}

// NewPipe returns two connected ends. Neither is open until Open is called.
func NewPipe(label string) (*DataChannel, *DataChannel) {
	a := &DataChannel{label: label}
	b := &DataChannel{label: label}
	a.peer = b
	b.peer = a
	return a, b
}

// Open opens both ends and fires their open handlers.
func (d *DataChannel) Open() {
	d.setOpen()
	d.peer.setOpen()
}

func (d *DataChannel) setOpen() {
	d.mu.Lock()
	if d.open || d.closed {
		d.mu.Unlock()
		return
	}
	d.open = true
	handler := d.onOpen
	d.mu.Unlock()

	if handler != nil {
		go handler()
	}
}

func (d *DataChannel) Label() string {
	return d.label
}

func (d *DataChannel) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open && !d.closed
}

// SendText delivers text to the peer's message handler before returning.
func (d *DataChannel) SendText(text string) error {
	if !d.IsOpen() {
		return ErrNotOpen
	}

	b := []byte(text)

	d.mu.Lock()
	d.sent = append(d.sent, b)
	d.mu.Unlock()

	d.peer.deliver(b)

	return nil
}

func (d *DataChannel) deliver(b []byte) {
	d.mu.Lock()
	handler := d.onMessage
	d.mu.Unlock()

	if handler != nil {
		handler(b)
	}
}

// Inject delivers raw bytes to this end as if the peer had sent them.
func (d *DataChannel) Inject(b []byte) {
	d.deliver(b)
}

func (d *DataChannel) OnOpen(handler func()) {
	d.mu.Lock()
	d.onOpen = handler
	open := d.open && !d.closed
	d.mu.Unlock()

	if handler != nil && open {
		go handler()
	}
}

func (d *DataChannel) OnClose(handler func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = handler
}

func (d *DataChannel) OnMessage(handler func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = handler
}

// Close closes both ends.
func (d *DataChannel) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()

	d.setClosed()
	d.peer.setClosed()

	return nil
}

func (d *DataChannel) setClosed() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	handler := d.onClose
	d.mu.Unlock()

	if handler != nil {
		go handler()
	}
}

// Sent returns the raw messages written by this end.
func (d *DataChannel) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([][]byte, len(d.sent))
	copy(out, d.sent)
	return out
}

// Closes returns how many times Close was called on this end.
func (d *DataChannel) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}
