package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/HMasataka/duet/pkg/retry"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/transport/v3"
)

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Forward relays packets read from track to addr over UDP until the track
// ends or ctx is cancelled. A packet the sink refuses, typically because it is
// not listening yet, is written again after a backoff.
func Forward(ctx context.Context, n transport.Net, track RTPReader, addr string) error {
	cfg := retry.DefaultConfig()

	var conn net.Conn
	err := retry.Do(ctx, cfg, func(int) error {
		var err error
		conn, err = n.Dial("udp", addr)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to dial sink %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	buf := make([]byte, maxPacketSize)

	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		size, err := packet.MarshalTo(buf)
		if err != nil {
			return fmt.Errorf("failed to marshal RTP: %w", err)
		}

		if err := send(ctx, cfg, conn, buf[:size]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sink %s refused packets: %w", addr, err)
		}
	}
}

// send writes payload to conn, backing off between writes the sink refused.
func send(ctx context.Context, cfg retry.Config, conn net.Conn, payload []byte) error {
	d := &delivery{conn: conn, payload: payload}

	if err := retry.Run(ctx, cfg, d); err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return errors.Join(err, d.err)
		}
		return err
	}

	return d.err
}

// delivery is one packet write driven by retry.Run.
type delivery struct {
	conn    net.Conn
	payload []byte
	waiting bool
	fatal   bool
	err     error
}

func (d *delivery) DetermineAction() retry.Action {
	switch {
	case d.waiting:
		d.waiting = false
		return retry.Wait
	case d.fatal:
		return retry.Abort
	default:
		return retry.Execute
	}
}

func (d *delivery) Execute(int) bool {
	_, d.err = d.conn.Write(d.payload)
	if d.err == nil {
		return true
	}

	if retry.ShouldRetry(d.err) {
		d.waiting = true
	} else {
		d.fatal = true
	}

	return false
}
