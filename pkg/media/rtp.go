package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	pkgwebrtc "github.com/HMasataka/duet/pkg/webrtc"
	"github.com/pion/rtp"
	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

const (
	streamID = "duet-share"

	maxPacketSize = 1500
)

// RTPProvider captures media by listening for RTP packets on local UDP ports.
type RTPProvider struct {
	config Config
	net    transport.Net
	logger *slog.Logger
}

// NewRTPProvider uses n for sockets, or the host network when n is nil.
func NewRTPProvider(config Config, n transport.Net, logger *slog.Logger) (*RTPProvider, error) {
	if n == nil {
		stdNet, err := stdnet.NewNet()
		if err != nil {
			return nil, err
		}
		n = stdNet
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RTPProvider{
		config: config,
		net:    n,
		logger: logger.With("component", "media"),
	}, nil
}

type trackSpec struct {
	id       string
	addr     string
	codec    webrtc.RTPCodecCapability
	optional bool
}

// Acquire opens the requested sources. Video is the primary track; when it is
// requested but not configured the request counts as declined. A microphone
// that cannot be opened is skipped with a warning.
func (p *RTPProvider) Acquire(ctx context.Context, options Options) (Source, error) {
	if !options.Video && !options.SystemAudio && !options.Microphone {
		return nil, fmt.Errorf("%w: nothing selected", ErrMediaAccessDenied)
	}

	var specs []trackSpec
	if options.Video {
		if p.config.VideoAddr == "" {
			return nil, fmt.Errorf("%w: video capture is disabled", ErrMediaAccessDenied)
		}
		specs = append(specs, trackSpec{id: "screen-video", addr: p.config.VideoAddr, codec: pkgwebrtc.GetVP8Codec()})
	}
	if options.SystemAudio && p.config.SystemAudioAddr != "" {
		specs = append(specs, trackSpec{id: "system-audio", addr: p.config.SystemAudioAddr, codec: pkgwebrtc.GetOpusCodec()})
	}
	if options.Microphone && p.config.MicrophoneAddr != "" {
		specs = append(specs, trackSpec{id: "microphone", addr: p.config.MicrophoneAddr, codec: pkgwebrtc.GetOpusCodec(), optional: true})
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no configured source", ErrMediaAccessDenied)
	}

	source := &rtpSource{
		done:   make(chan struct{}),
		idle:   time.Duration(p.config.IdleTimeout) * time.Second,
		logger: p.logger,
	}

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			source.Stop()
			return nil, fmt.Errorf("%w: %v", ErrMediaAccessFailed, err)
		}

		track, err := p.open(spec)
		if err != nil {
			if spec.optional {
				p.logger.Warn("optional source unavailable", "track", spec.id, "err", err)
				continue
			}
			source.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrMediaAccessFailed, spec.id, err)
		}

		source.tracks = append(source.tracks, track)
	}

	source.start()

	p.logger.Info("capture started", "tracks", lo.Map(source.tracks, func(t *rtpTrack, _ int) string {
		return t.local.ID()
	}))

	return source, nil
}

func (p *RTPProvider) open(spec trackSpec) (*rtpTrack, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(spec.codec, spec.id, streamID)
	if err != nil {
		return nil, err
	}

	conn, err := p.net.ListenPacket("udp", spec.addr)
	if err != nil {
		return nil, err
	}

	return &rtpTrack{local: local, conn: conn}, nil
}

type rtpTrack struct {
	local *webrtc.TrackLocalStaticRTP
	conn  net.PacketConn
}

type rtpSource struct {
	tracks []*rtpTrack
	idle   time.Duration
	logger *slog.Logger

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

func (s *rtpSource) Tracks() []webrtc.TrackLocal {
	return lo.Map(s.tracks, func(t *rtpTrack, _ int) webrtc.TrackLocal {
		return t.local
	})
}

func (s *rtpSource) Done() <-chan struct{} {
	return s.done
}

func (s *rtpSource) Stop() {
	s.stopOnce.Do(func() {
		for _, t := range s.tracks {
			if err := t.conn.Close(); err != nil {
				s.logger.Debug("failed to close capture socket", "track", t.local.ID(), "err", err)
			}
		}
		s.wg.Wait()
		s.finish()
	})
}

func (s *rtpSource) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

func (s *rtpSource) start() {
	for i, t := range s.tracks {
		primary := i == 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			err := s.pump(t)
			s.logger.Info("capture track ended", "track", t.local.ID(), "err", err)

			if primary {
				s.finish()
			}
		}()
	}
}

// pump copies RTP packets from the socket to the local track until the socket
// is closed or stays silent longer than the idle timeout.
func (s *rtpSource) pump(t *rtpTrack) error {
	buf := make([]byte, maxPacketSize)

	for {
		if s.idle > 0 {
			if err := t.conn.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
				return err
			}
		}

		n, _, err := t.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		var packet rtp.Packet
		if err := packet.Unmarshal(buf[:n]); err != nil {
			s.logger.Debug("dropping non-RTP datagram", "track", t.local.ID(), "err", err)
			continue
		}

		if err := t.local.WriteRTP(&packet); err != nil {
			s.logger.Debug("failed to write RTP", "track", t.local.ID(), "err", err)
		}
	}
}
