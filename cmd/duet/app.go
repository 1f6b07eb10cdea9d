package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/HMasataka/duet/internal/config"
	"github.com/HMasataka/duet/internal/negotiation"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/HMasataka/duet/pkg/identity"
	"github.com/HMasataka/duet/pkg/media"
	pkgwebrtc "github.com/HMasataka/duet/pkg/webrtc"
	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
)

type role int

const (
	roleInitiator role = iota
	roleResponder
)

type app struct {
	config     config.Config
	logger     *slog.Logger
	logCloser  io.Closer
	net        transport.Net
	controller *negotiation.Controller
	console    *console
	closed     chan struct{}
}

func newApp(ctx context.Context, options Options) (*app, error) {
	cfg, err := config.Load(options.Config)
	if err != nil {
		return nil, err
	}
	if options.Debug {
		cfg.Log.Level = "debug"
	}

	logger, closer, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	n, err := stdnet.NewNet()
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to open network: %w", err)
	}

	pcOptions, err := pkgwebrtc.NewPeerConnectionOptions(cfg.WebRTC)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	pcOptions.Logger = logger

	provider, err := media.NewRTPProvider(cfg.Media, n, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	a := &app{
		config:    cfg,
		logger:    logger,
		logCloser: closer,
		net:       n,
		console:   newConsole(),
		closed:    make(chan struct{}, 1),
	}

	negOptions := cfg.NegotiationOptions(logger)
	negOptions.OnStateChange = a.onStateChange
	negOptions.OnStatus = a.onStatus
	negOptions.OnMediaStatus = a.onMediaStatus
	negOptions.OnRemoteTrack = func(track *webrtc.TrackRemote) {
		a.forward(ctx, track)
	}

	id := identity.Generate()
	a.controller = negotiation.NewController(id, negotiation.NewPionFactory(pcOptions), provider, negOptions)

	pterm.Info.Printfln("Your identity: %s", id)

	return a, nil
}

func (a *app) close() {
	a.controller.Close()
	_ = a.logCloser.Close()
}

func (a *app) run(ctx context.Context, r role, peer string) error {
	var err error

	switch r {
	case roleInitiator:
		err = a.initiate(ctx, peer)
	case roleResponder:
		err = a.respond(ctx)
	}
	if err != nil {
		return err
	}

	return a.interact(ctx)
}

func (a *app) initiate(ctx context.Context, peer string) error {
	spinner := a.console.spin("Gathering candidates")
	token, err := a.controller.BeginAsInitiator(ctx, peer)
	spinner.stop(err)
	if err != nil {
		return err
	}

	a.console.showToken("Send this offer token to the other peer", token)

	for {
		answer, err := a.console.readToken(ctx, "Paste the answer token")
		if err != nil {
			return err
		}

		if _, err := a.controller.SupplyRemoteToken(ctx, answer); err != nil {
			if retryable(err) {
				pterm.Warning.Printfln("Rejected: %v", err)
				continue
			}
			return err
		}

		return nil
	}
}

func (a *app) respond(ctx context.Context) error {
	for {
		offer, err := a.console.readToken(ctx, "Paste the offer token")
		if err != nil {
			return err
		}

		spinner := a.console.spin("Gathering candidates")
		answer, err := a.controller.SupplyRemoteToken(ctx, offer)
		spinner.stop(err)
		if err != nil {
			if retryable(err) || a.controller.State() == negotiation.StateAnsweringIncoming {
				pterm.Warning.Printfln("Rejected: %v", err)
				continue
			}
			return err
		}

		a.console.showToken("Send this answer token back to the other peer", answer)

		return nil
	}
}

// retryable reports whether the user may paste another token after err.
func retryable(err error) bool {
	return errors.Is(err, signal.ErrMalformed) || errors.Is(err, signal.ErrUnexpectedKind)
}

func (a *app) interact(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.closed:
			pterm.Warning.Println("Session closed")
			return nil
		default:
		}

		choice, err := a.console.choose(ctx)
		if err != nil {
			return err
		}

		switch choice {
		case commandShare:
			err := a.controller.StartSharing(ctx, media.DefaultOptions())
			switch {
			case errors.Is(err, media.ErrMediaAccessDenied):
				pterm.Info.Println("Nothing to share")
			case err != nil:
				pterm.Error.Printfln("Sharing failed: %v", err)
			}
		case commandStop:
			a.controller.StopSharing()
		case commandRenegotiate:
			a.controller.BeginRenegotiation(ctx)
		case commandStatus:
			a.console.showStatus(a.controller)
		case commandQuit:
			return nil
		}
	}
}

func (a *app) onStateChange(_, to negotiation.State) {
	if to == negotiation.StateClosed {
		select {
		case a.closed <- struct{}{}:
		default:
		}
	}
}

func (a *app) onStatus(status negotiation.Status) {
	switch status {
	case negotiation.StatusConnected:
		pterm.Success.Println("Connected")
	case negotiation.StatusConnecting:
		pterm.Info.Println("Connecting")
	default:
		pterm.Warning.Println("Disconnected")
	}
}

func (a *app) onMediaStatus(status negotiation.MediaStatus) {
	if status == negotiation.MediaSharing {
		pterm.Success.Println("Sharing local media")
		return
	}
	pterm.Info.Println("Not sharing local media")
}

// forward relays a remote track to the sink configured for its kind.
func (a *app) forward(ctx context.Context, track *webrtc.TrackRemote) {
	addr := a.config.Media.SinkAudioAddr
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		addr = a.config.Media.SinkVideoAddr
	}

	if addr == "" {
		a.logger.Info("no sink for remote track", "kind", track.Kind().String())
		return
	}

	pterm.Info.Printfln("Receiving %s, forwarding to %s", track.Kind(), addr)

	go func() {
		if err := media.Forward(ctx, a.net, track, addr); err != nil {
			a.logger.Warn("remote track forwarding stopped", "kind", track.Kind().String(), "err", err)
		}
	}()
}
