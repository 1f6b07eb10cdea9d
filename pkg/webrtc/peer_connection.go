package webrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

var ErrNoLocalDescription = errors.New("no local description")

// PeerConnectionOptions represents options for peer connection
type PeerConnectionOptions struct {
	ICEServers        []webrtc.ICEServer
	CandidatePoolSize uint8
	SettingEngine     webrtc.SettingEngine
	Logger            *slog.Logger
}

// DefaultPeerConnectionOptions returns default options
func DefaultPeerConnectionOptions() PeerConnectionOptions {
	opts, err := NewPeerConnectionOptions(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return opts
}

// PeerConnection wraps a WebRTC peer connection
type PeerConnection struct {
	id     string
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	pendingCandidates []webrtc.ICECandidateInit
	candidatesMu      sync.Mutex
}

// NewPeerConnection creates a new peer connection
func NewPeerConnection(id string, options PeerConnectionOptions) (*PeerConnection, error) {
	m, err := NewMediaEngine()
	if err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(options.SettingEngine),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:           options.ICEServers,
		ICECandidatePoolSize: options.CandidatePoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PeerConnection{
		id:     id,
		pc:     pc,
		logger: logger.With("pc", id),
	}, nil
}

func (p *PeerConnection) ID() string {
	return p.id
}

// Close closes the peer connection
func (p *PeerConnection) Close() error {
	return p.pc.Close()
}

// CreateOffer creates an SDP offer and applies it as the local description.
// Applying it starts candidate gathering.
func (p *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	return offer, nil
}

// CreateAnswer creates an SDP answer and applies it as the local description.
func (p *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	return answer, nil
}

// Rollback discards a pending local offer.
func (p *PeerConnection) Rollback() error {
	if p.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return nil
	}

	// An empty SDP is rejected for rollback, so the pending offer is echoed back.
	pending := p.pc.PendingLocalDescription()
	if pending == nil {
		return nil
	}

	if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP}); err != nil {
		return fmt.Errorf("failed to rollback local description: %w", err)
	}

	return nil
}

// LocalDescription returns the local description including the candidates
// gathered so far.
func (p *PeerConnection) LocalDescription() (webrtc.SessionDescription, error) {
	desc := p.pc.LocalDescription()
	if desc == nil {
		return webrtc.SessionDescription{}, ErrNoLocalDescription
	}

	return webrtc.SessionDescription{Type: desc.Type, SDP: desc.SDP}, nil
}

// SetRemoteDescription sets the remote SDP
func (p *PeerConnection) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	// Process pending ICE candidates if any
	p.processPendingCandidates()

	return nil
}

// AddICECandidate adds an ICE candidate
func (p *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	// If remote description is not set yet, queue the candidate
	if p.pc.RemoteDescription() == nil {
		p.candidatesMu.Lock()
		p.pendingCandidates = append(p.pendingCandidates, candidate)
		p.candidatesMu.Unlock()
		return nil
	}

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}

	return nil
}

// processPendingCandidates processes queued ICE candidates
func (p *PeerConnection) processPendingCandidates() {
	p.candidatesMu.Lock()
	candidates := p.pendingCandidates
	p.pendingCandidates = nil
	p.candidatesMu.Unlock()

	for _, candidate := range candidates {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			p.logger.Warn("failed to add queued ICE candidate", "candidate", candidate.Candidate, "err", err)
		}
	}
}

// CreateDataChannel creates an ordered, reliable data channel.
func (p *PeerConnection) CreateDataChannel(label string) (*DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	return newDataChannel(dc, p.logger), nil
}

// OnDataChannel sets the handler for data channels opened by the remote peer.
func (p *PeerConnection) OnDataChannel(handler func(*DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		handler(newDataChannel(dc, p.logger))
	})
}

// OnICECandidate sets the local candidate handler. A nil candidate means
// gathering is complete.
func (p *PeerConnection) OnICECandidate(handler func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			handler(nil)
			return
		}

		init := c.ToJSON()
		handler(&init)
	})
}

func (p *PeerConnection) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(handler)
}

func (p *PeerConnection) OnNegotiationNeeded(handler func()) {
	p.pc.OnNegotiationNeeded(handler)
}

func (p *PeerConnection) OnTrack(handler func(*webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Info("remote track",
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
			"ssrc", uint32(track.SSRC()),
		)
		handler(track)
	})
}

// AddTrack adds a local track and starts draining RTCP from its sender.
func (p *PeerConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	go readRTCP(sender, p.logger.With("track", track.ID()))

	return sender, nil
}

func (p *PeerConnection) RemoveTrack(sender *webrtc.RTPSender) error {
	if err := p.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}

	return nil
}

func (p *PeerConnection) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

func (p *PeerConnection) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}
