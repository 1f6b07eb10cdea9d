package negotiation

import (
	"github.com/HMasataka/duet/internal/control"
	pkgwebrtc "github.com/HMasataka/duet/pkg/webrtc"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source peer.go -destination mock/peer.go

// PeerConnection is the transport a session negotiates. CreateOffer and
// CreateAnswer also apply the description locally.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Rollback() error
	LocalDescription() (webrtc.SessionDescription, error)

	CreateDataChannel(label string) (control.DataChannel, error)
	OnDataChannel(handler func(control.DataChannel))
	// OnICECandidate receives nil once gathering is complete.
	OnICECandidate(handler func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(handler func(webrtc.PeerConnectionState))
	OnNegotiationNeeded(handler func())
	OnTrack(handler func(*webrtc.TrackRemote))

	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	RemoveTrack(sender *webrtc.RTPSender) error

	Close() error
}

// PeerConnectionFactory creates the transport of a new session.
type PeerConnectionFactory func(id string) (PeerConnection, error)

// NewPionFactory creates pion peer connections with options.
func NewPionFactory(options pkgwebrtc.PeerConnectionOptions) PeerConnectionFactory {
	return func(id string) (PeerConnection, error) {
		pc, err := pkgwebrtc.NewPeerConnection(id, options)
		if err != nil {
			return nil, err
		}

		return pionPeerConnection{PeerConnection: pc}, nil
	}
}

type pionPeerConnection struct {
	*pkgwebrtc.PeerConnection
}

func (p pionPeerConnection) CreateDataChannel(label string) (control.DataChannel, error) {
	dc, err := p.PeerConnection.CreateDataChannel(label)
	if err != nil {
		return nil, err
	}

	return dc, nil
}

func (p pionPeerConnection) OnDataChannel(handler func(control.DataChannel)) {
	p.PeerConnection.OnDataChannel(func(dc *pkgwebrtc.DataChannel) {
		handler(dc)
	})
}
