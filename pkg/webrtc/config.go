package webrtc

import (
	"errors"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

// Config is the [webrtc] section of the configuration file.
type Config struct {
	ICEServers        []ICEServerConfig    `toml:"iceserver"`
	ICEPortRange      []uint16             `toml:"portrange"`
	Candidates        Candidates           `toml:"candidates"`
	MDNS              bool                 `toml:"mdns"`
	CandidatePoolSize uint8                `toml:"candidatepoolsize"`
	Timeouts          WebRTCTimeoutsConfig `toml:"timeouts"`
}

type ICEServerConfig struct {
	URLs       []string `toml:"urls"`
	Username   string   `toml:"username"`
	Credential string   `toml:"credential"`
}

type Candidates struct {
	NAT1To1IPs      []string `toml:"nat1to1"`
	IncludeLoopback bool     `toml:"loopback"`
}

// WebRTCTimeoutsConfig is expressed in seconds.
type WebRTCTimeoutsConfig struct {
	ICEDisconnectedTimeout int `toml:"disconnected"`
	ICEFailedTimeout       int `toml:"failed"`
	ICEKeepaliveInterval   int `toml:"keepalive"`
}

var ErrInvalidPortRange = errors.New("port range must have exactly two entries")

// DefaultConfig mirrors the public STUN/TURN servers the browser client used.
func DefaultConfig() Config {
	return Config{
		ICEServers: []ICEServerConfig{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
			{
				URLs:       []string{"turn:openrelay.metered.ca:80"},
				Username:   "openrelayproject",
				Credential: "openrelayproject",
			},
			{
				URLs:       []string{"turn:openrelay.metered.ca:443"},
				Username:   "openrelayproject",
				Credential: "openrelayproject",
			},
			{
				URLs:       []string{"turn:openrelay.metered.ca:443?transport=tcp"},
				Username:   "openrelayproject",
				Credential: "openrelayproject",
			},
		},
		CandidatePoolSize: 10,
	}
}

// NewPeerConnectionOptions builds the options used to create every peer
// connection of a process from the configuration file.
func NewPeerConnectionOptions(c Config) (PeerConnectionOptions, error) {
	se := webrtc.SettingEngine{}

	if len(c.ICEPortRange) != 0 {
		if len(c.ICEPortRange) != 2 {
			return PeerConnectionOptions{}, ErrInvalidPortRange
		}
		if err := se.SetEphemeralUDPPortRange(c.ICEPortRange[0], c.ICEPortRange[1]); err != nil {
			return PeerConnectionOptions{}, err
		}
	}

	if c.Timeouts.ICEDisconnectedTimeout != 0 ||
		c.Timeouts.ICEFailedTimeout != 0 ||
		c.Timeouts.ICEKeepaliveInterval != 0 {
		se.SetICETimeouts(
			time.Duration(c.Timeouts.ICEDisconnectedTimeout)*time.Second,
			time.Duration(c.Timeouts.ICEFailedTimeout)*time.Second,
			time.Duration(c.Timeouts.ICEKeepaliveInterval)*time.Second,
		)
	}

	if len(c.Candidates.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(c.Candidates.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}

	if c.Candidates.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	if !c.MDNS {
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return PeerConnectionOptions{
		ICEServers:        iceServers,
		CandidatePoolSize: c.CandidatePoolSize,
		SettingEngine:     se,
	}, nil
}

// WithNet routes all ICE traffic of the options through n, typically a vnet.Net.
func (o PeerConnectionOptions) WithNet(n transport.Net) PeerConnectionOptions {
	o.SettingEngine.SetNet(n)
	return o
}
