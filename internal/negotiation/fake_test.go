package negotiation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/HMasataka/duet/internal/control"
	"github.com/HMasataka/duet/internal/control/controltest"
	"github.com/pion/webrtc/v4"
)

var errFakeClosed = errors.New("fake peer connection closed")

// fakeNetwork connects fake peer connections by the ids embedded in their
// descriptions. Applying the first answer links the pair, opens the control
// channel and reports both sides connected.
type fakeNetwork struct {
	mu          sync.Mutex
	peers       map[string]*fakePeer
	order       []*fakePeer
	candidates  int
	complete    bool
	failAnswer  error
	failFactory error
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		peers:      make(map[string]*fakePeer),
		candidates: 2,
		complete:   true,
	}
}

func (n *fakeNetwork) factory() PeerConnectionFactory {
	return func(id string) (PeerConnection, error) {
		n.mu.Lock()
		defer n.mu.Unlock()

		if n.failFactory != nil {
			return nil, n.failFactory
		}

		p := &fakePeer{
			id:         id,
			net:        n,
			signaling:  webrtc.SignalingStateStable,
			candidates: n.candidates,
			complete:   n.complete,
			failAnswer: n.failAnswer,
		}
		n.peers[id] = p
		n.order = append(n.order, p)

		return p, nil
	}
}

func (n *fakeNetwork) setFailAnswer(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failAnswer = err
}

func (n *fakeNetwork) peer(id string) *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[id]
}

func (n *fakeNetwork) created() []*fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*fakePeer(nil), n.order...)
}

type fakeStats struct {
	offersApplied    int
	answersApplied   int
	rollbacks        int
	closes           int
	tracks           int
	removed          int
	remoteCandidates []webrtc.ICECandidateInit
}

type fakePeer struct {
	id         string
	net        *fakeNetwork
	candidates int
	complete   bool
	failAnswer error

	mu        sync.Mutex
	signaling webrtc.SignalingState
	local     *webrtc.SessionDescription
	rev       int
	gathered  bool
	linked    bool
	closed    bool
	channel   *controltest.DataChannel
	pending   *controltest.DataChannel
	incoming  control.DataChannel
	stats     fakeStats

	onCandidate         func(*webrtc.ICECandidateInit)
	onState             func(webrtc.PeerConnectionState)
	onNegotiationNeeded func()
	onTrack             func(*webrtc.TrackRemote)
	onDataChannel       func(control.DataChannel)
}

func (p *fakePeer) snapshot() fakeStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.remoteCandidates = append([]webrtc.ICECandidateInit(nil), p.stats.remoteCandidates...)
	return s
}

func (p *fakePeer) channelOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel != nil && p.channel.IsOpen()
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return webrtc.SessionDescription{}, errFakeClosed
	}
	if p.signaling != webrtc.SignalingStateStable {
		state := p.signaling
		p.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("create offer in %s", state)
	}
	desc := p.describe(webrtc.SDPTypeOffer)
	p.signaling = webrtc.SignalingStateHaveLocalOffer
	p.mu.Unlock()

	p.gather()

	return desc, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	if p.failAnswer != nil {
		err := p.failAnswer
		p.mu.Unlock()
		return webrtc.SessionDescription{}, err
	}
	if p.signaling != webrtc.SignalingStateHaveRemoteOffer {
		state := p.signaling
		p.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("create answer in %s", state)
	}
	desc := p.describe(webrtc.SDPTypeAnswer)
	p.signaling = webrtc.SignalingStateStable
	p.mu.Unlock()

	p.gather()

	return desc, nil
}

func (p *fakePeer) describe(t webrtc.SDPType) webrtc.SessionDescription {
	p.rev++
	desc := webrtc.SessionDescription{Type: t, SDP: fmt.Sprintf("fake %s %s %d", t, p.id, p.rev)}
	p.local = &desc
	return desc
}

// gather reports candidates for the first local description only.
func (p *fakePeer) gather() {
	p.mu.Lock()
	if p.gathered {
		p.mu.Unlock()
		return
	}
	p.gathered = true
	handler := p.onCandidate
	count, complete := p.candidates, p.complete
	p.mu.Unlock()

	if handler == nil {
		return
	}

	go func() {
		for i := range count {
			handler(&webrtc.ICECandidateInit{
				Candidate: fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 5000 typ host", i+1, i+1),
			})
		}
		if complete {
			handler(nil)
		}
	}()
}

// emitLate reports a candidate after gathering has finished.
func (p *fakePeer) emitLate() {
	p.mu.Lock()
	handler := p.onCandidate
	p.mu.Unlock()

	handler(&webrtc.ICECandidateInit{Candidate: "candidate:9 1 udp 2130706431 10.0.0.9 5000 typ host"})
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	fields := strings.Fields(desc.SDP)
	if len(fields) != 4 || fields[0] != "fake" {
		return fmt.Errorf("unparsable description %q", desc.SDP)
	}
	remoteID := fields[2]

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errFakeClosed
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if p.signaling != webrtc.SignalingStateStable {
			state := p.signaling
			p.mu.Unlock()
			return fmt.Errorf("remote offer in %s", state)
		}
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
		p.stats.offersApplied++
		p.mu.Unlock()
	case webrtc.SDPTypeAnswer:
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			state := p.signaling
			p.mu.Unlock()
			return fmt.Errorf("remote answer in %s", state)
		}
		p.signaling = webrtc.SignalingStateStable
		p.stats.answersApplied++
		link := !p.linked
		p.linked = true
		p.mu.Unlock()

		if link {
			go p.link(p.net.peer(remoteID))
		}
	default:
		p.mu.Unlock()
		return fmt.Errorf("unsupported description type %s", desc.Type)
	}

	return nil
}

func (p *fakePeer) link(remote *fakePeer) {
	p.mu.Lock()
	local, pending := p.channel, p.pending
	p.mu.Unlock()

	if remote != nil && pending != nil {
		remote.receiveChannel(pending)
	}
	if local != nil {
		local.Open()
	}

	p.fireState(webrtc.PeerConnectionStateConnected)
	if remote != nil {
		remote.fireState(webrtc.PeerConnectionStateConnected)
	}
}

func (p *fakePeer) receiveChannel(dc *controltest.DataChannel) {
	p.mu.Lock()
	p.incoming = dc
	handler := p.onDataChannel
	p.mu.Unlock()

	if handler != nil {
		handler(dc)
	}
}

func (p *fakePeer) fireState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	handler := p.onState
	p.mu.Unlock()

	if handler != nil {
		handler(state)
	}
}

func (p *fakePeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errFakeClosed
	}

	p.stats.remoteCandidates = append(p.stats.remoteCandidates, candidate)
	return nil
}

func (p *fakePeer) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.signaling != webrtc.SignalingStateHaveLocalOffer {
		return fmt.Errorf("rollback in %s", p.signaling)
	}

	p.signaling = webrtc.SignalingStateStable
	p.stats.rollbacks++
	return nil
}

func (p *fakePeer) LocalDescription() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.local == nil {
		return webrtc.SessionDescription{}, errors.New("no local description")
	}
	return *p.local, nil
}

func (p *fakePeer) CreateDataChannel(label string) (control.DataChannel, error) {
	a, b := controltest.NewPipe(label)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.channel = a
	p.pending = b
	return a, nil
}

func (p *fakePeer) OnDataChannel(handler func(control.DataChannel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDataChannel = handler
}

func (p *fakePeer) OnICECandidate(handler func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = handler
}

func (p *fakePeer) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = handler
}

func (p *fakePeer) OnNegotiationNeeded(handler func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNegotiationNeeded = handler
}

func (p *fakePeer) OnTrack(handler func(*webrtc.TrackRemote)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = handler
}

func (p *fakePeer) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errFakeClosed
	}
	p.stats.tracks++
	handler := p.onNegotiationNeeded
	p.mu.Unlock()

	if handler != nil {
		go handler()
	}

	return &webrtc.RTPSender{}, nil
}

func (p *fakePeer) RemoveTrack(*webrtc.RTPSender) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.removed++
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.stats.closes++
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	local, incoming := p.channel, p.incoming
	p.mu.Unlock()

	if local != nil {
		_ = local.Close()
	}
	if incoming != nil {
		_ = incoming.Close()
	}

	go p.fireState(webrtc.PeerConnectionStateClosed)

	return nil
}
