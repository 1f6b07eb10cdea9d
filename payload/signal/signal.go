package signal

import (
	"github.com/HMasataka/duet/pkg/identity"
	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

func (k Kind) String() string {
	return string(k)
}

// Token is the text a user copies to the remote peer.
type Token string

func (t Token) String() string {
	return string(t)
}

// Envelope is the payload carried by a Token. The JSON field names are the wire
// contract between independently built peers.
type Envelope struct {
	Kind           Kind                      `json:"kind"`
	Description    webrtc.SessionDescription `json:"description"`
	Candidates     []webrtc.ICECandidateInit `json:"candidates"`
	SenderIdentity identity.PeerIdentity     `json:"senderIdentity"`
}

func NewOfferEnvelope(sender identity.PeerIdentity, offer webrtc.SessionDescription, candidates []webrtc.ICECandidateInit) Envelope {
	return Envelope{
		Kind:           KindOffer,
		Description:    offer,
		Candidates:     candidates,
		SenderIdentity: sender,
	}
}

func NewAnswerEnvelope(sender identity.PeerIdentity, answer webrtc.SessionDescription, candidates []webrtc.ICECandidateInit) Envelope {
	return Envelope{
		Kind:           KindAnswer,
		Description:    answer,
		Candidates:     candidates,
		SenderIdentity: sender,
	}
}

// sdpTypeFor returns the description type an envelope of kind k must carry.
func sdpTypeFor(k Kind) (webrtc.SDPType, bool) {
	switch k {
	case KindOffer:
		return webrtc.SDPTypeOffer, true
	case KindAnswer:
		return webrtc.SDPTypeAnswer, true
	default:
		return webrtc.SDPTypeUnknown, false
	}
}
