package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// SignalKind enumerates the message kinds the voice mesh exchanges.
// Payloads are opaque to the channel itself.
type SignalKind string

const (
	SignalOffer       SignalKind = "offer"
	SignalAnswer      SignalKind = "answer"
	SignalCandidate   SignalKind = "candidate"
	SignalMuteChanged SignalKind = "mute-changed"
)

// SignalMessage is one negotiation message between two peers.
type SignalMessage struct {
	Kind      SignalKind                 `json:"kind"`
	From      domain.UserID              `json:"from"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Muted     bool                       `json:"muted,omitempty"`
}

// SignalingChannel is the external transport the mesh negotiates through.
// Inbound messages for a single peer are delivered in arrival order.
type SignalingChannel interface {
	Send(peerID domain.UserID, msg SignalMessage) error
	Broadcast(msg SignalMessage) error
	// OnMessage registers the single inbound delivery callback.
	OnMessage(func(peerID domain.UserID, msg SignalMessage))
}
