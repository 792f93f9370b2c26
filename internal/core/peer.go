package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PeerLink abstracts one negotiated transport to a remote peer so the mesh
// state machine is testable without real network or hardware.
// Owned by the coordinator; the coordinator must Close() it.
type PeerLink interface {
	// Start configures internal callbacks and binds the link lifetime to ctx.
	Start(ctx context.Context) error
	// CreateOffer produces and installs a local offer.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer installs a remote offer and answers it.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer installs the remote answer to a previously sent offer.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local audio track for sending.
	AddLocalTrack(AudioTrack) error

	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnRemoteStream sets a callback invoked when peer media arrives.
	OnRemoteStream(func(RemoteStream))
	// OnStateChange sets a callback observing transport connectivity.
	OnStateChange(func(webrtc.PeerConnectionState))

	Connected() bool
	Close() error
}

// PeerLinkFactory builds links preconfigured with the relay servers used
// for NAT traversal.
type PeerLinkFactory interface {
	NewPeerLink(peerID string) (PeerLink, error)
}
