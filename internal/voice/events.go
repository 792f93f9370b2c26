// Package voice coordinates the peer-to-peer audio overlay of a room:
// one negotiation state machine per remote peer, local media acquisition
// and speaking detection, all over injected capability interfaces.
package voice

import (
	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

type EventKind string

const (
	EventPeerJoined           EventKind = "peer-joined"
	EventPeerLeft             EventKind = "peer-left"
	EventPeerMuteChanged      EventKind = "peer-mute-changed"
	EventLocalSpeakingChanged EventKind = "local-speaking-changed"
)

// Event is an asynchronous notification from the mesh. Events about one
// peer are emitted in order.
type Event struct {
	Kind     EventKind
	Peer     domain.UserID
	Muted    bool
	Speaking bool
	Stream   core.RemoteStream
}

// VoiceUser is a read-only snapshot of one connected peer.
type VoiceUser struct {
	ID     domain.UserID     `json:"id"`
	Muted  bool              `json:"muted"`
	Stream core.RemoteStream `json:"-"`
	Linked bool              `json:"linked"`
}
