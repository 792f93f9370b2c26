package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// PeerPhase is the negotiation phase of one remote peer.
type PeerPhase int

const (
	PhaseIdle PeerPhase = iota
	PhaseOffering
	PhaseAnswering
	PhaseConnected
	PhaseClosed
)

func (p PeerPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOffering:
		return "offering"
	case PhaseAnswering:
		return "answering"
	case PhaseConnected:
		return "connected"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionStatus is the aggregated mesh state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

type peerState struct {
	link   core.PeerLink
	phase  PeerPhase
	stream core.RemoteStream
}

// Coordinator is the per-room, per-local-user voice mesh. It mediates local
// media acquisition and relays negotiation through the signaling channel.
// All methods are safe for concurrent use.
type Coordinator struct {
	roomID domain.RoomID
	userID domain.UserID

	devices core.MediaDevices
	links   core.PeerLinkFactory
	signals core.SignalingChannel

	mu       sync.Mutex
	peers    map[domain.UserID]*peerState
	local    core.LocalMediaSource
	muted    bool
	joined   bool
	detector *SpeakingDetector

	events chan Event
}

func NewCoordinator(roomID domain.RoomID, userID domain.UserID, devices core.MediaDevices, links core.PeerLinkFactory, signals core.SignalingChannel) *Coordinator {
	c := &Coordinator{
		roomID:  roomID,
		userID:  userID,
		devices: devices,
		links:   links,
		signals: signals,
		peers:   make(map[domain.UserID]*peerState),
		events:  make(chan Event, 64),
	}
	signals.OnMessage(c.handleSignal)
	return c
}

// Events is the mesh notification stream. Slow consumers drop the oldest
// pending events rather than blocking negotiation.
func (c *Coordinator) Events() <-chan Event { return c.events }

func (c *Coordinator) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}

// InitializeAudio acquires the local capture device with echo cancellation,
// noise suppression and auto gain. On failure the coordinator stays usable
// for a later retry; retrying is the caller's decision.
func (c *Coordinator) InitializeAudio(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		return nil
	}
	src, err := c.devices.Acquire(ctx, core.DefaultCaptureOptions())
	if err != nil {
		log.Error().Err(err).Str("module", "voice.mesh").Str("room", string(c.roomID)).Msg("media acquisition failed")
		return fmt.Errorf("%w: %v", domain.ErrMediaAccess, err)
	}
	c.local = src
	c.startDetectorLocked(ctx)
	log.Info().Str("module", "voice.mesh").Str("room", string(c.roomID)).Msg("local audio initialized")
	return nil
}

func (c *Coordinator) startDetectorLocked(ctx context.Context) {
	det := NewSpeakingDetector(c.local, func(speaking bool) {
		c.emit(Event{Kind: EventLocalSpeakingChanged, Peer: c.userID, Speaking: speaking})
	})
	c.detector = det
	go det.Run(ctx)
}

// JoinVoice lazily initializes audio and marks the mesh available. No
// network signaling happens here beyond that availability state.
func (c *Coordinator) JoinVoice(ctx context.Context) error {
	if err := c.InitializeAudio(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	log.Info().Str("module", "voice.mesh").Str("room", string(c.roomID)).Msg("joined voice chat")
	return nil
}

// LeaveVoice closes every peer link, releases local media and resets to
// uninitialized. Idempotent; close-all is best-effort and runs fully even
// when individual closes fail. It returns only after all links are closed
// and the capture device is released.
func (c *Coordinator) LeaveVoice() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.joined = false
	for id, ps := range c.peers {
		if err := ps.link.Close(); err != nil {
			log.Error().Err(err).Str("module", "voice.mesh").Str("peer", string(id)).Msg("peer link close")
		}
		ps.phase = PhaseClosed
		delete(c.peers, id)
		c.emit(Event{Kind: EventPeerLeft, Peer: id})
	}

	if c.detector != nil {
		c.detector.Stop()
		c.detector = nil
	}
	if c.local != nil {
		for _, t := range c.local.Tracks() {
			t.Stop()
		}
		if err := c.local.Close(); err != nil {
			log.Error().Err(err).Str("module", "voice.mesh").Msg("local media close")
		}
		c.local = nil
	}
	c.muted = false
	log.Info().Str("module", "voice.mesh").Str("room", string(c.roomID)).Msg("left voice chat")
}

// createPeerLocked builds a negotiation context for peerID, replacing any
// prior entry. Caller holds c.mu.
func (c *Coordinator) createPeerLocked(ctx context.Context, peerID domain.UserID) (*peerState, error) {
	if old, ok := c.peers[peerID]; ok {
		_ = old.link.Close()
	}

	link, err := c.links.NewPeerLink(string(peerID))
	if err != nil {
		return nil, err
	}

	if c.local != nil {
		for _, t := range c.local.Tracks() {
			if err := link.AddLocalTrack(t); err != nil {
				log.Error().Err(err).Str("module", "voice.mesh").Str("peer", string(peerID)).Msg("add local track")
			}
		}
	}

	link.OnRemoteStream(func(stream core.RemoteStream) {
		c.mu.Lock()
		if ps, ok := c.peers[peerID]; ok {
			ps.stream = stream
		}
		c.mu.Unlock()
		c.emit(Event{Kind: EventPeerJoined, Peer: peerID, Stream: stream})
	})
	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		msg := core.SignalMessage{Kind: core.SignalCandidate, From: c.userID, Candidate: &ci}
		if err := c.signals.Send(peerID, msg); err != nil {
			log.Error().Err(err).Str("module", "voice.mesh").Str("peer", string(peerID)).Msg("candidate send")
		}
	})
	link.OnStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "voice.mesh").Str("peer", string(peerID)).Str("state", s.String()).Msg("peer connection state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.setPhase(peerID, PhaseConnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.dropPeer(peerID)
		}
	})

	if err := link.Start(ctx); err != nil {
		_ = link.Close()
		return nil, err
	}

	ps := &peerState{link: link, phase: PhaseIdle}
	c.peers[peerID] = ps
	return ps, nil
}

func (c *Coordinator) setPhase(peerID domain.UserID, phase PeerPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.peers[peerID]; ok {
		ps.phase = phase
	}
}

func (c *Coordinator) dropPeer(peerID domain.UserID) {
	c.mu.Lock()
	ps, ok := c.peers[peerID]
	if ok {
		ps.phase = PhaseClosed
		delete(c.peers, peerID)
	}
	c.mu.Unlock()
	if ok {
		_ = ps.link.Close()
		c.emit(Event{Kind: EventPeerLeft, Peer: peerID})
	}
}

// SendOffer starts negotiation with a peer, creating the link if absent.
func (c *Coordinator) SendOffer(ctx context.Context, peerID domain.UserID) error {
	c.mu.Lock()
	ps, ok := c.peers[peerID]
	if !ok {
		var err error
		ps, err = c.createPeerLocked(ctx, peerID)
		if err != nil {
			c.mu.Unlock()
			return err
		}
	}
	offer, err := ps.link.CreateOffer()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	ps.phase = PhaseOffering
	c.mu.Unlock()

	msg := core.SignalMessage{Kind: core.SignalOffer, From: c.userID, SDP: &offer}
	if err := c.signals.Send(peerID, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	return nil
}

// HandleOffer answers an incoming offer, creating the link first.
func (c *Coordinator) HandleOffer(ctx context.Context, peerID domain.UserID, offer webrtc.SessionDescription) error {
	c.mu.Lock()
	ps, err := c.createPeerLocked(ctx, peerID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	ps.phase = PhaseAnswering
	link := ps.link
	c.mu.Unlock()

	// Building the answer waits on ICE gathering; keep it outside the
	// coordinator lock so other peers keep negotiating.
	answer, err := link.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		return err
	}

	msg := core.SignalMessage{Kind: core.SignalAnswer, From: c.userID, SDP: answer}
	if err := c.signals.Send(peerID, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	return nil
}

// HandleAnswer applies a remote answer. A no-op when no link exists for the
// peer yet; signaling is tolerant of out-of-order arrival.
func (c *Coordinator) HandleAnswer(peerID domain.UserID, answer webrtc.SessionDescription) error {
	c.mu.Lock()
	ps, ok := c.peers[peerID]
	c.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "voice.mesh").Str("peer", string(peerID)).Msg("answer for unknown peer, ignored")
		return nil
	}
	return ps.link.ApplyAnswer(answer)
}

// HandleICECandidate applies a remote candidate, no-op for unknown peers.
func (c *Coordinator) HandleICECandidate(peerID domain.UserID, cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	ps, ok := c.peers[peerID]
	c.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "voice.mesh").Str("peer", string(peerID)).Msg("candidate for unknown peer, ignored")
		return nil
	}
	return ps.link.AddICECandidate(cand)
}

// handleSignal is the inbound delivery callback registered on the channel.
func (c *Coordinator) handleSignal(peerID domain.UserID, msg core.SignalMessage) {
	var err error
	switch msg.Kind {
	case core.SignalOffer:
		if msg.SDP != nil {
			err = c.HandleOffer(context.Background(), peerID, *msg.SDP)
		}
	case core.SignalAnswer:
		if msg.SDP != nil {
			err = c.HandleAnswer(peerID, *msg.SDP)
		}
	case core.SignalCandidate:
		if msg.Candidate != nil {
			err = c.HandleICECandidate(peerID, *msg.Candidate)
		}
	case core.SignalMuteChanged:
		c.emit(Event{Kind: EventPeerMuteChanged, Peer: peerID, Muted: msg.Muted})
	default:
		log.Warn().Str("module", "voice.mesh").Str("kind", string(msg.Kind)).Msg("unknown signal kind")
	}
	if err != nil {
		log.Error().Err(err).Str("module", "voice.mesh").Str("peer", string(peerID)).Str("kind", string(msg.Kind)).Msg("signal handling failed")
	}
}

// ToggleMute flips the local mute flag, toggles all local tracks and
// broadcasts the new state. Returns false without media.
func (c *Coordinator) ToggleMute() bool {
	c.mu.Lock()
	if c.local == nil {
		c.mu.Unlock()
		return false
	}
	c.muted = !c.muted
	muted := c.muted
	for _, t := range c.local.Tracks() {
		t.SetEnabled(!muted)
	}
	c.mu.Unlock()

	msg := core.SignalMessage{Kind: core.SignalMuteChanged, From: c.userID, Muted: muted}
	if err := c.signals.Broadcast(msg); err != nil {
		log.Error().Err(err).Str("module", "voice.mesh").Msg("mute broadcast")
	}
	return muted
}

// Status aggregates per-peer connectivity: disconnected until joined, then
// connected once any link reports connected, otherwise connecting.
func (c *Coordinator) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return StatusDisconnected
	}
	for _, ps := range c.peers {
		if ps.link.Connected() {
			return StatusConnected
		}
	}
	return StatusConnecting
}

// ConnectedPeers snapshots the current peer set.
func (c *Coordinator) ConnectedPeers() []VoiceUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]VoiceUser, 0, len(c.peers))
	for id, ps := range c.peers {
		out = append(out, VoiceUser{
			ID:     id,
			Stream: ps.stream,
			Linked: ps.link.Connected(),
		})
	}
	return out
}

// PeerPhaseOf reports the negotiation phase for diagnostics.
func (c *Coordinator) PeerPhaseOf(peerID domain.UserID) PeerPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.peers[peerID]; ok {
		return ps.phase
	}
	return PhaseIdle
}
