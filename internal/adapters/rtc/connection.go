// Package rtc implements core.PeerLink on top of pion.
package rtc

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
)

// DefaultWebRTCConfig uses a fixed pair of public relay servers for NAT
// traversal.
func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
	}
}

type PeerLinkFactory struct {
	Config webrtc.Configuration
}

func NewPeerLinkFactory() *PeerLinkFactory {
	return &PeerLinkFactory{Config: DefaultWebRTCConfig()}
}

func (f *PeerLinkFactory) NewPeerLink(peerID string) (core.PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(f.Config)
	if err != nil {
		return nil, err
	}
	return &WebRTCLink{pc: pc, peerID: peerID}, nil
}

// WebRTCLink wraps one *webrtc.PeerConnection toward a single remote peer.
type WebRTCLink struct {
	pc        *webrtc.PeerConnection
	peerID    string
	cancel    context.CancelFunc
	connected atomic.Bool

	onICE    func(webrtc.ICECandidateInit)
	onStream func(core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
}

type remoteTrackStream struct {
	id     string
	peerID string
}

func (s remoteTrackStream) ID() string     { return s.id }
func (s remoteTrackStream) PeerID() string { return s.peerID }

func (c *WebRTCLink) Start(ctx context.Context) error {
	_, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", c.peerID).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", c.peerID).Str("peer_connection_state", s.String()).Msg("peer state")
		c.connected.Store(s == webrtc.PeerConnectionStateConnected)
		if c.onState != nil {
			c.onState(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", c.peerID).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track received")
		if c.onStream != nil {
			c.onStream(remoteTrackStream{id: track.StreamID(), peerID: c.peerID})
		}
	})

	return nil
}

func (c *WebRTCLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCLink) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *WebRTCLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches a local audio track for sending. The track must be
// backed by a pion local track; other sources cannot ride this transport.
func (c *WebRTCLink) AddLocalTrack(track core.AudioTrack) error {
	lt, ok := track.(interface{ RTPTrack() webrtc.TrackLocal })
	if !ok {
		return errors.New("track is not transportable over webrtc")
	}
	_, err := c.pc.AddTrack(lt.RTPTrack())
	return err
}

func (c *WebRTCLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *WebRTCLink) OnRemoteStream(fn func(core.RemoteStream)) { c.onStream = fn }

func (c *WebRTCLink) OnStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

func (c *WebRTCLink) Connected() bool { return c.connected.Load() }

func (c *WebRTCLink) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc == nil {
		return nil
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", c.peerID).Msg("close error")
		return err
	}
	log.Info().Str("module", "rtc").Str("peer", c.peerID).Msg("closed")
	return nil
}
