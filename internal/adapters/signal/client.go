package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// ClientChannel implements core.SignalingChannel over a websocket dialed at
// the server's signal endpoint. It is what a Go participant hands to
// voice.NewCoordinator.
type ClientChannel struct {
	conn *websocket.Conn

	// wmu serializes writes; gorilla allows one concurrent writer.
	wmu sync.Mutex

	mu        sync.RWMutex
	onMessage func(domain.UserID, core.SignalMessage)
	onRoom    func(kind string, data []byte)
}

// DialChannel connects to url and starts the inbound read loop. The loop
// stops when ctx is cancelled or the connection drops.
func DialChannel(ctx context.Context, url string) (*ClientChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal channel: %w", err)
	}
	ch := &ClientChannel{conn: conn}
	go ch.readLoop(ctx)
	return ch, nil
}

// wireSignal is the json envelope relayed between peers by the server.
type wireSignal struct {
	Type      string                     `json:"type"`
	To        string                     `json:"to,omitempty"`
	From      domain.UserID              `json:"from,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Muted     bool                       `json:"muted,omitempty"`
}

func (ch *ClientChannel) writeJSON(v any) error {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	return ch.conn.WriteJSON(v)
}

func (ch *ClientChannel) Send(peerID domain.UserID, msg core.SignalMessage) error {
	w := wireSignal{
		Type:      string(msg.Kind),
		To:        string(peerID),
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
		Muted:     msg.Muted,
	}
	if err := ch.writeJSON(w); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	return nil
}

func (ch *ClientChannel) Broadcast(msg core.SignalMessage) error {
	// Mute changes are the only broadcast kind; the server fans them out.
	w := wireSignal{
		Type:  "mute",
		Muted: msg.Muted,
	}
	if err := ch.writeJSON(w); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	return nil
}

func (ch *ClientChannel) OnMessage(fn func(domain.UserID, core.SignalMessage)) {
	ch.mu.Lock()
	ch.onMessage = fn
	ch.mu.Unlock()
}

// OnRoomEvent receives the non-mesh traffic sharing the socket: room state,
// membership changes, errors. Data is the raw envelope.
func (ch *ClientChannel) OnRoomEvent(fn func(kind string, data []byte)) {
	ch.mu.Lock()
	ch.onRoom = fn
	ch.mu.Unlock()
}

// JoinRoom asks the server to admit this connection into a room. Key is a
// room id or invite code; the outcome arrives as a room event.
func (ch *ClientChannel) JoinRoom(key, name string) error {
	msg := map[string]any{"type": "join", "room": key, "name": name}
	if err := ch.writeJSON(msg); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// LeaveRoom asks the server to remove this connection from its room.
func (ch *ClientChannel) LeaveRoom() error {
	if err := ch.writeJSON(map[string]any{"type": "leave"}); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

// RequestIdentity asks the server for this connection's user id. The reply
// arrives as a "whoami" room event.
func (ch *ClientChannel) RequestIdentity() error {
	if err := ch.writeJSON(map[string]any{"type": "whoami"}); err != nil {
		return fmt.Errorf("request identity: %w", err)
	}
	return nil
}

func (ch *ClientChannel) readLoop(ctx context.Context) {
	defer func() { _ = ch.conn.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			log.Error().Err(err).Str("module", "signal.client").Msg("read loop stopped")
			return
		}
		var w wireSignal
		if err := json.Unmarshal(data, &w); err != nil {
			log.Error().Err(err).Str("module", "signal.client").Msg("bad inbound signal")
			continue
		}

		var kind core.SignalKind
		switch w.Type {
		case "offer":
			kind = core.SignalOffer
		case "answer":
			kind = core.SignalAnswer
		case "candidate":
			kind = core.SignalCandidate
		case "mute-changed":
			kind = core.SignalMuteChanged
		default:
			// Room-state traffic shares the socket; not for the mesh.
			ch.mu.RLock()
			roomFn := ch.onRoom
			ch.mu.RUnlock()
			if roomFn != nil {
				roomFn(w.Type, data)
			}
			continue
		}

		ch.mu.RLock()
		fn := ch.onMessage
		ch.mu.RUnlock()
		if fn != nil {
			fn(w.From, core.SignalMessage{
				Kind:      kind,
				From:      w.From,
				SDP:       w.SDP,
				Candidate: w.Candidate,
				Muted:     w.Muted,
			})
		}
	}
}

// Close tears the socket down.
func (ch *ClientChannel) Close() error { return ch.conn.Close() }
