package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// relayPeerSignal forwards an offer/answer/candidate envelope to its target
// peer, stamping the sender. Payloads stay opaque: the relay never parses
// SDP or candidate bodies.
func (ctl *Controller) relayPeerSignal(c *WsSignalConn, kind string, data []byte) {
	if c.roomID == "" {
		ctl.sendError(c, "not in a room")
		return
	}
	var env struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.To == "" {
		log.Error().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad peer signal envelope")
		ctl.sendError(c, "bad_payload")
		return
	}
	target := domain.UserID(env.To)

	room, ok := ctl.Sessions.Room(c.roomID)
	if !ok || room.Member(target) == nil {
		ctl.sendError(c, "peer not in room")
		return
	}

	conn, ok := ctl.connOf(target)
	if !ok {
		ctl.sendError(c, "peer offline")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	from, _ := json.Marshal(c.userID)
	raw["from"] = from
	delete(raw, "to")
	out, err := json.Marshal(raw)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay marshal")
		return
	}
	if err := conn.TrySend(out); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("to", env.To).Str("kind", kind).Msg("relay dropped")
		ctl.sendError(c, "signal delivery failed")
	}
}

// handleMute rebroadcasts a mute-state change to everyone else in the room.
func (ctl *Controller) handleMute(c *WsSignalConn, data []byte) {
	if c.roomID == "" {
		ctl.sendError(c, "not in a room")
		return
	}
	var p struct {
		Type  string `json:"type"`
		Muted bool   `json:"muted"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.BroadcastRoom(c.roomID, c.userID, map[string]any{
		"type":  "mute-changed",
		"from":  c.userID,
		"muted": p.Muted,
	})
}
