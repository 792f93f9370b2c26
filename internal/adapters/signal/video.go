package signal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

func (ctl *Controller) handleSetVideo(c *WsSignalConn, data []byte) {
	type payload struct {
		Type      string  `json:"type"`
		URL       string  `json:"url"`
		StartTime float64 `json:"start_time"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad set_video payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if c.roomID == "" {
		ctl.sendError(c, "not in a room")
		return
	}

	video, err := ctl.Resolver.Resolve(p.URL)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("url", p.URL).Msg("resolve failed")
		ctl.sendError(c, "video url unresolvable")
		return
	}

	if err := ctl.Sessions.UpdateRoomVideo(c.roomID, c.userID, video, p.StartTime); err != nil {
		ctl.sendCommandError(c, err)
		return
	}

	resp := map[string]any{
		"type":       "video_changed",
		"video":      video,
		"start_time": p.StartTime,
		"by":         c.userID,
	}
	ctl.sendJSON(c, resp)
	ctl.BroadcastRoom(c.roomID, c.userID, resp)
}

func (ctl *Controller) handlePlayback(c *WsSignalConn, data []byte) {
	type payload struct {
		Type    string  `json:"type"`
		Playing bool    `json:"playing"`
		Time    float64 `json:"time"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad playback payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if c.roomID == "" {
		ctl.sendError(c, "not in a room")
		return
	}

	if err := ctl.Sessions.UpdatePlaybackState(c.roomID, c.userID, p.Playing, p.Time); err != nil {
		ctl.sendCommandError(c, err)
		return
	}

	ctl.BroadcastRoom(c.roomID, c.userID, map[string]any{
		"type":    "playback_changed",
		"playing": p.Playing,
		"time":    p.Time,
		"by":      c.userID,
	})
}

func (ctl *Controller) handleInvite(c *WsSignalConn, data []byte) {
	type payload struct {
		Type           string `json:"type"`
		ExpiresInHours int    `json:"expires_in_hours"`
		MaxUses        int    `json:"max_uses"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad invite payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if c.roomID == "" {
		ctl.sendError(c, "not in a room")
		return
	}

	inv, err := ctl.Sessions.GenerateInvite(c.roomID, c.userID, time.Duration(p.ExpiresInHours)*time.Hour, p.MaxUses)
	if err != nil {
		ctl.sendCommandError(c, err)
		return
	}

	ctl.sendJSON(c, map[string]any{
		"type": "invite_created",
		"code": inv.Code,
		"link": ctl.Sessions.InviteLink(inv.Code),
	})
}

func (ctl *Controller) sendCommandError(c *WsSignalConn, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		ctl.sendError(c, "room not found")
	case errors.Is(err, domain.ErrControlForbidden):
		ctl.sendError(c, "playback control forbidden")
	case errors.Is(err, domain.ErrManageForbidden):
		ctl.sendError(c, "room management forbidden")
	default:
		ctl.sendError(c, "command failed")
	}
}
