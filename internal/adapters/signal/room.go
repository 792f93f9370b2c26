package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/app"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

type roomStatePayload struct {
	Type string       `json:"type"`
	Room *domain.Room `json:"room"`
}

func (ctl *Controller) handleCreateRoom(c *WsSignalConn, data []byte) {
	type payload struct {
		Type        string               `json:"type"`
		Name        string               `json:"name"`
		Description string               `json:"description"`
		UserName    string               `json:"user_name"`
		Private     bool                 `json:"private"`
		MaxUsers    int                  `json:"max_users"`
		Settings    *domain.RoomSettings `json:"settings,omitempty"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create_room payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if c.roomID != "" {
		ctl.sendError(c, "already in a room")
		return
	}
	if p.UserName != "" {
		c.userName = p.UserName
	}
	name := p.Name
	// Truncate on rune boundaries; names carry emoji.
	if r := []rune(name); len(r) > domain.MaxRoomNameLen {
		name = string(r[:domain.MaxRoomNameLen])
	}

	room := ctl.Sessions.CreateRoom(c.userID, c.userName, app.CreateRoomOptions{
		Name:        name,
		Description: p.Description,
		IsPrivate:   p.Private,
		MaxUsers:    p.MaxUsers,
		Settings:    p.Settings,
	})
	c.roomID = room.ID
	ctl.sendJSON(c, roomStatePayload{Type: "room_created", Room: room})
}

func (ctl *Controller) handleJoin(c *WsSignalConn, data []byte) {
	type payload struct {
		Type string `json:"type"`
		Room string `json:"room"` // room id or invite code
		Name string `json:"name,omitempty"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if !ctl.limiter.Allow(c.userID) {
		ctl.sendError(c, "too many join attempts")
		return
	}
	if p.Name != "" {
		c.userName = p.Name
	}
	if c.roomID != "" && string(c.roomID) != p.Room {
		ctl.leaveCurrentRoom(c)
	}

	room, err := ctl.Sessions.JoinRoom(c.userID, c.userName, p.Room)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(c.userID)).Str("key", p.Room).Msg("join rejected")
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			ctl.sendError(c, "room not found")
		case errors.Is(err, domain.ErrInviteInvalid):
			ctl.sendError(c, "invite invalid")
		case errors.Is(err, domain.ErrRoomFull):
			ctl.sendError(c, "room full")
		default:
			ctl.sendError(c, "join failed")
		}
		return
	}
	c.roomID = room.ID

	ctl.sendJSON(c, roomStatePayload{Type: "room_state", Room: room})
	ctl.BroadcastRoom(room.ID, c.userID, map[string]any{
		"type": "member_joined",
		"user": room.Member(c.userID),
	})
}

func (ctl *Controller) handleLeave(c *WsSignalConn) {
	if c.roomID == "" {
		ctl.sendError(c, "not in a room")
		return
	}
	ctl.leaveCurrentRoom(c)
	ctl.sendJSON(c, map[string]any{"type": "left"})
}

// leaveCurrentRoom runs the leave command and notifies remaining members.
// Host failover happens inside the session controller.
func (ctl *Controller) leaveCurrentRoom(c *WsSignalConn) {
	roomID := c.roomID
	uid := c.userID
	c.roomID = ""
	if !ctl.Sessions.LeaveRoom(uid, roomID) {
		return
	}
	room, ok := ctl.Sessions.Room(roomID)
	if !ok {
		// Last online member left, room is gone.
		return
	}
	ctl.BroadcastRoom(roomID, uid, map[string]any{
		"type":      "member_left",
		"user_id":   uid,
		"host_id":   room.HostID,
		"host_name": room.HostName,
	})
}

func (ctl *Controller) handleWhoAmI(c *WsSignalConn) {
	resp := struct {
		Type string        `json:"type"`
		ID   domain.UserID `json:"id"`
		Name string        `json:"name"`
		Room domain.RoomID `json:"room,omitempty"`
	}{
		Type: "whoami",
		ID:   c.userID,
		Name: c.userName,
		Room: c.roomID,
	}
	ctl.sendJSON(c, resp)
}
