// Package domain contains entity without logic, just meta-data
package domain

import "time"

type (
	RoomID     string
	UserID     string
	InviteCode string
)

const (
	MaxRoomNameLen = 64
	MaxUsernameLen = 36
)

// Role of a member inside a room.
type Role string

const (
	RoleHost      Role = "host"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// RoomUser represents user's participation meta for a room.
// No transport or lifecycle logic here.
type RoomUser struct {
	ID           UserID    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	Role         Role      `json:"role"`
	IsOnline     bool      `json:"is_online"`
	JoinedAt     time.Time `json:"joined_at"`
	VoiceEnabled bool      `json:"voice_enabled"`
	IsMuted      bool      `json:"is_muted"`
}

// RoomSettings tunes per-room behavior. SyncTolerance is advisory: it is the
// playback drift (seconds) a client may accumulate before re-syncing, the
// controller stores it but never enforces it.
type RoomSettings struct {
	AllowGuestControl bool    `json:"allow_guest_control"`
	RequireApproval   bool    `json:"require_approval"`
	ChatEnabled       bool    `json:"chat_enabled"`
	VoiceEnabled      bool    `json:"voice_enabled"`
	SyncTolerance     float64 `json:"sync_tolerance"`
}

// Room is the authoritative session state for one watch party.
// Members keeps insertion order: index 0 joined first.
type Room struct {
	ID           RoomID       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	HostID       UserID       `json:"host_id"`
	HostName     string       `json:"host_name"`
	IsPrivate    bool         `json:"is_private"`
	InviteCode   InviteCode   `json:"invite_code,omitempty"`
	MaxUsers     int          `json:"max_users"`
	Members      []*RoomUser  `json:"members"`
	CurrentVideo *VideoInfo   `json:"current_video,omitempty"`
	IsPlaying    bool         `json:"is_playing"`
	CurrentTime  float64      `json:"current_time"`
	Settings     RoomSettings `json:"settings"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Member returns the membership entry for uid, or nil.
func (r *Room) Member(uid UserID) *RoomUser {
	for _, m := range r.Members {
		if m.ID == uid {
			return m
		}
	}
	return nil
}

// Snapshot returns a deep copy safe to read without the owner's lock.
// CurrentVideo stays shared: VideoInfo is immutable.
func (r *Room) Snapshot() *Room {
	cp := *r
	cp.Members = make([]*RoomUser, len(r.Members))
	for i, m := range r.Members {
		mc := *m
		cp.Members[i] = &mc
	}
	return &cp
}

// RoomInvite is never deleted; validity is purely a function of
// expiry and use count.
type RoomInvite struct {
	RoomID      RoomID     `json:"room_id"`
	Code        InviteCode `json:"code"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUses     int        `json:"max_uses,omitempty"` // 0 means unlimited
	CurrentUses int        `json:"current_uses"`
	CreatedBy   UserID     `json:"created_by"`
}

// Valid reports whether the invite can still admit a member at now.
func (i *RoomInvite) Valid(now time.Time) bool {
	if i.ExpiresAt != nil && i.ExpiresAt.Before(now) {
		return false
	}
	if i.MaxUses > 0 && i.CurrentUses >= i.MaxUses {
		return false
	}
	return true
}
