package app

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// avatars is the fixed pool new members draw from.
var avatars = []string{"👨‍💻", "👩‍🎨", "🎵", "👩‍🎤", "👨‍🚀", "🧑‍🎓", "👩‍🔬", "🧑‍🎯"}

const hostAvatar = "👨‍💻"

// SessionDefaults are the fallbacks applied when a create command leaves
// fields unset.
type SessionDefaults struct {
	MaxUsers         int
	InviteTTL        time.Duration
	PublicRoomsLimit int
	PublicBaseURL    string
}

func DefaultSessionDefaults() SessionDefaults {
	return SessionDefaults{
		MaxUsers:         50,
		InviteTTL:        24 * time.Hour,
		PublicRoomsLimit: 20,
		PublicBaseURL:    "http://localhost:8080",
	}
}

func defaultRoomSettings() domain.RoomSettings {
	return domain.RoomSettings{
		AllowGuestControl: false,
		RequireApproval:   false,
		ChatEnabled:       true,
		VoiceEnabled:      true,
		SyncTolerance:     2,
	}
}

// CreateRoomOptions carries the caller-settable part of a new room.
type CreateRoomOptions struct {
	Name        string
	Description string
	IsPrivate   bool
	MaxUsers    int
	Settings    *domain.RoomSettings
}

// SessionController implements room lifecycle and playback-authorization
// rules on top of RoomRegistry. Every command that reads then writes a room
// runs under that room's mutex, so commands on the same room serialize.
// Rooms returned to callers are snapshots; the live room never leaves the
// lock's scope.
type SessionController struct {
	registry *RoomRegistry
	ids      core.IDGenerator
	defaults SessionDefaults
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	locksMu sync.Mutex
	locks   map[domain.RoomID]*sync.Mutex
}

func NewSessionController(registry *RoomRegistry, ids core.IDGenerator, defaults SessionDefaults) *SessionController {
	return &SessionController{
		registry: registry,
		ids:      ids,
		defaults: defaults,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:    make(map[domain.RoomID]*sync.Mutex),
	}
}

func (c *SessionController) roomLock(id domain.RoomID) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	mu, ok := c.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[id] = mu
	}
	return mu
}

func (c *SessionController) dropRoomLock(id domain.RoomID) {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	delete(c.locks, id)
}

func (c *SessionController) randomAvatar() string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return avatars[c.rng.Intn(len(avatars))]
}

// freshRoomID draws ids until one is unused.
func (c *SessionController) freshRoomID() domain.RoomID {
	for {
		id := domain.RoomID(c.ids.RoomID())
		if !c.registry.HasRoom(id) {
			return id
		}
	}
}

func (c *SessionController) freshInviteCode() domain.InviteCode {
	for {
		code := domain.InviteCode(c.ids.InviteCode())
		if !c.registry.HasInvite(code) {
			return code
		}
	}
}

// CreateRoom builds a room with the creator auto-enrolled as host. Private
// rooms get an invite code with the default TTL registered alongside.
func (c *SessionController) CreateRoom(hostID domain.UserID, hostName string, opts CreateRoomOptions) *domain.Room {
	now := c.now()

	name := opts.Name
	if name == "" {
		name = "New room"
	}
	maxUsers := opts.MaxUsers
	if maxUsers <= 0 {
		maxUsers = c.defaults.MaxUsers
	}
	settings := defaultRoomSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}

	room := &domain.Room{
		ID:          c.freshRoomID(),
		Name:        name,
		Description: opts.Description,
		HostID:      hostID,
		HostName:    hostName,
		IsPrivate:   opts.IsPrivate,
		MaxUsers:    maxUsers,
		Members: []*domain.RoomUser{{
			ID:       hostID,
			Name:     hostName,
			Avatar:   hostAvatar,
			Role:     domain.RoleHost,
			IsOnline: true,
			JoinedAt: now,
		}},
		Settings:  settings,
		CreatedAt: now,
	}

	if opts.IsPrivate {
		code := c.freshInviteCode()
		room.InviteCode = code
		expires := now.Add(c.defaults.InviteTTL)
		c.registry.PutInvite(&domain.RoomInvite{
			RoomID:    room.ID,
			Code:      code,
			ExpiresAt: &expires,
			CreatedBy: hostID,
		})
	}

	// Snapshot before publishing; afterwards the room belongs to its lock.
	snap := room.Snapshot()
	c.registry.PutRoom(room)
	c.registry.BindUser(hostID, room.ID)
	log.Info().Str("module", "app.session").Str("room", string(room.ID)).Str("host", string(hostID)).Bool("private", opts.IsPrivate).Msg("room created")
	return snap
}

// JoinRoom resolves key as a room id first, then as an invite code.
// Re-joining as an existing member is idempotent: the member is marked
// online, capacity is not checked and invite uses are not burned.
// The returned room is a snapshot.
func (c *SessionController) JoinRoom(userID domain.UserID, userName, key string) (*domain.Room, error) {
	var invite *domain.RoomInvite
	roomID := domain.RoomID(key)
	if !c.registry.HasRoom(roomID) {
		inv, found := c.registry.Invite(domain.InviteCode(key))
		if !found {
			return nil, domain.ErrRoomNotFound
		}
		invite = inv
		roomID = inv.RoomID
	}

	mu := c.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	// Invite state only changes under its room's lock, so validation and
	// the later use burn cannot race a concurrent join.
	if invite != nil && !invite.Valid(c.now()) {
		return nil, domain.ErrInviteInvalid
	}
	room, ok := c.registry.Room(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	if existing := room.Member(userID); existing != nil {
		existing.IsOnline = true
		log.Debug().Str("module", "app.session").Str("room", string(room.ID)).Str("user", string(userID)).Msg("member rejoined")
		return room.Snapshot(), nil
	}

	if len(room.Members) >= room.MaxUsers {
		return nil, domain.ErrRoomFull
	}

	if invite != nil {
		invite.CurrentUses++
	}

	room.Members = append(room.Members, &domain.RoomUser{
		ID:       userID,
		Name:     userName,
		Avatar:   c.randomAvatar(),
		Role:     domain.RoleMember,
		IsOnline: true,
		JoinedAt: c.now(),
	})
	c.registry.BindUser(userID, room.ID)
	log.Info().Str("module", "app.session").Str("room", string(room.ID)).Str("user", string(userID)).Int("members", len(room.Members)).Msg("member joined")
	return room.Snapshot(), nil
}

// LeaveRoom removes the member. A leaving host hands the role to the
// earliest-joined other online member; with nobody left online the room is
// deleted. Returns false if room or membership is not found.
func (c *SessionController) LeaveRoom(userID domain.UserID, roomID domain.RoomID) bool {
	mu := c.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, ok := c.registry.Room(roomID)
	if !ok {
		return false
	}

	idx := -1
	for i, m := range room.Members {
		if m.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	leaving := room.Members[idx]
	if leaving.Role == domain.RoleHost {
		var successor *domain.RoomUser
		for _, m := range room.Members {
			if m.ID != userID && m.IsOnline {
				successor = m
				break
			}
		}
		if successor == nil {
			c.registry.DeleteRoom(roomID)
			c.dropRoomLock(roomID)
			log.Info().Str("module", "app.session").Str("room", string(roomID)).Msg("last online member left, room deleted")
			return true
		}
		successor.Role = domain.RoleHost
		room.HostID = successor.ID
		room.HostName = successor.Name
		log.Info().Str("module", "app.session").Str("room", string(roomID)).Str("new_host", string(successor.ID)).Msg("host role handed over")
	}

	room.Members = append(room.Members[:idx], room.Members[idx+1:]...)
	c.registry.UnbindUser(userID, roomID)
	log.Info().Str("module", "app.session").Str("room", string(roomID)).Str("user", string(userID)).Msg("member left")
	return true
}

// UpdateRoomVideo replaces the current video and starts playback from
// startTime. Fails closed on missing room/member or missing control rights.
func (c *SessionController) UpdateRoomVideo(roomID domain.RoomID, userID domain.UserID, video *domain.VideoInfo, startTime float64) error {
	mu := c.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, ok := c.registry.Room(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	member := room.Member(userID)
	if member == nil {
		return domain.ErrRoomNotFound
	}
	if !canControlVideo(member, room) {
		return domain.ErrControlForbidden
	}

	room.CurrentVideo = video
	room.CurrentTime = startTime
	room.IsPlaying = true
	log.Info().Str("module", "app.session").Str("room", string(roomID)).Str("user", string(userID)).Str("video", video.ID).Msg("video updated")
	return nil
}

// UpdatePlaybackState sets both playback fields as one mutation.
func (c *SessionController) UpdatePlaybackState(roomID domain.RoomID, userID domain.UserID, isPlaying bool, currentTime float64) error {
	mu := c.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, ok := c.registry.Room(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	member := room.Member(userID)
	if member == nil {
		return domain.ErrRoomNotFound
	}
	if !canControlVideo(member, room) {
		return domain.ErrControlForbidden
	}

	room.IsPlaying = isPlaying
	room.CurrentTime = currentTime
	return nil
}

// GenerateInvite mints a new invite for the room. Only host and moderator
// may manage invites; guest control never grants management.
func (c *SessionController) GenerateInvite(roomID domain.RoomID, userID domain.UserID, ttl time.Duration, maxUses int) (*domain.RoomInvite, error) {
	mu := c.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, ok := c.registry.Room(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	member := room.Member(userID)
	if member == nil {
		return nil, domain.ErrRoomNotFound
	}
	if !canManageRoom(member) {
		return nil, domain.ErrManageForbidden
	}

	if ttl <= 0 {
		ttl = c.defaults.InviteTTL
	}
	expires := c.now().Add(ttl)
	inv := &domain.RoomInvite{
		RoomID:    roomID,
		Code:      c.freshInviteCode(),
		ExpiresAt: &expires,
		MaxUses:   maxUses,
		CreatedBy: userID,
	}
	c.registry.PutInvite(inv)
	log.Info().Str("module", "app.session").Str("room", string(roomID)).Str("code", string(inv.Code)).Int("max_uses", maxUses).Msg("invite generated")
	return inv, nil
}

// InviteLink renders the shareable join URL for a code.
func (c *SessionController) InviteLink(code domain.InviteCode) string {
	return c.defaults.PublicBaseURL + "/join/" + string(code)
}

// Room returns a point-in-time copy taken under the room's lock.
func (c *SessionController) Room(id domain.RoomID) (*domain.Room, bool) {
	mu := c.roomLock(id)
	mu.Lock()
	defer mu.Unlock()
	room, ok := c.registry.Room(id)
	if !ok {
		c.dropRoomLock(id)
		return nil, false
	}
	return room.Snapshot(), true
}

// UserRooms lists copies of the rooms the user currently belongs to.
func (c *SessionController) UserRooms(userID domain.UserID) []*domain.Room {
	indexed := c.registry.RoomsOf(userID)
	out := make([]*domain.Room, 0, len(indexed))
	for _, room := range indexed {
		if snap, ok := c.Room(room.ID); ok {
			out = append(out, snap)
		}
	}
	return out
}

// PublicRooms lists non-private rooms by descending member count.
func (c *SessionController) PublicRooms(limit int) []*domain.Room {
	if limit <= 0 {
		limit = c.defaults.PublicRoomsLimit
	}
	all := c.registry.Rooms()
	public := make([]*domain.Room, 0, len(all))
	for _, room := range all {
		snap, ok := c.Room(room.ID)
		if !ok || snap.IsPrivate {
			continue
		}
		public = append(public, snap)
	}
	sort.SliceStable(public, func(i, j int) bool {
		return len(public[i].Members) > len(public[j].Members)
	})
	if len(public) > limit {
		public = public[:limit]
	}
	return public
}

func canControlVideo(u *domain.RoomUser, room *domain.Room) bool {
	return u.Role == domain.RoleHost || u.Role == domain.RoleModerator || room.Settings.AllowGuestControl
}

func canManageRoom(u *domain.RoomUser) bool {
	return u.Role == domain.RoleHost || u.Role == domain.RoleModerator
}
