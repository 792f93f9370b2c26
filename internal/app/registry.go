package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// RoomRegistry is pure storage: rooms by id, invites by code, and the
// reverse user->rooms index. Callers are responsible for invariants.
type RoomRegistry struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]*domain.Room
	invites   map[domain.InviteCode]*domain.RoomInvite
	userRooms map[domain.UserID]map[domain.RoomID]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:     make(map[domain.RoomID]*domain.Room),
		invites:   make(map[domain.InviteCode]*domain.RoomInvite),
		userRooms: make(map[domain.UserID]map[domain.RoomID]struct{}),
	}
}

func (r *RoomRegistry) PutRoom(room *domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room
	log.Debug().Str("module", "app.registry").Str("room", string(room.ID)).Msg("room stored")
}

// DeleteRoom drops the room and its user-index entries. Invites pointing at
// the room are retained; they simply resolve to nothing afterwards.
func (r *RoomRegistry) DeleteRoom(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return
	}
	for _, m := range room.Members {
		if set, ok := r.userRooms[m.ID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.userRooms, m.ID)
			}
		}
	}
	delete(r.rooms, id)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room deleted")
}

func (r *RoomRegistry) Room(id domain.RoomID) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRegistry) HasRoom(id domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[id]
	return ok
}

func (r *RoomRegistry) Rooms() []*domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

func (r *RoomRegistry) PutInvite(inv *domain.RoomInvite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invites[inv.Code] = inv
	log.Debug().Str("module", "app.registry").Str("code", string(inv.Code)).Str("room", string(inv.RoomID)).Msg("invite stored")
}

func (r *RoomRegistry) Invite(code domain.InviteCode) (*domain.RoomInvite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invites[code]
	return inv, ok
}

func (r *RoomRegistry) HasInvite(code domain.InviteCode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.invites[code]
	return ok
}

// BindUser records a user<->room association.
func (r *RoomRegistry) BindUser(uid domain.UserID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.userRooms[uid]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		r.userRooms[uid] = set
	}
	set[roomID] = struct{}{}
}

// UnbindUser forgets a user<->room association.
func (r *RoomRegistry) UnbindUser(uid domain.UserID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.userRooms[uid]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(r.userRooms, uid)
		}
	}
}

// RoomsOf returns the rooms the user is currently associated with.
func (r *RoomRegistry) RoomsOf(uid domain.UserID) []*domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.userRooms[uid]
	out := make([]*domain.Room, 0, len(set))
	for id := range set {
		if room, ok := r.rooms[id]; ok {
			out = append(out, room)
		}
	}
	return out
}
