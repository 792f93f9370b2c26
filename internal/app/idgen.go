package app

import (
	"strings"

	"github.com/google/uuid"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
)

// uuidIDGenerator mints room ids and invite codes from UUIDs.
// Uniqueness is collision-checked by the controller, not assumed here.
type uuidIDGenerator struct{}

func NewIDGenerator() core.IDGenerator { return uuidIDGenerator{} }

func (uuidIDGenerator) RoomID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "room_" + id[:9]
}

func (uuidIDGenerator) InviteCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:8])
}
