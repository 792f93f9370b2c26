// Package core defines the capability interfaces the session and voice
// layers depend on. Adapters own the concrete resources and must close them.
package core

// IDGenerator mints identifiers. Implementations do not guarantee global
// uniqueness; callers collision-check against their registry and re-draw.
type IDGenerator interface {
	RoomID() string
	InviteCode() string
}
