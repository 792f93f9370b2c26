package domain

import "errors"

var (
	// ErrRoomNotFound: the key resolved to no room and no invite.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull: the room already holds MaxUsers members.
	ErrRoomFull = errors.New("room full")
	// ErrInviteInvalid covers unknown, expired and exhausted codes;
	// callers act on all three uniformly.
	ErrInviteInvalid = errors.New("invite invalid")

	ErrControlForbidden = errors.New("playback control forbidden")
	ErrManageForbidden  = errors.New("room management forbidden")

	ErrMediaAccess       = errors.New("media access denied")
	ErrSignalDelivery    = errors.New("signaling delivery failed")
	ErrVideoUnresolvable = errors.New("video url unresolvable")
)
