package room

import "errors"

var (
	// ErrRoomNotFound is returned for any operation naming a room code
	// that is not currently registered.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when a caller-supplied room code collides
	// with an active room. Creates never overwrite.
	ErrRoomExists = errors.New("room already exists")

	// ErrNotParticipant is returned when the sender of a chat, draw, or
	// leave event never joined the room.
	ErrNotParticipant = errors.New("not a participant of this room")
)
