package domain

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

type (
	RoomName string
	RoomID   string
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrUnauthorized   = errors.New("only the room creator may control the stream")
	ErrRoomFull       = errors.New("room is full")
	ErrEmptyStreamKey = errors.New("stream key empty")
	ErrNotLive        = errors.New("receiver is not connected")
	ErrNotMember      = errors.New("receiver is not a room member")
)

func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}

// Room is a point-in-time copy of a room's state. Mutating it has no effect
// on the registry that produced it.
type Room struct {
	ID        RoomID      `json:"id"`
	Name      RoomName    `json:"name"`
	Creator   SessionID   `json:"creator"`
	Members   []SessionID `json:"members"`
	StreamKey string      `json:"stream_key,omitempty"`
}

func (r Room) Streaming() bool { return r.StreamKey != "" }

// TruncateRoomName keeps display names within MaxRoomNameLen bytes without
// splitting a UTF-8 sequence.
func TruncateRoomName(name string) RoomName {
	if len(name) <= MaxRoomNameLen {
		return RoomName(name)
	}
	cut := MaxRoomNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return RoomName(name[:cut])
}
