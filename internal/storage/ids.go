package storage

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

// RoomIDLength is the length of generated public room identifiers.
const RoomIDLength = 8

// NewRoomID returns a fresh short public room identifier.
func NewRoomID() (string, error) {
	return gonanoid.New(RoomIDLength)
}

// NewMessageID returns a monotonically increasing, time-ordered identifier.
func NewMessageID() string {
	return ulid.Make().String()
}

// MessageTimestamp returns the server timestamp assigned to a new message.
func MessageTimestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
