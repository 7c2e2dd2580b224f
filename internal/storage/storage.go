//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=mocks/mock_storage.go -package=mocks
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultHistoryLimit caps history reads when the caller passes no limit.
const DefaultHistoryLimit = 100

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write collides with a unique key.
	ErrDuplicate = errors.New("duplicate key")
)

// User represents a persisted account record.
type User struct {
	ID        string
	Username  string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Room is a durably registered chat channel addressed by its public RoomID.
type Room struct {
	RoomID    string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// ChatMessage is an immutable entry of a room's message log.
type ChatMessage struct {
	ID        string
	RoomID    string
	Sender    string
	Text      string
	Timestamp time.Time
}

// MessageStore is the append-only message log, one stream per room.
type MessageStore interface {
	// Append persists a message and returns it with its assigned id and timestamp.
	Append(ctx context.Context, roomID, sender, text string) (ChatMessage, error)
	// ListByRoom returns the oldest limit messages of the room, ascending by timestamp.
	ListByRoom(ctx context.Context, roomID string, limit int) ([]ChatMessage, error)
}

// RoomDirectory maps public room identifiers to room metadata.
type RoomDirectory interface {
	Create(ctx context.Context, name, ownerID string) (Room, error)
	FindByRoomID(ctx context.Context, roomID string) (Room, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Room, error)
}

// UserStore persists accounts for room owners.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// NormalizeLimit maps non-positive limits to DefaultHistoryLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
