package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/roomcast/internal/config"
	"github.com/fenggwsx/roomcast/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "roomcast.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestStore_Append_And_ListByRoom_RoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	// Given two messages in one room and one in another
	first, err := store.Append(ctx, "abc12345", "alice", "hi")
	req.NoError(err)
	second, err := store.Append(ctx, "abc12345", "bob", "hello")
	req.NoError(err)
	_, err = store.Append(ctx, "zzz99999", "carol", "elsewhere")
	req.NoError(err)

	// When the room history is read back
	messages, err := store.ListByRoom(ctx, "abc12345", 0)
	req.NoError(err)

	// Then it matches what Append returned, in order
	req.Len(messages, 2)
	req.Equal(first, messages[0])
	req.Equal(second, messages[1])
	req.NotEmpty(first.ID)
	req.False(first.Timestamp.IsZero())
}

func TestStore_ListByRoom_HeadLimit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 150; i++ {
		_, err := store.Append(ctx, "abc12345", "alice", fmt.Sprintf("message %d", i))
		req.NoError(err)
	}

	messages, err := store.ListByRoom(ctx, "abc12345", storage.DefaultHistoryLimit)
	req.NoError(err)

	// The oldest 100 are returned, ascending
	req.Len(messages, 100)
	req.Equal("message 0", messages[0].Text)
	req.Equal("message 99", messages[99].Text)
	for i := 1; i < len(messages); i++ {
		req.False(messages[i].Timestamp.Before(messages[i-1].Timestamp))
	}
}

func TestStore_ListByRoom_TiesKeepInsertionOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		model := messageModel{
			ID:        storage.NewMessageID(),
			RoomID:    "abc12345",
			Sender:    "alice",
			Text:      fmt.Sprintf("tie %d", i),
			Timestamp: at,
		}
		req.NoError(store.db.WithContext(ctx).Create(&model).Error)
	}

	messages, err := store.ListByRoom(ctx, "abc12345", 10)
	req.NoError(err)
	req.Len(messages, 5)
	for i, msg := range messages {
		req.Equal(fmt.Sprintf("tie %d", i), msg.Text)
	}
}

func TestStore_ListByRoom_UnknownRoomIsEmpty(t *testing.T) {
	store := newTestStore(t)

	messages, err := store.ListByRoom(context.Background(), "missing1", 100)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestStore_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	owner := uuid.NewString()

	// When a room is created
	room, err := store.Create(ctx, "general", owner)
	req.NoError(err)

	// Then it gets a short public identifier and can be found by it
	req.Len(room.RoomID, storage.RoomIDLength)
	found, err := store.FindByRoomID(ctx, room.RoomID)
	req.NoError(err)
	req.Equal(room.Name, found.Name)
	req.Equal(owner, found.OwnerID)

	other, err := store.Create(ctx, "random", owner)
	req.NoError(err)
	req.NotEqual(room.RoomID, other.RoomID)

	_, err = store.Create(ctx, "not mine", uuid.NewString())
	req.NoError(err)

	rooms, err := store.ListByOwner(ctx, owner)
	req.NoError(err)
	req.Len(rooms, 2)
	req.Equal(other.RoomID, rooms[0].RoomID)
	req.Equal(room.RoomID, rooms[1].RoomID)
}

func TestStore_FindByRoomID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByRoomID(context.Background(), "nope0000")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Users(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	user := &storage.User{ID: uuid.NewString(), Username: "alice", Password: "hash", CreatedAt: now, UpdatedAt: now}
	req.NoError(store.CreateUser(ctx, user))

	found, err := store.GetUserByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal(user.ID, found.ID)

	_, err = store.GetUserByUsername(ctx, "bob")
	req.ErrorIs(err, storage.ErrNotFound)

	err = store.CreateUser(ctx, &storage.User{ID: uuid.NewString(), Username: "alice"})
	req.ErrorIs(err, storage.ErrDuplicate)
}
