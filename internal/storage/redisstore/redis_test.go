package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Requires a live server; set ROOMCAST_TEST_REDIS_URL to run.
func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	url := os.Getenv("ROOMCAST_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ROOMCAST_TEST_REDIS_URL not set")
	}
	store, err := NewMessageStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMessageStore_RoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	room := uuid.NewString()[:8]
	t.Cleanup(func() { store.client.Del(context.Background(), roomMessagesKey(room)) })

	var sent []string
	for i := 0; i < 120; i++ {
		msg, err := store.Append(ctx, room, "alice", fmt.Sprintf("message %d", i))
		req.NoError(err)
		sent = append(sent, msg.ID)
	}

	messages, err := store.ListByRoom(ctx, room, 100)
	req.NoError(err)
	req.Len(messages, 100)
	for i, msg := range messages {
		req.Equal(sent[i], msg.ID)
		req.Equal(fmt.Sprintf("message %d", i), msg.Text)
	}
}

func TestRecord_Conversion(t *testing.T) {
	r := record{ID: "01J0000000000000000000000", RoomID: "abc12345", Sender: "bob", Text: "yo", Timestamp: 1700000000123}

	msg := r.toChatMessage()

	require.Equal(t, r, fromChatMessage(msg))
	require.Equal(t, int64(1700000000123), msg.Timestamp.UnixMilli())
}
