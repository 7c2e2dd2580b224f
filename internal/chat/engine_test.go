package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fenggwsx/roomcast/internal/protocol"
	"github.com/fenggwsx/roomcast/internal/storage"
	"github.com/fenggwsx/roomcast/internal/storage/mocks"
)

// memStore is an in-memory message log used where call expectations do not matter.
type memStore struct {
	mu   sync.Mutex
	seq  int
	msgs []storage.ChatMessage
}

func (s *memStore) Append(_ context.Context, roomID, sender, text string) (storage.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg := storage.ChatMessage{
		ID:        fmt.Sprintf("m%04d", s.seq),
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: storage.MessageTimestamp(),
	}
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *memStore) ListByRoom(_ context.Context, roomID string, limit int) ([]storage.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ChatMessage
	for _, m := range s.msgs {
		if m.RoomID == roomID && len(out) < storage.NormalizeLimit(limit) {
			out = append(out, m)
		}
	}
	return out, nil
}

func newTestEngine(store storage.MessageStore) *Engine {
	return NewEngine(NewRegistry(), store, zerolog.Nop())
}

func newMessages(events []protocol.Outbound) []protocol.NewMessage {
	var out []protocol.NewMessage
	for _, e := range events {
		if m, ok := e.(protocol.NewMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestEngine_JoinNotifiesOthersOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	alice, bob := newFakeConn("a"), newFakeConn("b")

	req.NoError(engine.OnJoin(ctx, alice, "abc12345", "alice"))
	req.NoError(engine.OnJoin(ctx, bob, "abc12345", " bob "))

	req.Empty(bob.received())
	events := alice.received()
	req.Len(events, 1)
	notice, ok := events[0].(protocol.SystemNotice)
	req.True(ok)
	req.Equal(protocol.TypeUserJoined, notice.Type())
	req.Equal("bob", notice.Sender)
	req.Equal("bob joined the room", notice.Text)
	req.True(notice.IsSystemMessage)
}

func TestEngine_JoinValidation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	conn := newFakeConn("a")

	cases := map[string]struct{ room, nick string }{
		"empty room":     {"", "alice"},
		"empty nickname": {"room1", "   "},
		"long nickname":  {"room1", "abcdefghijklmnopqrstu"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := engine.OnJoin(ctx, conn, tc.room, tc.nick)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			require.Equal(t, MsgInvalidJoin, ClientMessage(err))
		})
	}
	require.Zero(t, engine.Registry().Connections())

	// Twenty multi-byte runes still fit.
	require.NoError(t, engine.OnJoin(ctx, conn, "room1", "ééééééééééééééééééém"))
}

func TestEngine_LeaveNotifiesRemainingMembers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	alice, bob := newFakeConn("a"), newFakeConn("b")
	req.NoError(engine.OnJoin(ctx, alice, "room1", "alice"))
	req.NoError(engine.OnJoin(ctx, bob, "room1", "bob"))

	req.NoError(engine.OnLeave(ctx, bob, "room1", ""))

	events := alice.received()
	req.Len(events, 2)
	notice := events[1].(protocol.SystemNotice)
	req.Equal(protocol.TypeUserLeft, notice.Type())
	req.Equal("bob left the room", notice.Text)
	req.Empty(bob.received())
}

func TestEngine_LeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	alice, bob := newFakeConn("a"), newFakeConn("b")
	req.NoError(engine.OnJoin(ctx, alice, "room1", "alice"))

	// Given bob never joined
	// When bob leaves
	req.NoError(engine.OnLeave(ctx, bob, "room1", "bob"))
	// Then nobody hears about it
	req.Empty(alice.received())

	req.NoError(engine.OnJoin(ctx, bob, "room1", "bob"))
	req.NoError(engine.OnLeave(ctx, bob, "room1", "bob"))
	req.NoError(engine.OnLeave(ctx, bob, "room1", "bob"))
	req.Len(alice.received(), 2)
}

func TestEngine_LeaveUsesSuppliedNickname(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	alice, bob := newFakeConn("a"), newFakeConn("b")
	req.NoError(engine.OnJoin(ctx, alice, "room1", "alice"))
	req.NoError(engine.OnJoin(ctx, bob, "room1", "bob"))

	req.NoError(engine.OnLeave(ctx, bob, "room1", "robert"))

	events := alice.received()
	req.Equal("robert", events[len(events)-1].(protocol.SystemNotice).Sender)
}

func TestEngine_SendBroadcastsStoredMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	engine := newTestEngine(store)
	alice, bob := newFakeConn("a"), newFakeConn("b")
	req.NoError(engine.OnJoin(ctx, alice, "abc12345", "alice"))
	req.NoError(engine.OnJoin(ctx, bob, "abc12345", "bob"))

	stamp := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	stored := storage.ChatMessage{ID: "01HZY", RoomID: "abc12345", Sender: "alice", Text: "hi", Timestamp: stamp}
	store.EXPECT().Append(gomock.Any(), "abc12345", "alice", "hi").Return(stored, nil)

	req.NoError(engine.OnSend(ctx, alice, "abc12345", "alice", "  hi  "))

	want := protocol.NewMessage{ID: "01HZY", RoomID: "abc12345", Sender: "alice", Text: "hi", Timestamp: stamp}
	req.Equal([]protocol.NewMessage{want}, newMessages(alice.received()))
	req.Equal([]protocol.NewMessage{want}, newMessages(bob.received()))
}

func TestEngine_SendRejectsEmptyAndLongText(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	// No Append expectation: the store must not be touched.
	store := mocks.NewMockMessageStore(ctrl)
	engine := newTestEngine(store)
	alice, bob := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, engine.OnJoin(ctx, alice, "room1", "alice"))
	require.NoError(t, engine.OnJoin(ctx, bob, "room1", "bob"))
	before := len(alice.received())

	long := make([]rune, MaxTextLength+1)
	for i := range long {
		long[i] = 'x'
	}
	for name, text := range map[string]string{"blank": "   ", "empty": "", "too long": string(long)} {
		t.Run(name, func(t *testing.T) {
			err := engine.OnSend(ctx, alice, "room1", "alice", text)
			require.Error(t, err)
			require.Equal(t, MsgInvalidMessage, ClientMessage(err))
		})
	}

	require.Len(t, alice.received(), before)
	require.Empty(t, bob.received())
}

func TestEngine_SendMissingFields(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	conn := newFakeConn("a")

	require.Equal(t, MsgInvalidMessage, ClientMessage(engine.OnSend(ctx, conn, "", "alice", "hi")))
	require.Equal(t, MsgInvalidMessage, ClientMessage(engine.OnSend(ctx, conn, "room1", "", "hi")))
	require.Empty(t, conn.received())
}

func TestEngine_StorageFailureDropsMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	engine := newTestEngine(store)
	alice, bob := newFakeConn("a"), newFakeConn("b")
	req.NoError(engine.OnJoin(ctx, alice, "room1", "alice"))
	req.NoError(engine.OnJoin(ctx, bob, "room1", "bob"))
	before := len(alice.received())

	boom := errors.New("disk full")
	store.EXPECT().Append(gomock.Any(), "room1", "alice", "hi").Return(storage.ChatMessage{}, boom)

	err := engine.OnSend(ctx, alice, "room1", "alice", "hi")

	var storageErr *StorageError
	req.ErrorAs(err, &storageErr)
	req.ErrorIs(err, boom)
	req.Equal(MsgSendFailed, ClientMessage(err))
	req.Len(alice.received(), before)
	req.Empty(bob.received())

	// Joins keep working while the store is down.
	carol := newFakeConn("c")
	req.NoError(engine.OnJoin(ctx, carol, "room1", "carol"))
}

func TestEngine_SendSurvivesCanceledContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	engine := newTestEngine(store)
	alice := newFakeConn("a")
	req.NoError(engine.OnJoin(context.Background(), alice, "room1", "alice"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store.EXPECT().Append(gomock.Any(), "room1", "alice", "bye").
		DoAndReturn(func(ctx context.Context, roomID, sender, text string) (storage.ChatMessage, error) {
			if err := ctx.Err(); err != nil {
				return storage.ChatMessage{}, err
			}
			return storage.ChatMessage{ID: "x", RoomID: roomID, Sender: sender, Text: text}, nil
		})

	req.NoError(engine.OnSend(ctx, alice, "room1", "alice", "bye"))
	req.Len(newMessages(alice.received()), 1)
}

func TestEngine_NonMemberSenderGetsEcho(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := newTestEngine(&memStore{})
	alice, outsider := newFakeConn("a"), newFakeConn("o")
	req.NoError(engine.OnJoin(ctx, alice, "room1", "alice"))

	req.NoError(engine.OnSend(ctx, outsider, "room1", "ghost", "boo"))

	req.Len(newMessages(alice.received()), 1)
	req.Len(newMessages(outsider.received()), 1)
}

func TestEngine_FIFOPerRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := &memStore{}
	engine := newTestEngine(store)

	members := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for i, m := range members {
		req.NoError(engine.OnJoin(ctx, m, "room1", fmt.Sprintf("user%d", i)))
	}

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(sender *fakeConn, n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = engine.OnSend(ctx, sender, "room1", fmt.Sprintf("user%d", n), fmt.Sprintf("msg %d", j))
			}
		}(m, i)
	}
	wg.Wait()

	persisted, err := store.ListByRoom(ctx, "room1", 1000)
	req.NoError(err)
	req.Len(persisted, 150)
	wantIDs := make([]string, len(persisted))
	for i, m := range persisted {
		wantIDs[i] = m.ID
	}

	for _, m := range members {
		got := newMessages(m.received())
		gotIDs := make([]string, len(got))
		for i, msg := range got {
			gotIDs[i] = msg.ID
		}
		req.Equal(wantIDs, gotIDs)
	}
}

func TestEngine_AliceBobScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := &memStore{}
	engine := newTestEngine(store)
	alice, bob := newFakeConn("a"), newFakeConn("b")

	req.NoError(engine.OnJoin(ctx, alice, "abc12345", "alice"))
	req.NoError(engine.OnJoin(ctx, bob, "abc12345", "bob"))
	req.NoError(engine.OnSend(ctx, alice, "abc12345", "alice", "hi"))

	req.Len(newMessages(alice.received()), 1)
	req.Len(newMessages(bob.received()), 1)

	// Abrupt disconnect: the gateway replays the recorded membership.
	member, ok := engine.Registry().Lookup(bob)
	req.True(ok)
	req.NoError(engine.OnLeave(ctx, bob, member.RoomID, member.Nickname))

	events := alice.received()
	last := events[len(events)-1].(protocol.SystemNotice)
	req.Equal(protocol.TypeUserLeft, last.Type())
	req.Equal("bob", last.Sender)

	history, err := engine.History(ctx, "abc12345", 0)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(newMessages(bob.received())[0], ToNewMessage(history[0]))
}

func TestRoomLocks_ReleaseEntries(t *testing.T) {
	req := require.New(t)
	locks := roomLocks{rooms: make(map[string]*roomLock)}

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	req.Len(locks.rooms, 2)
	unlockA()
	unlockB()
	req.Empty(locks.rooms)
}
