package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/fenggwsx/roomcast/internal/metrics"
	"github.com/fenggwsx/roomcast/internal/protocol"
	"github.com/fenggwsx/roomcast/internal/storage"
)

const (
	MaxNicknameLength = 20
	MaxTextLength     = 500
)

// Engine applies join, leave and send events to room state, persists chat
// messages and fans events out to room members.
type Engine struct {
	registry *Registry
	store    storage.MessageStore
	log      zerolog.Logger
	locks    roomLocks
	now      func() time.Time
}

// NewEngine wires an engine to its registry and message store.
func NewEngine(registry *Registry, store storage.MessageStore, log zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		log:      log.With().Str("component", "engine").Logger(),
		locks:    roomLocks{rooms: make(map[string]*roomLock)},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Registry returns the registry the engine fans out through.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// OnJoin registers conn in roomID and notifies the other members.
func (e *Engine) OnJoin(ctx context.Context, conn Conn, roomID, nickname string) error {
	roomID = strings.TrimSpace(roomID)
	nickname = strings.TrimSpace(nickname)
	if roomID == "" {
		metrics.ValidationFailures.WithLabelValues(string(protocol.TypeJoin)).Inc()
		return invalid(MsgInvalidJoin, "room id required")
	}
	if nickname == "" || utf8.RuneCountInString(nickname) > MaxNicknameLength {
		metrics.ValidationFailures.WithLabelValues(string(protocol.TypeJoin)).Inc()
		return invalid(MsgInvalidJoin, "nickname must be 1-20 characters")
	}

	if vacated := e.registry.Register(conn, roomID, nickname); vacated != "" {
		e.log.Debug().Str("conn", conn.ID()).Str("room", vacated).Msg("previous room vacated by join")
	}
	metrics.Joins.Inc()
	e.log.Info().Str("conn", conn.ID()).Str("room", roomID).Str("nickname", nickname).Msg("joined room")

	e.fanOut(e.registry.MembersOf(roomID), protocol.JoinedNotice(nickname, e.now()), conn)
	return nil
}

// OnLeave removes conn from roomID and notifies the remaining members.
// Leaving a room the connection is not in does nothing.
func (e *Engine) OnLeave(ctx context.Context, conn Conn, roomID, nickname string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		metrics.ValidationFailures.WithLabelValues(string(protocol.TypeLeave)).Inc()
		return invalid(MsgInvalidLeave, "room id required")
	}

	member, ok := e.registry.Unregister(conn, roomID)
	if !ok {
		return nil
	}
	if nick := strings.TrimSpace(nickname); nick != "" {
		member.Nickname = nick
	}
	metrics.Leaves.Inc()
	e.log.Info().Str("conn", conn.ID()).Str("room", roomID).Str("nickname", member.Nickname).Msg("left room")

	e.fanOut(e.registry.MembersOf(roomID), protocol.LeftNotice(member.Nickname, e.now()), nil)
	return nil
}

// OnSend persists a chat message and broadcasts the stored record to every
// member of the room, the sender included. Persist and broadcast run under
// the room's lock so members observe messages in stored order.
func (e *Engine) OnSend(ctx context.Context, conn Conn, roomID, sender, text string) error {
	roomID = strings.TrimSpace(roomID)
	sender = strings.TrimSpace(sender)
	text = strings.TrimSpace(text)
	if roomID == "" || sender == "" || text == "" {
		metrics.ValidationFailures.WithLabelValues(string(protocol.TypeSend)).Inc()
		return invalid(MsgInvalidMessage, "room id, sender and text required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		metrics.ValidationFailures.WithLabelValues(string(protocol.TypeSend)).Inc()
		return invalid(MsgInvalidMessage, "text exceeds 500 characters")
	}

	unlock := e.locks.lock(roomID)
	defer unlock()

	// An accepted message is stored even if the sender disconnects meanwhile.
	start := time.Now()
	msg, err := e.store.Append(context.WithoutCancel(ctx), roomID, sender, text)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageFailures.Inc()
		e.log.Error().Err(err).Str("room", roomID).Str("sender", sender).Msg("message not stored")
		return &StorageError{Err: err}
	}
	metrics.MessagesStored.Inc()
	e.log.Info().Str("id", msg.ID).Str("room", roomID).Str("sender", sender).Int("len", len(text)).Msg("chat message stored")

	members := e.registry.MembersOf(roomID)
	if !lo.ContainsBy(members, func(c Conn) bool { return c.ID() == conn.ID() }) {
		members = append(members, conn)
	}
	e.fanOut(members, ToNewMessage(msg), nil)
	return nil
}

// History returns the replay log served to joining clients.
func (e *Engine) History(ctx context.Context, roomID string, limit int) ([]storage.ChatMessage, error) {
	return e.store.ListByRoom(ctx, strings.TrimSpace(roomID), limit)
}

func (e *Engine) fanOut(members []Conn, event protocol.Outbound, exclude Conn) {
	targets := members
	if exclude != nil {
		targets = lo.Reject(members, func(c Conn, _ int) bool { return c.ID() == exclude.ID() })
	}
	for _, c := range targets {
		c.Deliver(event)
	}
}

// ToNewMessage converts a stored message to its wire event.
func ToNewMessage(msg storage.ChatMessage) protocol.NewMessage {
	return protocol.NewMessage{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
}

// roomLocks hands out one mutex per room, dropping it once unused.
type roomLocks struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func (l *roomLocks) lock(roomID string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.rooms, roomID)
		}
		l.mu.Unlock()
	}
}
