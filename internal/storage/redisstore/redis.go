package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fenggwsx/roomcast/internal/storage"
)

// MessageStore keeps each room's log in a sorted set scored by timestamp.
// Members start with the ULID, so equal scores sort in insertion order.
type MessageStore struct {
	client *redis.Client
}

var _ storage.MessageStore = (*MessageStore)(nil)

type record struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

// NewMessageStore connects to the Redis instance at redisURL.
func NewMessageStore(ctx context.Context, redisURL string) (*MessageStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &MessageStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *MessageStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *MessageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// Append stores a message in the room's sorted set.
func (s *MessageStore) Append(ctx context.Context, roomID, sender, text string) (storage.ChatMessage, error) {
	msg := storage.ChatMessage{
		ID:        storage.NewMessageID(),
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: storage.MessageTimestamp(),
	}
	data, err := json.Marshal(fromChatMessage(msg))
	if err != nil {
		return storage.ChatMessage{}, err
	}
	err = s.client.ZAdd(ctx, roomMessagesKey(roomID), redis.Z{
		Score:  float64(msg.Timestamp.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return storage.ChatMessage{}, err
	}
	return msg, nil
}

// ListByRoom returns the oldest limit messages of a room in ascending order.
func (s *MessageStore) ListByRoom(ctx context.Context, roomID string, limit int) ([]storage.ChatMessage, error) {
	limit = storage.NormalizeLimit(limit)
	members, err := s.client.ZRange(ctx, roomMessagesKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]storage.ChatMessage, 0, len(members))
	for _, member := range members {
		var r record
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, r.toChatMessage())
	}
	return messages, nil
}

func fromChatMessage(msg storage.ChatMessage) record {
	return record{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UnixMilli(),
	}
}

func (r record) toChatMessage() storage.ChatMessage {
	return storage.ChatMessage{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Sender:    r.Sender,
		Text:      r.Text,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
	}
}
