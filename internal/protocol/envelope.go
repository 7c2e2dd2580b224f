package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType tags every frame on the wire.
type EventType string

const (
	TypeJoin  EventType = "join"
	TypeLeave EventType = "leave"
	TypeSend  EventType = "send"

	TypeNewMessage EventType = "new-message"
	TypeUserJoined EventType = "user-joined"
	TypeUserLeft   EventType = "user-left"
	TypeError      EventType = "error"
)

// Envelope wraps every payload sent over the wire.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrUnknownType is returned for frames whose tag is not part of the protocol.
var ErrUnknownType = errors.New("unknown event type")

// Inbound is the closed set of client-to-server events.
type Inbound interface {
	inbound()
}

// JoinEvent asks to enter a room under a nickname.
type JoinEvent struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
}

// LeaveEvent asks to leave a room.
type LeaveEvent struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
}

// SendEvent submits a chat message to a room.
type SendEvent struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func (JoinEvent) inbound()  {}
func (LeaveEvent) inbound() {}
func (SendEvent) inbound()  {}

// Outbound is the closed set of server-to-client events.
type Outbound interface {
	Type() EventType
}

// NewMessage carries a persisted chat message.
type NewMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemNotice announces a join or leave; it is never stored.
type SystemNotice struct {
	Kind            EventType `json:"-"`
	Sender          string    `json:"sender"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	IsSystemMessage bool      `json:"isSystemMessage"`
}

// ErrorEvent reports a failure to the originating connection only.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (NewMessage) Type() EventType     { return TypeNewMessage }
func (n SystemNotice) Type() EventType { return n.Kind }
func (ErrorEvent) Type() EventType     { return TypeError }

// JoinedNotice builds the user-joined notice for nickname.
func JoinedNotice(nickname string, at time.Time) SystemNotice {
	return SystemNotice{
		Kind:            TypeUserJoined,
		Sender:          nickname,
		Text:            nickname + " joined the room",
		Timestamp:       at,
		IsSystemMessage: true,
	}
}

// LeftNotice builds the user-left notice for nickname.
func LeftNotice(nickname string, at time.Time) SystemNotice {
	return SystemNotice{
		Kind:            TypeUserLeft,
		Sender:          nickname,
		Text:            nickname + " left the room",
		Timestamp:       at,
		IsSystemMessage: true,
	}
}

// DecodeInbound turns an envelope into its typed client event.
func DecodeInbound(env Envelope) (Inbound, error) {
	switch env.Type {
	case TypeJoin:
		return decodeInbound[JoinEvent](env)
	case TypeLeave:
		return decodeInbound[LeaveEvent](env)
	case TypeSend:
		return decodeInbound[SendEvent](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeOutbound turns an envelope into its typed server event.
func DecodeOutbound(env Envelope) (Outbound, error) {
	switch env.Type {
	case TypeNewMessage:
		return decodeOutbound[NewMessage](env)
	case TypeUserJoined, TypeUserLeft:
		e := SystemNotice{Kind: env.Type}
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	case TypeError:
		return decodeOutbound[ErrorEvent](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// WrapInbound builds the envelope for a client event.
func WrapInbound(event Inbound) (Envelope, error) {
	var t EventType
	switch event.(type) {
	case JoinEvent:
		t = TypeJoin
	case LeaveEvent:
		t = TypeLeave
	case SendEvent:
		t = TypeSend
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownType, event)
	}
	return wrap(t, event)
}

// WrapOutbound builds the envelope for a server event.
func WrapOutbound(event Outbound) (Envelope, error) {
	return wrap(event.Type(), event)
}

func wrap(t EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: data}, nil
}

func decodeInbound[T Inbound](env Envelope) (Inbound, error) {
	var e T
	if err := unmarshalPayload(env, &e); err != nil {
		return nil, err
	}
	return e, nil
}

func decodeOutbound[T Outbound](env Envelope) (Outbound, error) {
	var e T
	if err := unmarshalPayload(env, &e); err != nil {
		return nil, err
	}
	return e, nil
}

func unmarshalPayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
