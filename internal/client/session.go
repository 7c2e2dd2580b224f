package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/fenggwsx/roomcast/internal/protocol"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	closeTimeout = time.Second
)

// Session manages the websocket connection to the room gateway.
type Session struct {
	url    string
	conn   *ws.Conn
	events chan protocol.Outbound
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	err       error
}

// NewSession prepares a session for the websocket endpoint of serverURL.
func NewSession(serverURL string) (*Session, error) {
	endpoint, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Session{
		url:    endpoint,
		events: make(chan protocol.Outbound, 64),
		done:   make(chan struct{}),
	}, nil
}

// Connect dials the gateway and starts reading server events.
func (s *Session) Connect(ctx context.Context) error {
	dialer := *ws.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	go s.readLoop()
	return nil
}

// Events yields server events until the connection ends.
func (s *Session) Events() <-chan protocol.Outbound {
	return s.events
}

// Err reports why the event stream ended.
func (s *Session) Err() error {
	return s.err
}

// Send writes a client event to the gateway.
func (s *Session) Send(ctx context.Context, event protocol.Inbound) error {
	if s.conn == nil {
		return errors.New("session not connected")
	}
	env, err := protocol.WrapInbound(event)
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(env)
}

// Close ends the session with a normal closure.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(closeTimeout))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			s.err = err
			return
		}
		event, err := protocol.DecodeOutbound(env)
		if err != nil {
			continue
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

// websocketURL maps an http(s) server URL to its /ws endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
