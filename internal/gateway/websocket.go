package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/fenggwsx/roomcast/internal/protocol"
)

const (
	transportWebSocket = "websocket"

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers on other origins are allowed, as for the HTTP API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket and runs the chat session on
// it until the peer goes away.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		g.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(int64(g.opts.MaxFrameBytes))
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	g.serve(r.Context(), &wsTransport{conn: conn}, pingPeriod)
}

type wsTransport struct {
	conn      *ws.Conn
	closeOnce sync.Once
}

func (t *wsTransport) name() string { return transportWebSocket }

func (t *wsTransport) remoteAddr() string { return t.conn.RemoteAddr().String() }

func (t *wsTransport) read(context.Context) (protocol.Envelope, error) {
	var env protocol.Envelope
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return env, err
	}
	// Any frame from the peer proves it is alive.
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	if kind != ws.TextMessage {
		return env, &protocol.MalformedError{Err: errors.New("binary frame")}
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, &protocol.MalformedError{Err: err}
	}
	return env, nil
}

func (t *wsTransport) write(env protocol.Envelope, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteJSON(env)
}

func (t *wsTransport) ping(deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(ws.PingMessage, nil)
}

func (t *wsTransport) goodbye(deadline time.Time) {
	_ = t.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), deadline)
}

func (t *wsTransport) close() error {
	var err error
	t.closeOnce.Do(func() { err = t.conn.Close() })
	return err
}
