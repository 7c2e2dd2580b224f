package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fenggwsx/roomcast/internal/protocol"
)

const transportTCP = "tcp"

// ListenTCP accepts framed TCP clients on addr until ctx is canceled.
func (g *Gateway) ListenTCP(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return g.ServeTCP(ctx, listener)
}

// ServeTCP accepts connections from listener until ctx is canceled or the
// listener fails. Each connection speaks length-prefixed JSON envelopes.
func (g *Gateway) ServeTCP(ctx context.Context, listener net.Listener) error {
	var closeOnce sync.Once
	stop := context.AfterFunc(ctx, func() {
		closeOnce.Do(func() { _ = listener.Close() })
	})
	defer stop()

	g.log.Info().Str("addr", listener.Addr().String()).Msg("tcp listener started")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go g.serveTCPConn(ctx, conn)
	}
}

func (g *Gateway) serveTCPConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("remote", conn.RemoteAddr().String()).Msg("tcp session panicked")
		}
	}()
	// Idle peers are probed by the kernel; the protocol has no heartbeat.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(g.opts.ReadTimeout)
	}
	g.serve(ctx, &tcpTransport{
		conn:        conn,
		decoder:     protocol.NewDecoder(conn, g.opts.MaxFrameBytes),
		encoder:     protocol.NewEncoder(conn),
		readTimeout: g.opts.ReadTimeout,
	}, 0)
}

type tcpTransport struct {
	conn        net.Conn
	decoder     *protocol.Decoder
	encoder     *protocol.Encoder
	readTimeout time.Duration
	closeOnce   sync.Once
}

func (t *tcpTransport) name() string { return transportTCP }

func (t *tcpTransport) remoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// read waits for the next frame without a deadline, so a member that only
// listens stays joined. Once a frame has started it must complete within
// readTimeout.
func (t *tcpTransport) read(ctx context.Context) (protocol.Envelope, error) {
	if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
		return protocol.Envelope{}, err
	}
	if err := t.decoder.Wait(ctx); err != nil {
		return protocol.Envelope{}, err
	}
	if err := t.conn.SetReadDeadline(deadline(t.readTimeout)); err != nil {
		return protocol.Envelope{}, err
	}
	return t.decoder.Decode(ctx)
}

func (t *tcpTransport) write(env protocol.Envelope, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.encoder.Encode(context.Background(), env)
}

func (t *tcpTransport) ping(time.Time) error { return nil }

func (t *tcpTransport) goodbye(time.Time) {}

func (t *tcpTransport) close() error {
	var err error
	t.closeOnce.Do(func() { err = t.conn.Close() })
	return err
}
