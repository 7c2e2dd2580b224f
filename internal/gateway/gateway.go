package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenggwsx/roomcast/internal/chat"
	"github.com/fenggwsx/roomcast/internal/metrics"
	"github.com/fenggwsx/roomcast/internal/protocol"
)

// Options tunes per-connection behavior.
type Options struct {
	SendBuffer    int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes int
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	return o
}

// Gateway adapts websocket and TCP connections to the broadcast engine.
type Gateway struct {
	engine *chat.Engine
	log    zerolog.Logger
	opts   Options

	mu       sync.Mutex
	sessions map[string]*session
	shutdown bool
	running  sync.WaitGroup
}

// New creates a gateway dispatching into engine.
func New(engine *chat.Engine, log zerolog.Logger, opts Options) *Gateway {
	return &Gateway{
		engine:   engine,
		log:      log.With().Str("component", "gateway").Logger(),
		opts:     opts.withDefaults(),
		sessions: make(map[string]*session),
	}
}

// Shutdown closes every open connection and waits until each one has run
// its disconnect handling, or until ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.shutdown = true
	sessions := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		_ = s.wire.close()
	}

	done := make(chan struct{})
	go func() {
		g.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serve runs the session until its transport fails, then replays the
// connection's last membership as a leave. It blocks for the whole session.
func (g *Gateway) serve(ctx context.Context, wire transport, keepalive time.Duration) {
	s := newSession(wire, g.opts.SendBuffer)
	if !g.track(s) {
		_ = wire.close()
		return
	}
	log := g.log.With().Str("conn", s.id).Str("transport", wire.name()).Str("remote", wire.remoteAddr()).Logger()
	log.Info().Msg("connection opened")
	metrics.ConnectionsActive.WithLabelValues(wire.name()).Inc()

	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := s.writeLoop(g.opts.WriteTimeout, keepalive); err != nil {
			log.Debug().Err(err).Msg("write failed")
		}
		// Unblock the reader if the writer gave up first.
		_ = wire.close()
	}()

	defer func() {
		cancel()
		if member, ok := g.engine.Registry().Lookup(s); ok {
			if err := g.engine.OnLeave(context.Background(), s, member.RoomID, member.Nickname); err != nil {
				log.Warn().Err(err).Msg("leave on disconnect")
			}
		}

		s.close()
		<-writerDone
		metrics.ConnectionsActive.WithLabelValues(wire.name()).Dec()
		log.Info().Msg("connection closed")
		g.untrack(s)
	}()

	g.readLoop(ctx, s, log)
}

func (g *Gateway) readLoop(ctx context.Context, s *session, log zerolog.Logger) {
	for {
		env, err := s.wire.read(ctx)
		if err != nil {
			var malformed *protocol.MalformedError
			if errors.As(err, &malformed) || errors.Is(err, protocol.ErrEmptyFrame) {
				metrics.FramesRejected.WithLabelValues(s.wire.name()).Inc()
				log.Debug().Err(err).Msg("frame rejected")
				s.Deliver(protocol.ErrorEvent{Message: chat.MsgInvalidMessage})
				continue
			}
			if !isClosed(err) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		event, err := protocol.DecodeInbound(env)
		if err != nil {
			metrics.FramesRejected.WithLabelValues(s.wire.name()).Inc()
			log.Debug().Err(err).Msg("event rejected")
			s.Deliver(protocol.ErrorEvent{Message: chat.MsgInvalidMessage})
			continue
		}
		g.dispatch(ctx, s, event)
	}
}

func (g *Gateway) dispatch(ctx context.Context, s *session, event protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("conn", s.id).Msg("event handling panicked")
			s.Deliver(protocol.ErrorEvent{Message: chat.MsgInternalFailure})
		}
	}()

	var err error
	switch e := event.(type) {
	case protocol.JoinEvent:
		err = g.engine.OnJoin(ctx, s, e.RoomID, e.Nickname)
	case protocol.LeaveEvent:
		err = g.engine.OnLeave(ctx, s, e.RoomID, e.Nickname)
	case protocol.SendEvent:
		err = g.engine.OnSend(ctx, s, e.RoomID, e.Sender, e.Text)
	}
	if err != nil {
		s.Deliver(protocol.ErrorEvent{Message: chat.ClientMessage(err)})
	}
}

func (g *Gateway) track(s *session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return false
	}
	g.sessions[s.id] = s
	g.running.Add(1)
	return true
}

func (g *Gateway) untrack(s *session) {
	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
	g.running.Done()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
