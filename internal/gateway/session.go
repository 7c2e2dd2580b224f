package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/roomcast/internal/metrics"
	"github.com/fenggwsx/roomcast/internal/protocol"
)

// transport is the wire behind a session: a websocket or a framed TCP stream.
type transport interface {
	name() string
	remoteAddr() string
	read(ctx context.Context) (protocol.Envelope, error)
	write(env protocol.Envelope, deadline time.Time) error
	// ping writes a keepalive probe; transports without one return nil.
	ping(deadline time.Time) error
	// goodbye tells the peer the server is closing the stream.
	goodbye(deadline time.Time)
	close() error
}

// session tracks one client connection and its outbound delivery queue.
type session struct {
	id   string
	wire transport

	mu     sync.Mutex
	sendCh chan protocol.Outbound
	closed bool

	closeOnce sync.Once
}

func newSession(wire transport, buffer int) *session {
	return &session{
		id:     uuid.NewString(),
		wire:   wire,
		sendCh: make(chan protocol.Outbound, buffer),
	}
}

func (s *session) ID() string { return s.id }

// Deliver queues event for the writer. It never blocks: events for a closed
// session or a full queue are dropped.
func (s *session) Deliver(event protocol.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.DeliveriesDropped.Inc()
		return
	}
	select {
	case s.sendCh <- event:
	default:
		metrics.DeliveriesDropped.Inc()
	}
}

// writeLoop drains the queue onto the wire until the session closes or a
// write fails. keepalive <= 0 disables pings.
func (s *session) writeLoop(writeTimeout, keepalive time.Duration) error {
	var tick <-chan time.Time
	if keepalive > 0 {
		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event, ok := <-s.sendCh:
			if !ok {
				s.wire.goodbye(deadline(writeTimeout))
				return nil
			}
			env, err := protocol.WrapOutbound(event)
			if err != nil {
				return err
			}
			if err := s.wire.write(env, deadline(writeTimeout)); err != nil {
				return err
			}
		case <-tick:
			if err := s.wire.ping(deadline(writeTimeout)); err != nil {
				return err
			}
		}
	}
}

// close stops delivery and lets the writer drain what is already queued.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.sendCh)
		s.mu.Unlock()
	})
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
