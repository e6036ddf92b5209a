package db

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ConnState is the notification connection lifecycle state
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateListening
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}

// EventKind discriminates what NextEvent produced
type EventKind int

const (
	// EventTimeout means no notification arrived within the keepalive
	// window
	EventTimeout EventKind = iota
	// EventNotify carries a notification payload naming a target
	EventNotify
)

// Event is one occurrence pulled off the notification connection
type Event struct {
	Kind   EventKind
	Target string // notification payload, set for EventNotify
}

// Listener owns the dedicated LISTEN/NOTIFY connection. It does not
// retry on its own; the event loop decides when to reconnect and calls
// Connect again.
type Listener struct {
	dsn     string
	channel string

	conn   *pq.ListenerConn
	notify chan *pq.Notification
	state  atomic.Int32
}

// NewListener creates a listener for the given channel. No connection
// is made until Connect.
func NewListener(dsn, channel string) *Listener {
	return &Listener{dsn: dsn, channel: channel}
}

// State reports the current connection state. Safe to call from other
// goroutines (status endpoint).
func (l *Listener) State() ConnState {
	return ConnState(l.state.Load())
}

func (l *Listener) setState(s ConnState) {
	l.state.Store(int32(s))
}

// Connect dials the database and subscribes to the channel. Any
// failure leaves the listener disconnected; the caller owns retry
// pacing.
func (l *Listener) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.setState(StateConnecting)

	notify := make(chan *pq.Notification, 32)
	conn, err := pq.NewListenerConn(l.dsn, notify)
	if err != nil {
		l.setState(StateDisconnected)
		return fmt.Errorf("failed to connect: %w", err)
	}

	ok, err := conn.Listen(l.channel)
	if err != nil || !ok {
		conn.Close()
		l.setState(StateDisconnected)
		if err == nil {
			err = ErrListenerClosed
		}
		return fmt.Errorf("failed to listen on %q: %w", l.channel, err)
	}

	l.conn = conn
	l.notify = notify
	l.setState(StateListening)

	log.Debug().Str("channel", l.channel).Msg("Listening for notifications")
	return nil
}

// NextEvent blocks until a notification arrives, the timeout elapses,
// or the context is cancelled. Connection loss surfaces as an error;
// the closed notification channel is how lib/pq reports it.
func (l *Listener) NextEvent(ctx context.Context, timeout time.Duration) (Event, error) {
	if l.State() != StateListening || l.notify == nil {
		return Event{}, ErrListenerClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case n, open := <-l.notify:
		if !open {
			err := l.conn.Err()
			l.setState(StateDisconnected)
			if err == nil {
				err = ErrListenerClosed
			}
			return Event{}, fmt.Errorf("notification connection lost: %w", err)
		}
		return Event{Kind: EventNotify, Target: n.Extra}, nil
	case <-timer.C:
		return Event{Kind: EventTimeout}, nil
	}
}

// Ping round-trips the notification connection to detect a silently
// dead socket before trusting the next blocking wait
func (l *Listener) Ping() error {
	if l.conn == nil {
		return ErrListenerClosed
	}
	return l.conn.Ping()
}

// Close unsubscribes and closes the connection, best effort. Used for
// shutdown and before reconnect attempts; a broken connection must
// never block teardown.
func (l *Listener) Close() {
	if l.conn != nil {
		_, _ = l.conn.UnlistenAll()
		_ = l.conn.Close()
		l.conn = nil
		l.notify = nil
	}
	l.setState(StateDisconnected)
}
