package ws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ai-sentinel/internal/utils"
)

const (
	defaultCloseTimeout = 5 * time.Second
	writeTimeout        = 10 * time.Second
	pingInterval        = 30 * time.Second
	sendQueueSize       = 64
)

// Session streams analyzer events to one subscribed client. Clients only
// listen; inbound frames are read to detect disconnects and otherwise ignored.
type Session struct {
	id     string
	conn   *Connection
	logger *utils.Logger
	send   chan []byte

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

// NewSession constructs a managed websocket session.
func NewSession(parent context.Context, conn *Connection, logger *utils.Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:     conn.ID(),
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendQueueSize),
		ctx:    sessionCtx,
		cancel: cancel,
	}
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ID exposes the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Enqueue queues payload without blocking. A full queue closes the session.
func (s *Session) Enqueue(payload []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		go s.Close(ErrSlowConsumer)
		return false
	}
}

// Run pumps queued events to the client until it disconnects or the session
// is closed, then invokes onDone with the cause.
func (s *Session) Run(onDone func(error)) {
	go s.writeLoop()

	var runErr error
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				runErr = err
			}
			break
		}
	}

	s.Close(runErr)
	if onDone != nil {
		onDone(runErr)
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload, time.Now().Add(writeTimeout)); err != nil {
				s.Close(err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.Close(err)
				return
			}
		}
	}
}

// Close attempts to gracefully terminate the session.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(reason)

	if !s.conn.IsClosed() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg, time.Now().Add(defaultCloseTimeout))
	}
	if err := s.conn.Close(); err != nil && s.logger != nil {
		s.logger.Warn("session %s connection close failed: %v", s.id, err)
	}
}
