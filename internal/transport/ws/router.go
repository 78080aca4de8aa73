package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ai-sentinel/internal/platform/observability"
	"ai-sentinel/internal/utils"
)

// SnapshotTopic tags the greeting frame sent right after the upgrade.
const SnapshotTopic = "analyzer:snapshot"

// Greeting is the first frame of every stream.
type Greeting struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Snapshot any    `json:"snapshot,omitempty"`
}

// Router upgrades HTTP requests into event stream sessions.
type Router struct {
	hub    *Hub
	logger *utils.Logger

	upgrader *websocket.Upgrader
	snapshot func() any
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	// Snapshot, when set, provides the state sent in the greeting frame.
	Snapshot func() any
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger *utils.Logger, opts RouterOptions) *Router {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	upgrader := &websocket.Upgrader{
		HandshakeTimeout: timeout,
		CheckOrigin:      opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &Router{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
		snapshot: opts.Snapshot,
	}
}

// Handle upgrades the HTTP connection and streams analyzer events to it.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	spanCtx, spanEnd := observability.StartSpan(req.Context(), "transport.websocket", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.upgrade.error", 1, map[string]string{
			"component": "transport.websocket",
		})
		r.logger.ErrorTag("WebSocket", "handshake failed: %v", err)
		return
	}

	clientID := req.Header.Get("Client-Id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	r.logger.InfoTag("WebSocket", "stream opened client=%s", clientID)

	session := NewSession(context.WithoutCancel(spanCtx), NewConnection(clientID, conn), r.logger)

	greeting := Greeting{Type: SnapshotTopic, ClientID: clientID}
	if r.snapshot != nil {
		greeting.Snapshot = r.snapshot()
	}
	payload, err := sonic.Marshal(greeting)
	if err != nil {
		spanErr = err
		session.Close(err)
		return
	}
	session.Enqueue(payload)
	r.hub.Register(session)

	observability.RecordMetric(spanCtx, "websocket.connection.opened", 1, map[string]string{
		"component": "transport.websocket",
	})

	go session.Run(func(runErr error) {
		r.hub.Unregister(session.ID())
		if runErr != nil {
			r.logger.WarnTag("WebSocket", "stream %s ended: %v", session.ID(), runErr)
		} else {
			r.logger.InfoTag("WebSocket", "stream closed client=%s", session.ID())
		}
		observability.RecordMetric(session.Context(), "websocket.connection.closed", 1, map[string]string{
			"component": "transport.websocket",
		})
	})
}
