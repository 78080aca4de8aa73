package ws

import (
	"sync"

	"github.com/bytedance/sonic"

	"ai-sentinel/internal/domain/eventbus"
	"ai-sentinel/internal/utils"
)

// Hub tracks the active websocket sessions and fans analyzer events out to them.
type Hub struct {
	logger   *utils.Logger
	sessions sync.Map // map[string]*Session
}

// NewHub builds a fresh session hub.
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// Attach subscribes the hub to every analyzer topic. It is called once; the
// subscription outlives individual sessions.
func (h *Hub) Attach(bus eventbus.Subscriber) error {
	for _, topic := range eventbus.AnalyzerTopics {
		if err := bus.Subscribe(topic, h.Broadcast); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast encodes event once and queues it on every session.
func (h *Hub) Broadcast(event eventbus.AnalyzerEvent) {
	payload, err := sonic.Marshal(event)
	if err != nil {
		h.logger.ErrorTag("WebSocket", "failed to encode %s event: %v", event.Type, err)
		return
	}
	h.sessions.Range(func(_, value any) bool {
		if session, ok := value.(*Session); ok {
			if !session.Enqueue(payload) {
				h.logger.WarnTag("WebSocket", "dropping %s for slow client %s", event.Type, session.ID())
			}
		}
		return true
	})
}

// Register adds a new session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// CloseAll terminates all active sessions.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// Count exposes the number of active websocket sessions.
func (h *Hub) Count() int {
	count := 0
	h.sessions.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
