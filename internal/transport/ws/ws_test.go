package ws

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/eventbus"
	"ai-sentinel/internal/utils"
)

func dialStream(t *testing.T, router *Router) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(router.Handle))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, sonic.Unmarshal(payload, out))
}

func TestRouter_StreamsBusEvents(t *testing.T) {
	logger := utils.NewConsoleLogger(&bytes.Buffer{}, "ERROR")
	hub := NewHub(logger)
	bus := eventbus.New()
	require.NoError(t, hub.Attach(bus))

	router := NewRouter(hub, logger, RouterOptions{
		Snapshot: func() any { return map[string]string{"mode": "idle"} },
	})
	conn := dialStream(t, router)

	var greeting struct {
		Type     string            `json:"type"`
		ClientID string            `json:"clientId"`
		Snapshot map[string]string `json:"snapshot"`
	}
	readFrame(t, conn, &greeting)
	assert.Equal(t, SnapshotTopic, greeting.Type)
	assert.NotEmpty(t, greeting.ClientID)
	assert.Equal(t, "idle", greeting.Snapshot["mode"])
	assert.Equal(t, 1, hub.Count())

	bus.Publish(eventbus.TopicAnalyzerStage, eventbus.AnalyzerEvent{
		Type:       eventbus.TopicAnalyzerStage,
		Generation: 3,
		Stage:      &detection.ScanStage{Name: "upload", Progress: 10, Log: "Connecting to secure cloud node..."},
		LogLine:    "09:05:07 Connecting to secure cloud node...",
	})

	var event eventbus.AnalyzerEvent
	readFrame(t, conn, &event)
	assert.Equal(t, eventbus.TopicAnalyzerStage, event.Type)
	assert.Equal(t, uint64(3), event.Generation)
	require.NotNil(t, event.Stage)
	assert.Equal(t, float64(10), event.Stage.Progress)
}

func TestHub_CloseAllDisconnectsClients(t *testing.T) {
	logger := utils.NewConsoleLogger(&bytes.Buffer{}, "ERROR")
	hub := NewHub(logger)
	conn := dialStream(t, NewRouter(hub, logger, RouterOptions{}))

	var greeting Greeting
	readFrame(t, conn, &greeting)

	hub.CloseAll(nil)
	assert.Equal(t, 0, hub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
