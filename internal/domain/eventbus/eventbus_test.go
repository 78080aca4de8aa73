package eventbus

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/utils"
)

func TestAsyncEventBus_DeliversQueuedEvents(t *testing.T) {
	bus := NewAsyncEventBus(2, utils.NewConsoleLogger(&bytes.Buffer{}, "ERROR"))
	bus.Start()
	defer bus.Stop()

	var (
		mu  sync.Mutex
		ids []string
	)
	require.NoError(t, bus.Subscribe(TopicHistoryPersist, func(event AnalyzerEvent) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, event.Result.ID)
	}))
	assert.True(t, bus.HasCallback(TopicHistoryPersist))

	for _, id := range []string{"a", "b", "c"} {
		bus.PublishAsync(TopicHistoryPersist, AnalyzerEvent{Result: &detection.DetectionResult{ID: id}})
	}
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestAsyncEventBus_RecoversFromPanics(t *testing.T) {
	bus := NewAsyncEventBus(1, utils.NewConsoleLogger(&bytes.Buffer{}, "ERROR"))
	bus.Start()

	calls := 0
	require.NoError(t, bus.Subscribe("boom", func(int) {
		calls++
		panic("handler failure")
	}))

	bus.PublishAsync("boom", 1)
	bus.PublishAsync("boom", 2)
	bus.Wait()
	bus.Stop()
	bus.Stop()

	assert.Equal(t, 2, calls)
}

func TestAsyncEventBus_RejectsPublishAfterStop(t *testing.T) {
	var out bytes.Buffer
	bus := NewAsyncEventBus(1, utils.NewConsoleLogger(&out, "WARN"))
	bus.Start()

	handled := make(chan int, 2)
	require.NoError(t, bus.Subscribe("late", func(n int) { handled <- n }))

	assert.True(t, bus.PublishAsync("late", 1))
	bus.Stop()
	assert.False(t, bus.PublishAsync("late", 2))

	waited := make(chan struct{})
	go func() {
		bus.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}

	assert.Equal(t, 1, <-handled)
	assert.Empty(t, handled)
	assert.Contains(t, out.String(), "async bus stopped, dropping event: topic=late")
}

func TestSetupEventHandlers_LogsAnalyzerEvents(t *testing.T) {
	var out bytes.Buffer
	logger := utils.NewConsoleLogger(&out, "DEBUG")
	bus := New()

	require.NoError(t, SetupEventHandlers(bus, logger))
	for _, topic := range AnalyzerTopics {
		assert.True(t, bus.HasCallback(topic), topic)
	}

	bus.Publish(TopicAnalyzerCompleted, AnalyzerEvent{
		Type:       TopicAnalyzerCompleted,
		Generation: 3,
		Result:     &detection.DetectionResult{IsAIGenerated: true, Confidence: 91.5},
	})
	bus.Publish(TopicAnalyzerFailed, AnalyzerEvent{Type: TopicAnalyzerFailed, Generation: 4, ErrorKind: "remote", Error: "503"})

	assert.Contains(t, out.String(), "analysis completed: gen=3 verdict=synthetic confidence=91.5")
	assert.Contains(t, out.String(), "analysis failed: gen=4 kind=remote err=503")
}
