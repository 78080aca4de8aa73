package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"ai-sentinel/internal/utils"
)

// AsyncEventBus delivers events on a fixed pool of workers.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex
	stopped   bool
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	logger    *utils.Logger
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates an async bus; call Start before publishing.
func NewAsyncEventBus(workerNum int, logger *utils.Logger) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 4
	}
	if logger == nil {
		logger = utils.DefaultLogger
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 256),
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop rejects further publishes, waits for queued events and then stops
// the workers.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		aeb.mu.Unlock()

		aeb.pending.Wait()
		close(aeb.stopChan)
		aeb.wg.Wait()
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("EventBus", "handler panic: topic=%s panic=%v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues an event and reports whether it was accepted. Events
// published after Stop, or while the queue is full, are dropped.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	aeb.mu.Lock()
	defer aeb.mu.Unlock()
	if aeb.stopped {
		aeb.logger.WarnTag("EventBus", "async bus stopped, dropping event: topic=%s", topic)
		return false
	}

	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		aeb.pending.Done()
		aeb.logger.WarnTag("EventBus", "async queue full, dropping event: topic=%s", topic)
		return false
	}
}

func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Wait blocks until every queued event has been handled.
func (aeb *AsyncEventBus) Wait() {
	aeb.pending.Wait()
}
