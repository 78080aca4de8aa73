package history

import (
	"context"
	"time"

	"ai-sentinel/internal/domain/eventbus"
	"ai-sentinel/internal/utils"
)

const persistTimeout = 5 * time.Second

// Recorder persists every completed analysis published on the bus.
type Recorder struct {
	store  Store
	async  *eventbus.AsyncEventBus
	logger *utils.Logger
}

// NewRecorder creates a recorder. With a nil async bus records are written
// on the publishing goroutine.
func NewRecorder(store Store, async *eventbus.AsyncEventBus, logger *utils.Logger) *Recorder {
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return &Recorder{store: store, async: async, logger: logger}
}

// Attach subscribes the recorder to analyzer completions.
func (r *Recorder) Attach(bus eventbus.Subscriber) error {
	if err := bus.Subscribe(eventbus.TopicAnalyzerCompleted, r.onCompleted); err != nil {
		return err
	}
	if r.async != nil {
		return r.async.Subscribe(eventbus.TopicHistoryPersist, r.persist)
	}
	return nil
}

func (r *Recorder) onCompleted(event eventbus.AnalyzerEvent) {
	if event.Result == nil {
		return
	}
	rec := FromResult(event.Result, event.File)
	if r.async != nil {
		r.async.PublishAsync(eventbus.TopicHistoryPersist, rec)
		return
	}
	r.persist(rec)
}

func (r *Recorder) persist(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.ErrorTag("History", "failed to persist analysis: id=%s err=%v", rec.ID, err)
		return
	}
	r.logger.InfoTag("History", "analysis persisted: id=%s verdict=%s", rec.ID, rec.Verdict)
}
