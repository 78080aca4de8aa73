package eventbus

import (
	"ai-sentinel/internal/utils"
)

// LogHandler mirrors analyzer events into the application log.
type LogHandler struct {
	logger *utils.Logger
}

func NewLogHandler(logger *utils.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Handle logs one analyzer event.
func (h *LogHandler) Handle(event AnalyzerEvent) {
	switch event.Type {
	case TopicAnalyzerSelected:
		if event.File != nil {
			h.logger.InfoTag("Analyzer", "file selected: gen=%d name=%s size=%d", event.Generation, event.File.Name, event.File.Size)
		}
	case TopicAnalyzerStarted:
		h.logger.InfoTag("Analyzer", "analysis started: gen=%d", event.Generation)
	case TopicAnalyzerStage:
		if event.Stage != nil {
			h.logger.DebugTag("Analyzer", "stage: gen=%d progress=%.0f name=%s", event.Generation, event.Stage.Progress, event.Stage.Name)
		}
	case TopicAnalyzerCompleted:
		if event.Result != nil {
			h.logger.InfoTag("Analyzer", "analysis completed: gen=%d verdict=%s confidence=%.1f", event.Generation, event.Result.Verdict(), event.Result.Confidence)
		}
	case TopicAnalyzerFailed:
		h.logger.WarnTag("Analyzer", "analysis failed: gen=%d kind=%s err=%s", event.Generation, event.ErrorKind, event.Error)
	case TopicAnalyzerReset:
		h.logger.InfoTag("Analyzer", "session reset: gen=%d", event.Generation)
	default:
		h.logger.DebugTag("Analyzer", "unhandled event type: %s", event.Type)
	}
}

// SetupEventHandlers subscribes a LogHandler to every analyzer topic.
func SetupEventHandlers(bus Subscriber, logger *utils.Logger) error {
	handler := NewLogHandler(logger)
	for _, topic := range AnalyzerTopics {
		if err := bus.Subscribe(topic, handler.Handle); err != nil {
			return err
		}
	}
	return nil
}
