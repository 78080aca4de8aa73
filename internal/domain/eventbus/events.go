package eventbus

import (
	"time"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/image"
)

// Analyzer lifecycle topics.
const (
	TopicAnalyzerSelected  = "analyzer:selected"
	TopicAnalyzerStarted   = "analyzer:started"
	TopicAnalyzerStage     = "analyzer:stage"
	TopicAnalyzerCompleted = "analyzer:completed"
	TopicAnalyzerFailed    = "analyzer:failed"
	TopicAnalyzerReset     = "analyzer:reset"

	// TopicHistoryPersist is published on the async bus for background writes.
	TopicHistoryPersist = "history:persist"
)

// AnalyzerTopics lists every topic the analyzer publishes, in lifecycle order.
var AnalyzerTopics = []string{
	TopicAnalyzerSelected,
	TopicAnalyzerStarted,
	TopicAnalyzerStage,
	TopicAnalyzerCompleted,
	TopicAnalyzerFailed,
	TopicAnalyzerReset,
}

// AnalyzerEvent is the payload of every analyzer topic.
type AnalyzerEvent struct {
	Type       string                     `json:"type"`
	Generation uint64                     `json:"generation"`
	Mode       string                     `json:"mode"`
	File       *image.Info                `json:"file,omitempty"`
	Stage      *detection.ScanStage       `json:"stage,omitempty"`
	LogLine    string                     `json:"logLine,omitempty"`
	Result     *detection.DetectionResult `json:"result,omitempty"`
	Error      string                     `json:"error,omitempty"`
	ErrorKind  string                     `json:"errorKind,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}
