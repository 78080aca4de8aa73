package history

import (
	"time"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/image"
)

// Record is a persisted, completed analysis.
type Record struct {
	ID            string             `json:"id"`
	FileName      string             `json:"fileName"`
	MediaType     string             `json:"mediaType"`
	Size          int64              `json:"size"`
	Verdict       string             `json:"verdict"`
	IsAIGenerated bool               `json:"isAiGenerated"`
	Confidence    float64            `json:"confidence"`
	Details       string             `json:"details"`
	Metadata      detection.Metadata `json:"metadata"`
	Logs          []string           `json:"logs"`
	Mode          string             `json:"mode"`
	SchemaVersion string             `json:"schemaVersion,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// FromResult builds a record; file may be nil when the selection is unknown.
func FromResult(result *detection.DetectionResult, file *image.Info) Record {
	rec := Record{
		ID:            result.ID,
		Verdict:       result.Verdict(),
		IsAIGenerated: result.IsAIGenerated,
		Confidence:    result.Confidence,
		Details:       result.Details,
		Metadata:      result.Metadata,
		Logs:          append([]string(nil), result.Logs...),
		Mode:          string(result.Mode),
		SchemaVersion: result.SchemaVersion,
		CreatedAt:     result.CreatedAt,
	}
	if file != nil {
		rec.FileName = file.Name
		rec.MediaType = file.MediaType
		rec.Size = file.Size
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return rec
}
