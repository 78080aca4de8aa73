package detection

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode selects how an Orchestrator produces results.
type Mode string

const (
	// ModeLive posts the image to the configured inference endpoint.
	ModeLive Mode = "live"
	// ModeSimulated fabricates a result locally. Never authoritative.
	ModeSimulated Mode = "simulated"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLive:
		return ModeLive, nil
	case ModeSimulated:
		return ModeSimulated, nil
	default:
		return "", fmt.Errorf("unknown detector mode %q", s)
	}
}

// AnalysisRequest is the outbound unit of one analysis. Name and Size are only
// used for logging.
type AnalysisRequest struct {
	Name      string
	Size      int64
	MediaType string
	Data      []byte
}

// Validate checks the declared media type and payload presence.
func (r AnalysisRequest) Validate() error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.MediaType)), "image/") {
		return &ValidationError{Field: "media_type", Reason: fmt.Sprintf("%q is not an image type", r.MediaType)}
	}
	if len(r.Data) == 0 {
		return &ValidationError{Field: "data", Reason: "image payload is empty"}
	}
	return nil
}

// ScanStage is one progress event.
type ScanStage struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	Log      string  `json:"log"`
}

// Metadata holds the descriptive tags shown next to a verdict.
type Metadata struct {
	Lighting    string `json:"lighting"`
	Grain       string `json:"grain"`
	Compression string `json:"compression"`
	Resolution  string `json:"resolution"`
}

// DetectionResult is the normalized outcome of one analysis. Treat it as
// immutable once returned; use Clone before handing it to other owners.
type DetectionResult struct {
	ID            string    `json:"id"`
	IsAIGenerated bool      `json:"isAiGenerated"`
	Confidence    float64   `json:"confidence"`
	Details       string    `json:"details"`
	Metadata      Metadata  `json:"metadata"`
	Logs          []string  `json:"logs"`
	Mode          Mode      `json:"mode"`
	SchemaVersion string    `json:"schemaVersion,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	VerdictSynthetic = "synthetic"
	VerdictAuthentic = "authentic"
)

// Verdict returns "synthetic" or "authentic".
func (r *DetectionResult) Verdict() string {
	if r.IsAIGenerated {
		return VerdictSynthetic
	}
	return VerdictAuthentic
}

// Clone returns a deep copy.
func (r *DetectionResult) Clone() *DetectionResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Logs = append([]string(nil), r.Logs...)
	return &out
}

// ProgressFunc receives stages in emission order. It is never called
// concurrently for one Analyze call.
type ProgressFunc func(ScanStage)

// Analyzer produces a DetectionResult for a request.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest, onProgress ProgressFunc) (*DetectionResult, error)
}
