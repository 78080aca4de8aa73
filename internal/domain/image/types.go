package image

import (
	"encoding/base64"

	"ai-sentinel/internal/domain/detection"
)

// Selection is a file accepted for analysis.
type Selection struct {
	Name      string
	MediaType string
	Size      int64
	Data      []byte
	// Format, Width and Height come from a best-effort header decode and may be empty.
	Format string
	Width  int
	Height int
	// Sniffed is set when the media type came from the content, not the caller.
	Sniffed bool
	// Risk is a non-blocking warning from the content scan, empty when clean.
	Risk string
}

// Info is the payload-free description of a Selection.
type Info struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Format    string `json:"format,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Sniffed   bool   `json:"sniffed,omitempty"`
	Risk      string `json:"risk,omitempty"`
}

// Info describes the selection without its bytes.
func (s *Selection) Info() Info {
	return Info{
		Name:      s.Name,
		MediaType: s.MediaType,
		Size:      s.Size,
		Format:    s.Format,
		Width:     s.Width,
		Height:    s.Height,
		Sniffed:   s.Sniffed,
		Risk:      s.Risk,
	}
}

// Preview renders the selection as a data URL suitable for display.
func (s *Selection) Preview() string {
	return "data:" + s.MediaType + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// Request builds the outbound analysis request.
func (s *Selection) Request() detection.AnalysisRequest {
	return detection.AnalysisRequest{
		Name:      s.Name,
		Size:      s.Size,
		MediaType: s.MediaType,
		Data:      s.Data,
	}
}

// ValidationResult captures the outcome of header inspection.
type ValidationResult struct {
	MediaType    string
	Sniffed      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	SecurityRisk string
}
