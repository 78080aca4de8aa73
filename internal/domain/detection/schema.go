package detection

import (
	"bytes"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
)

const (
	// SchemaV1 is the only response contract understood by the live path.
	SchemaV1 = "v1"
	// DefaultFieldName is the multipart field the v1 endpoint reads the image from.
	DefaultFieldName = "image"
)

// V1Response is the decoded body of a v1 endpoint:
//
//	{"is_ai": true, "confidence": 97.3, "message": "..."}
type V1Response struct {
	IsAI       bool
	Confidence float64
	Message    string
}

type v1Payload struct {
	IsAI       *bool    `json:"is_ai"`
	Confidence *float64 `json:"confidence"`
	Message    *string  `json:"message"`
}

// ParseV1 decodes body and rejects anything that does not match the v1 shape.
// Unknown fields are ignored.
func ParseV1(body []byte) (*V1Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ParseError{Schema: SchemaV1, Reason: "empty body"}
	}
	if trimmed[0] != '{' {
		return nil, &ParseError{Schema: SchemaV1, Reason: "body is not a JSON object"}
	}

	var payload v1Payload
	if err := sonic.Unmarshal(trimmed, &payload); err != nil {
		return nil, &ParseError{Schema: SchemaV1, Reason: "malformed JSON", Err: err}
	}
	if payload.IsAI == nil {
		return nil, &ParseError{Schema: SchemaV1, Reason: "missing is_ai"}
	}
	if payload.Confidence == nil {
		return nil, &ParseError{Schema: SchemaV1, Reason: "missing confidence"}
	}
	c := *payload.Confidence
	if math.IsNaN(c) || c < 0 || c > 100 {
		return nil, &ParseError{Schema: SchemaV1, Reason: fmt.Sprintf("confidence %v outside [0,100]", c)}
	}

	out := &V1Response{IsAI: *payload.IsAI, Confidence: c}
	if payload.Message != nil {
		out.Message = *payload.Message
	}
	return out, nil
}

func liveMetadata(isAI bool) Metadata {
	md := Metadata{
		Lighting:    "Natural Source",
		Grain:       "ISO Noise Match",
		Compression: "JPEG/Standard",
		Resolution:  "Analyzed High-Res",
	}
	if isAI {
		md.Lighting = "Artificial/Inconsistent"
		md.Grain = "Digital Artifacts"
	}
	return md
}

func simulatedMetadata(isAI bool) Metadata {
	md := Metadata{
		Lighting:    "Natural Lighting",
		Grain:       "Sensor Grain Match",
		Compression: "Lossless",
		Resolution:  "2048x2048",
	}
	if isAI {
		md.Lighting = "Inconsistent Shadows"
		md.Grain = "Smooth/Synthetic"
	}
	return md
}
