package detection

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseV1(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *V1Response
		wantErr string
	}{
		{
			name: "full payload",
			body: `{"is_ai": true, "confidence": 99.1, "message": "GAN grid"}`,
			want: &V1Response{IsAI: true, Confidence: 99.1, Message: "GAN grid"},
		},
		{
			name: "message optional and extras ignored",
			body: ` {"is_ai": false, "confidence": 0, "label": "real"} `,
			want: &V1Response{IsAI: false, Confidence: 0},
		},
		{name: "empty body", body: "  ", wantErr: "empty body"},
		{name: "array body", body: `[{"is_ai": true}]`, wantErr: "body is not a JSON object"},
		{name: "null body", body: `null`, wantErr: "body is not a JSON object"},
		{name: "truncated", body: `{"is_ai": true, "confidence": 9`, wantErr: "malformed JSON"},
		{name: "missing is_ai", body: `{"confidence": 50}`, wantErr: "missing is_ai"},
		{name: "missing confidence", body: `{"is_ai": true}`, wantErr: "missing confidence"},
		{name: "string confidence", body: `{"is_ai": true, "confidence": "95"}`, wantErr: "malformed JSON"},
		{name: "string is_ai", body: `{"is_ai": "yes", "confidence": 95}`, wantErr: "malformed JSON"},
		{name: "confidence above range", body: `{"is_ai": true, "confidence": 100.5}`, wantErr: "outside [0,100]"},
		{name: "negative confidence", body: `{"is_ai": true, "confidence": -1}`, wantErr: "outside [0,100]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseV1([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				var parse *ParseError
				require.True(t, stderrors.As(err, &parse))
				assert.Contains(t, parse.Reason, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetadataMapping(t *testing.T) {
	assert.Equal(t, Metadata{
		Lighting:    "Artificial/Inconsistent",
		Grain:       "Digital Artifacts",
		Compression: "JPEG/Standard",
		Resolution:  "Analyzed High-Res",
	}, liveMetadata(true))
	assert.Equal(t, "ISO Noise Match", liveMetadata(false).Grain)
	assert.Equal(t, "Smooth/Synthetic", simulatedMetadata(true).Grain)
	assert.Equal(t, "2048x2048", simulatedMetadata(false).Resolution)
}

func TestDetectionResult_VerdictAndClone(t *testing.T) {
	r := &DetectionResult{IsAIGenerated: true, Logs: []string{"a"}}
	assert.Equal(t, VerdictSynthetic, r.Verdict())

	c := r.Clone()
	c.Logs[0] = "b"
	c.IsAIGenerated = false
	assert.Equal(t, "a", r.Logs[0])
	assert.Equal(t, VerdictAuthentic, c.Verdict())
	assert.Nil(t, (*DetectionResult)(nil).Clone())
}

func TestAnalysisRequest_Validate(t *testing.T) {
	assert.NoError(t, AnalysisRequest{MediaType: "image/png", Data: []byte{1}}.Validate())
	assert.NoError(t, AnalysisRequest{MediaType: "IMAGE/WEBP", Data: []byte{1}}.Validate())

	var verr *ValidationError
	err := AnalysisRequest{MediaType: "application/pdf", Data: []byte{1}}.Validate()
	require.True(t, stderrors.As(err, &verr))
	assert.Equal(t, "media_type", verr.Field)

	err = AnalysisRequest{MediaType: "image/png"}.Validate()
	require.True(t, stderrors.As(err, &verr))
	assert.Equal(t, "data", verr.Field)
}
