package detection

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-sentinel/internal/platform/errors"
)

type stageRecorder struct {
	mu     sync.Mutex
	stages []ScanStage
}

func (r *stageRecorder) record(stage ScanStage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *stageRecorder) progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.stages))
	for i, s := range r.stages {
		out[i] = s.Progress
	}
	return out
}

func (r *stageRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.stages))
	for i, s := range r.stages {
		out[i] = s.Name
	}
	return out
}

func jpegRequest(size int) AnalysisRequest {
	data := bytes.Repeat([]byte{0xFF}, size)
	data[0], data[1] = 0xFF, 0xD8
	return AnalysisRequest{Name: "photo.jpg", Size: int64(size), MediaType: "image/jpeg", Data: data}
}

func fixedRandom(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func assertNonDecreasing(t *testing.T, values []float64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress went backwards at %d: %v", i, values)
	}
}

func TestOrchestrator_SimulatedScenario(t *testing.T) {
	o, err := NewOrchestrator(Options{
		Mode:   ModeSimulated,
		Delays: make([]time.Duration, 4),
	})
	require.NoError(t, err)

	rec := &stageRecorder{}
	result, err := o.Analyze(context.Background(), jpegRequest(2*1024*1024), rec.record)
	require.NoError(t, err)

	progress := rec.progress()
	require.Len(t, progress, 4)
	assert.Equal(t, []float64{10, 45, 78, 100}, progress)
	assertNonDecreasing(t, progress)

	assert.GreaterOrEqual(t, result.Confidence, 85.0)
	assert.LessOrEqual(t, result.Confidence, 99.9)
	assert.GreaterOrEqual(t, len(result.Logs), 4)
	assert.Equal(t, ModeSimulated, result.Mode)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "Initializing connection to Neural Engine...", result.Logs[0])
}

func TestOrchestrator_SimulatedBias(t *testing.T) {
	tests := []struct {
		name      string
		draw      float64
		synthetic bool
		lighting  string
	}{
		{name: "low draw is synthetic", draw: 0.1, synthetic: true, lighting: "Inconsistent Shadows"},
		{name: "boundary is authentic", draw: 0.4, synthetic: false, lighting: "Natural Lighting"},
		{name: "high draw is authentic", draw: 0.9, synthetic: false, lighting: "Natural Lighting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrchestrator(Options{
				Mode:   ModeSimulated,
				Delays: []time.Duration{},
				Random: fixedRandom(tt.draw, 0),
			})
			require.NoError(t, err)

			result, err := o.Analyze(context.Background(), jpegRequest(64), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.synthetic, result.IsAIGenerated)
			assert.Equal(t, tt.lighting, result.Metadata.Lighting)
			assert.Equal(t, 85.0, result.Confidence)
			assert.Equal(t, "Confidence calculated: 85.0%", result.Logs[len(result.Logs)-1])
		})
	}
}

func TestOrchestrator_SimulatedHonoursCancellation(t *testing.T) {
	o, err := NewOrchestrator(Options{
		Mode:   ModeSimulated,
		Delays: []time.Duration{time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &stageRecorder{}
	go func() {
		for len(rec.progress()) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	result, err := o.Analyze(ctx, jpegRequest(64), rec.record)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_LiveSuccess(t *testing.T) {
	var (
		gotField    []byte
		gotFilename string
		gotType     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotField, _ = io.ReadAll(file)
		gotFilename = header.Filename
		gotType = header.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"is_ai": true, "confidence": 97.25, "message": "diffusion fingerprint", "model": "effnet"}`))
	}))
	defer server.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o, err := NewOrchestrator(Options{
		Mode:           ModeLive,
		Endpoint:       server.URL,
		ColdStartAfter: 5 * time.Second,
		Now:            func() time.Time { return now },
		NewID:          func() string { return "result-1" },
	})
	require.NoError(t, err)

	req := jpegRequest(2 * 1024 * 1024)
	rec := &stageRecorder{}
	result, err := o.Analyze(context.Background(), req, rec.record)
	require.NoError(t, err)

	assert.Equal(t, req.Data, gotField)
	assert.Equal(t, "photo.jpg", gotFilename)
	assert.Equal(t, "image/jpeg", gotType)

	assert.Equal(t, []float64{10, 40, 75, 100}, rec.progress())
	assert.NotContains(t, rec.names(), "Waking up GPU...")

	assert.Equal(t, "result-1", result.ID)
	assert.True(t, result.IsAIGenerated)
	assert.Equal(t, 97.25, result.Confidence)
	assert.Equal(t, "diffusion fingerprint", result.Details)
	assert.Equal(t, "Artificial/Inconsistent", result.Metadata.Lighting)
	assert.Equal(t, "Digital Artifacts", result.Metadata.Grain)
	assert.Equal(t, ModeLive, result.Mode)
	assert.Equal(t, SchemaV1, result.SchemaVersion)
	assert.Equal(t, now, result.CreatedAt)
	assert.Equal(t, []string{
		"Connecting to secure cloud node...",
		"Upload complete (2.00MB)",
		"Running EfficientNet inference...",
		"Classification received.",
		"Confidence calculated: 97.25%",
		"Server Message: diffusion fingerprint",
	}, result.Logs)
}

func TestOrchestrator_LiveColdStart(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var callsMu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsMu.Lock()
		calls++
		callsMu.Unlock()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(`{"is_ai": false, "confidence": 88}`))
	}))
	defer server.Close()

	o, err := NewOrchestrator(Options{
		Endpoint:       server.URL,
		ColdStartAfter: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, ModeLive, o.Mode())

	rec := &stageRecorder{}
	var once sync.Once
	onProgress := func(stage ScanStage) {
		rec.record(stage)
		if stage.Name == "Waking up GPU..." {
			once.Do(func() { close(release) })
		}
	}

	result, err := o.Analyze(context.Background(), jpegRequest(1024), onProgress)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 30, 40, 75, 100}, rec.progress())
	assert.False(t, result.IsAIGenerated)
	assert.Equal(t, 88.0, result.Confidence)
	assert.Equal(t, "Natural Source", result.Metadata.Lighting)
	assert.Equal(t, ModeLive, result.Mode)

	callsMu.Lock()
	defer callsMu.Unlock()
	assert.Equal(t, 1, calls, "the cold start must not trigger a retry")
}

func TestOrchestrator_LiveFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     errors.Kind
		check    func(t *testing.T, err error)
		progress []float64
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   "model crashed",
			kind:   errors.KindRemote,
			check: func(t *testing.T, err error) {
				var remote *RemoteError
				require.True(t, stderrors.As(err, &remote))
				assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
				assert.Contains(t, remote.Status, "500")
				assert.Equal(t, "model crashed", remote.Body)
			},
			progress: []float64{10, 40},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"is_ai": tru`,
			kind:   errors.KindParse,
			check: func(t *testing.T, err error) {
				var parse *ParseError
				require.True(t, stderrors.As(err, &parse))
				assert.Equal(t, SchemaV1, parse.Schema)
			},
			progress: []float64{10, 40, 75},
		},
		{
			name:   "other schema version",
			status: http.StatusOK,
			body:   `{"prediction": "fake", "confidence_percentage": 91}`,
			kind:   errors.KindParse,
			check: func(t *testing.T, err error) {
				var parse *ParseError
				require.True(t, stderrors.As(err, &parse))
				assert.Equal(t, "missing is_ai", parse.Reason)
			},
			progress: []float64{10, 40, 75},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			o, err := NewOrchestrator(Options{Mode: ModeLive, Endpoint: server.URL, ColdStartAfter: 5 * time.Second})
			require.NoError(t, err)

			rec := &stageRecorder{}
			result, err := o.Analyze(context.Background(), jpegRequest(256), rec.record)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAnalysisFailed)
			assert.Equal(t, tt.kind, FailureKind(err))
			tt.check(t, err)
			assert.Equal(t, tt.progress, rec.progress())
		})
	}
}

func TestOrchestrator_LiveNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	o, err := NewOrchestrator(Options{Mode: ModeLive, Endpoint: endpoint, ColdStartAfter: 10 * time.Second})
	require.NoError(t, err)

	rec := &stageRecorder{}
	_, err = o.Analyze(context.Background(), jpegRequest(256), rec.record)
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, FailureKind(err))

	var network *NetworkError
	assert.True(t, stderrors.As(err, &network))
	assert.Equal(t, []float64{10}, rec.progress())
}

func TestOrchestrator_RejectsNonImage(t *testing.T) {
	o, err := NewOrchestrator(Options{Mode: ModeSimulated, Delays: []time.Duration{}})
	require.NoError(t, err)

	rec := &stageRecorder{}
	_, err = o.Analyze(context.Background(), AnalysisRequest{Name: "notes.txt", MediaType: "text/plain", Data: []byte("hi")}, rec.record)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, FailureKind(err))
	assert.Empty(t, rec.progress())
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(Options{Mode: ModeLive})
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = NewOrchestrator(Options{Mode: ModeLive, Endpoint: "ftp://example.com/predict"})
	assert.Error(t, err)

	_, err = NewOrchestrator(Options{Mode: "hybrid"})
	assert.Error(t, err)

	o, err := NewOrchestrator(Options{})
	require.NoError(t, err)
	assert.Equal(t, ModeSimulated, o.Mode())
	assert.Empty(t, o.Endpoint())
	assert.Equal(t, DefaultSimulationDelays, o.delays)

	o, err = NewOrchestrator(Options{Delays: []time.Duration{}})
	require.NoError(t, err)
	assert.Empty(t, o.delays)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" LIVE ")
	require.NoError(t, err)
	assert.Equal(t, ModeLive, m)

	m, err = ParseMode("simulated")
	require.NoError(t, err)
	assert.Equal(t, ModeSimulated, m)

	_, err = ParseMode("")
	assert.Error(t, err)
}
