package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-sentinel/internal/domain/analyzer"
	"ai-sentinel/internal/domain/auth"
	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/history"
	"ai-sentinel/internal/domain/image"
	"ai-sentinel/internal/platform/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine  http.Handler
	machine *analyzer.Machine
	store   history.Store
}

func newTestServer(t *testing.T, opts detection.Options, middleware ...func(*Options)) *testServer {
	t.Helper()
	logger := testutil.SetupTestLogger(t)
	opts.Logger = logger

	orchestrator, err := detection.NewOrchestrator(opts)
	require.NoError(t, err)
	machine, err := analyzer.New(analyzer.Options{Analyzer: orchestrator, Logger: logger})
	require.NoError(t, err)

	routerOpts := Options{Config: testutil.SetupTestConfig(t), Logger: logger}
	for _, apply := range middleware {
		apply(&routerOpts)
	}
	router, err := Build(routerOpts)
	require.NoError(t, err)

	svc, err := NewAnalyzerService(machine, image.NewPipeline(image.Options{Logger: logger}), orchestrator.Mode(), logger)
	require.NoError(t, err)
	svc.Register(router.Secured)

	store := history.NewMemory(history.Config{})
	NewHistoryService(store, logger).Register(router.Secured)
	NewHealthService(string(orchestrator.Mode()), orchestrator.Endpoint(), nil).Register(router.API)

	return &testServer{engine: router.Engine, machine: machine, store: store}
}

func simulated(delay time.Duration) detection.Options {
	return detection.Options{
		Mode:   detection.ModeSimulated,
		Delays: []time.Duration{delay, delay, delay, delay},
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (s *testServer) selectFile(t *testing.T, name string, payload []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyzer/select", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return s.do(t, req)
}

func (s *testServer) post(t *testing.T, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return s.do(t, httptest.NewRequest(http.MethodPost, path, nil))
}

func (s *testServer) view(t *testing.T) AnalyzerView {
	t.Helper()
	_, env := s.do(t, httptest.NewRequest(http.MethodGet, "/api/analyzer", nil))
	var view AnalyzerView
	require.NoError(t, sonic.Unmarshal(env.Data, &view))
	return view
}

func TestAnalyzerRoutes_SimulatedFlow(t *testing.T) {
	srv := newTestServer(t, simulated(0))

	rec, env := srv.selectFile(t, "photo.png", testutil.PNG(t, 4, 3))
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.True(t, env.Success)

	view := srv.view(t)
	assert.Equal(t, analyzer.ModeIdle, view.Mode)
	require.NotNil(t, view.File)
	assert.Equal(t, "photo.png", view.File.Name)
	assert.Equal(t, "image/png", view.File.MediaType)
	assert.Empty(t, view.Preview)
	assert.Equal(t, "simulated", view.DetectorMode)

	rec, env = srv.post(t, "/api/analyzer/submit")
	require.Equal(t, http.StatusAccepted, rec.Code, env.Message)

	require.Eventually(t, func() bool {
		return srv.machine.Mode() == analyzer.ModeResult
	}, 2*time.Second, 10*time.Millisecond)

	view = srv.view(t)
	require.NotNil(t, view.Result)
	assert.Equal(t, detection.ModeSimulated, view.Result.Mode)
	assert.Len(t, view.Log, 4)
	assert.Empty(t, view.LastError)

	_, env = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/analyzer?preview=true", nil))
	var withPreview AnalyzerView
	require.NoError(t, sonic.Unmarshal(env.Data, &withPreview))
	assert.Contains(t, withPreview.Preview, "data:image/png;base64,")

	rec, _ = srv.post(t, "/api/analyzer/reset")
	assert.Equal(t, http.StatusOK, rec.Code)
	view = srv.view(t)
	assert.Equal(t, analyzer.ModeIdle, view.Mode)
	assert.Nil(t, view.File)
}

func TestAnalyzerRoutes_Rejections(t *testing.T) {
	srv := newTestServer(t, simulated(time.Hour))

	rec, env := srv.post(t, "/api/analyzer/submit")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	rec, _ = srv.selectFile(t, "notes.txt", []byte("plain text, not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, httptest.NewRequest(http.MethodPost, "/api/analyzer/select", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.selectFile(t, "photo.png", testutil.PNG(t, 4, 3))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.post(t, "/api/analyzer/submit")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = srv.post(t, "/api/analyzer/submit")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = srv.selectFile(t, "other.png", testutil.PNG(t, 4, 3))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, analyzer.ModeAnalyzing, srv.view(t).Mode)

	rec, _ = srv.post(t, "/api/analyzer/reset")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analyzer.ModeIdle, srv.view(t).Mode)
}

func TestAnalyzerRoutes_ReportsRemoteFailure(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer endpoint.Close()

	srv := newTestServer(t, detection.Options{Mode: detection.ModeLive, Endpoint: endpoint.URL})
	rec, _ := srv.selectFile(t, "photo.png", testutil.PNG(t, 4, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = srv.post(t, "/api/analyzer/submit")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return srv.view(t).LastError != ""
	}, 2*time.Second, 10*time.Millisecond)

	view := srv.view(t)
	assert.Equal(t, analyzer.ModeIdle, view.Mode)
	assert.Equal(t, "remote", view.LastErrorKind)
	assert.Contains(t, view.LastError, "500")
	require.NotNil(t, view.File)
	assert.Equal(t, "photo.png", view.File.Name)
	assert.Empty(t, view.Log)
	assert.Nil(t, view.Result)
}

func TestHistoryRoutes(t *testing.T) {
	srv := newTestServer(t, simulated(0))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, srv.store.Save(ctx, history.Record{ID: "old", Verdict: detection.VerdictAuthentic, CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, srv.store.Save(ctx, history.Record{ID: "new", Verdict: detection.VerdictSynthetic, IsAIGenerated: true, CreatedAt: now}))

	rec, env := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var records []history.Record
	require.NoError(t, sonic.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].ID)

	rec, _ = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/history/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats history.Stats
	require.NoError(t, sonic.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Synthetic)

	rec, _ = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/history/old", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, httptest.NewRequest(http.MethodDelete, "/api/history/old", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/history/old", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t, simulated(0))

	rec, env := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, sonic.Unmarshal(env.Data, &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "simulated", status.DetectorMode)
}

func TestBearerAuth(t *testing.T) {
	tokens := auth.NewAuthToken("secret")
	srv := newTestServer(t, simulated(0), func(o *Options) {
		o.AuthMiddleware = BearerAuth(tokens, testutil.SetupTestLogger(t))
	})

	rec, env := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/analyzer", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/analyzer", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec, _ = srv.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.GenerateToken("ops")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/analyzer", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ = srv.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/analyzer?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
