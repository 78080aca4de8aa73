package httptransport

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"ai-sentinel/internal/domain/analyzer"
	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/image"
	"ai-sentinel/internal/platform/errors"
	"ai-sentinel/internal/utils"
)

// AnalyzerView is the polled status of the session.
type AnalyzerView struct {
	analyzer.Snapshot
	DetectorMode  string `json:"detectorMode"`
	LastError     string `json:"lastError,omitempty"`
	LastErrorKind string `json:"lastErrorKind,omitempty"`
}

// AnalyzerService exposes the analyzer state machine over HTTP.
type AnalyzerService struct {
	machine  *analyzer.Machine
	pipeline *image.Pipeline
	mode     detection.Mode
	stream   http.HandlerFunc
	logger   *utils.Logger

	mu      sync.Mutex
	lastRun *analyzer.Run
}

// NewAnalyzerService wires the HTTP handlers.
func NewAnalyzerService(machine *analyzer.Machine, pipeline *image.Pipeline, mode detection.Mode, logger *utils.Logger) (*AnalyzerService, error) {
	if machine == nil {
		return nil, errors.New(errors.KindConfig, "analyzer_http.new", "analyzer machine is required")
	}
	if pipeline == nil {
		return nil, errors.New(errors.KindConfig, "analyzer_http.new", "image pipeline is required")
	}
	return &AnalyzerService{
		machine:  machine,
		pipeline: pipeline,
		mode:     mode,
		logger:   logger,
	}, nil
}

// SetStream installs the websocket event stream handler. Without one the
// stream endpoint is not registered.
func (s *AnalyzerService) SetStream(stream http.HandlerFunc) {
	s.stream = stream
}

// Register adds the analyzer routes to router.
func (s *AnalyzerService) Register(router *gin.RouterGroup) {
	router.GET("/analyzer", s.handleStatus)
	router.POST("/analyzer/select", s.handleSelect)
	router.POST("/analyzer/submit", s.handleSubmit)
	router.POST("/analyzer/reset", s.handleReset)
	if s.stream != nil {
		router.GET("/analyzer/stream", gin.WrapF(s.stream))
	}
}

// View builds the current status. The preview data URL can be large, so it
// is only included on request.
func (s *AnalyzerService) View(withPreview bool) AnalyzerView {
	view := AnalyzerView{Snapshot: s.machine.Snapshot(), DetectorMode: string(s.mode)}
	if !withPreview {
		view.Preview = ""
	}

	s.mu.Lock()
	run := s.lastRun
	s.mu.Unlock()
	if run == nil || run.Generation() != view.Generation {
		return view
	}
	select {
	case <-run.Done():
		if err := run.Err(); err != nil && !stderrors.Is(err, analyzer.ErrReset) {
			view.LastError = err.Error()
			view.LastErrorKind = kindOf(err)
		}
	default:
	}
	return view
}

func (s *AnalyzerService) handleStatus(c *gin.Context) {
	withPreview, _ := strconv.ParseBool(c.DefaultQuery("preview", "false"))
	RespondSuccess(c, http.StatusOK, s.View(withPreview), "")
}

func (s *AnalyzerService) handleSelect(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "multipart field \"file\" is required", nil)
		return
	}
	file, err := header.Open()
	if err != nil {
		RespondFailure(c, errors.Wrap(errors.KindTransport, "analyzer_http.select", "failed to open upload", err))
		return
	}
	defer file.Close()

	// generic clients label every part as octet-stream; let the pipeline sniff those
	declared := header.Header.Get("Content-Type")
	if declared == "application/octet-stream" {
		declared = ""
	}
	sel, err := s.pipeline.Select(c.Request.Context(), image.Input{
		Reader:       file,
		Name:         header.Filename,
		DeclaredType: declared,
	})
	if err != nil {
		RespondFailure(c, err)
		return
	}
	if err := s.machine.Select(sel); err != nil {
		RespondFailure(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, s.View(false), "file selected")
}

func (s *AnalyzerService) handleSubmit(c *gin.Context) {
	run, err := s.machine.Submit(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		RespondFailure(c, err)
		return
	}
	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()

	s.logger.InfoTag("Analyzer", "analysis accepted: gen=%d", run.Generation())
	RespondSuccess(c, http.StatusAccepted, gin.H{"generation": run.Generation()}, "analysis started")
}

func (s *AnalyzerService) handleReset(c *gin.Context) {
	s.machine.Reset()
	RespondSuccess(c, http.StatusOK, s.View(false), "session reset")
}
