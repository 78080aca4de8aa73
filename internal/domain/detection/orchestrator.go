package detection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-sentinel/internal/platform/errors"
	"ai-sentinel/internal/platform/observability"
	"ai-sentinel/internal/utils"
)

const (
	DefaultColdStartAfter = 4 * time.Second
	DefaultRequestTimeout = 120 * time.Second

	maxResponseBytes = 1 << 20
	maxErrorBody     = 2048
)

// DefaultSimulationDelays paces the four simulated stages.
var DefaultSimulationDelays = []time.Duration{
	800 * time.Millisecond,
	1200 * time.Millisecond,
	1000 * time.Millisecond,
	600 * time.Millisecond,
}

var (
	stageUplink    = ScanStage{Name: "Establishing Uplink...", Progress: 10, Log: "Connecting to secure cloud node..."}
	stageColdStart = ScanStage{Name: "Waking up GPU...", Progress: 30, Log: "Server is cold-booting (this may take 30s)..."}
	stageInference = ScanStage{Name: "Neural Analysis...", Progress: 75, Log: "Running EfficientNet inference..."}
	stageReceived  = ScanStage{Name: "Finalizing Score...", Progress: 100, Log: "Classification received."}

	simulatedStages = []ScanStage{
		{Name: "Initializing...", Progress: 10, Log: "Initializing connection to Neural Engine..."},
		{Name: "Analyzing Frequency Domain...", Progress: 45, Log: "Processing frequency domain..."},
		{Name: "Detecting GAN Artifacts...", Progress: 78, Log: "Running diffusion checks..."},
		{Name: "Finalizing Score...", Progress: 100, Log: "Computing probabilities..."},
	}
)

func transmitStage(size int64) ScanStage {
	return ScanStage{
		Name:     "Transmitting Data...",
		Progress: 40,
		Log:      fmt.Sprintf("Upload complete (%s)", utils.FormatMegabytes(size)),
	}
}

// Options configures an Orchestrator.
type Options struct {
	Mode     Mode
	Endpoint string
	// FieldName is the multipart field carrying the image. Defaults to "image".
	FieldName      string
	ColdStartAfter time.Duration
	// RequestTimeout bounds the whole remote call. Zero keeps the default,
	// negative disables it.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	// Delays paces the simulated stages. Nil selects DefaultSimulationDelays;
	// missing entries count as zero.
	Delays []time.Duration
	// Random returns values in [0,1). Defaults to math/rand/v2.
	Random func() float64
	Now    func() time.Time
	NewID  func() string
	Logger *utils.Logger
}

// Orchestrator drives one analysis end to end.
type Orchestrator struct {
	mode           Mode
	endpoint       string
	fieldName      string
	coldStartAfter time.Duration
	requestTimeout time.Duration
	client         *http.Client
	delays         []time.Duration
	random         func() float64
	now            func() time.Time
	newID          func() string
	logger         *utils.Logger
}

var _ Analyzer = (*Orchestrator)(nil)

// NewOrchestrator validates opts and fills defaults.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	mode := opts.Mode
	if mode == "" {
		if strings.TrimSpace(opts.Endpoint) != "" {
			mode = ModeLive
		} else {
			mode = ModeSimulated
		}
	}

	o := &Orchestrator{
		mode:           mode,
		endpoint:       strings.TrimSpace(opts.Endpoint),
		fieldName:      opts.FieldName,
		coldStartAfter: opts.ColdStartAfter,
		requestTimeout: opts.RequestTimeout,
		client:         opts.HTTPClient,
		delays:         opts.Delays,
		random:         opts.Random,
		now:            opts.Now,
		newID:          opts.NewID,
		logger:         opts.Logger,
	}

	switch mode {
	case ModeLive:
		u, err := url.Parse(o.endpoint)
		if o.endpoint == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errors.New(errors.KindConfig, "detection.new", fmt.Sprintf("live mode requires an http(s) endpoint, got %q", opts.Endpoint))
		}
	case ModeSimulated:
	default:
		return nil, errors.New(errors.KindConfig, "detection.new", fmt.Sprintf("unknown mode %q", mode))
	}

	if o.fieldName == "" {
		o.fieldName = DefaultFieldName
	}
	if o.coldStartAfter <= 0 {
		o.coldStartAfter = DefaultColdStartAfter
	}
	if o.requestTimeout == 0 {
		o.requestTimeout = DefaultRequestTimeout
	}
	if o.client == nil {
		o.client = &http.Client{}
	}
	if o.delays == nil {
		o.delays = DefaultSimulationDelays
	}
	if o.random == nil {
		o.random = rand.Float64
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	if o.logger == nil {
		o.logger = utils.DefaultLogger
	}

	if mode == ModeSimulated {
		o.logger.WarnTag("Detector", "simulated mode: results are fabricated locally and are not authoritative")
	} else {
		o.logger.InfoTag("Detector", "live mode: endpoint=%s field=%s cold_start_after=%s", o.endpoint, o.fieldName, o.coldStartAfter)
	}
	return o, nil
}

// Mode reports how results are produced.
func (o *Orchestrator) Mode() Mode { return o.mode }

// Endpoint returns the configured inference endpoint, empty in simulated mode.
func (o *Orchestrator) Endpoint() string { return o.endpoint }

// Analyze runs one analysis. It resolves exactly once: either a result or an
// *AnalysisError, never both.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalysisRequest, onProgress ProgressFunc) (result *DetectionResult, err error) {
	ctx, end := observability.StartSpan(ctx, "detector", "analyze")
	defer func() { end(err) }()

	if err := req.Validate(); err != nil {
		return nil, failed(err)
	}

	o.logger.InfoTag("Detector", "analyze start: name=%s size=%s type=%s mode=%s",
		req.Name, utils.FormatMegabytes(req.Size), req.MediaType, o.mode)

	p := &progress{ctx: ctx, mode: o.mode, onProgress: onProgress}
	if o.mode == ModeSimulated {
		result, err = o.simulate(ctx, p)
	} else {
		result, err = o.live(ctx, req, p)
	}
	if err != nil {
		o.logger.ErrorTag("Detector", "analyze failed: name=%s err=%v", req.Name, err)
		return nil, failed(err)
	}

	o.logger.InfoTag("Detector", "analyze done: name=%s verdict=%s confidence=%.1f", req.Name, result.Verdict(), result.Confidence)
	return result, nil
}

// progress forwards stages in order, clamps them into a non-decreasing
// sequence within [0,100] and keeps their log lines.
type progress struct {
	ctx        context.Context
	mode       Mode
	onProgress ProgressFunc
	last       float64
	logs       []string
}

func (p *progress) emit(stage ScanStage) {
	if stage.Progress < p.last {
		stage.Progress = p.last
	}
	if stage.Progress > 100 {
		stage.Progress = 100
	}
	p.last = stage.Progress
	p.logs = append(p.logs, stage.Log)

	observability.RecordMetric(p.ctx, "detector.stage_progress", stage.Progress, map[string]string{
		"mode":  string(p.mode),
		"stage": stage.Name,
	})
	if p.onProgress != nil {
		p.onProgress(stage)
	}
}

type callOutcome struct {
	statusCode int
	status     string
	body       []byte
	err        error
}

func (o *Orchestrator) live(ctx context.Context, req AnalysisRequest, p *progress) (*DetectionResult, error) {
	p.emit(stageUplink)

	body, contentType, err := o.encode(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.requestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, o.requestTimeout)
	}
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		done <- o.post(callCtx, body, contentType)
	}()

	timer := time.NewTimer(o.coldStartAfter)
	defer timer.Stop()

	var (
		outcome  callOutcome
		resolved bool
	)
	select {
	case outcome = <-done:
		resolved = true
		if outcome.err != nil {
			return nil, outcome.err
		}
	case <-timer.C:
		o.logger.WarnTag("Detector", "no response after %s, endpoint is probably cold-starting", o.coldStartAfter)
		p.emit(stageColdStart)
	}

	p.emit(transmitStage(req.Size))

	if !resolved {
		outcome = <-done
		if outcome.err != nil {
			return nil, outcome.err
		}
	}

	if outcome.statusCode < 200 || outcome.statusCode > 299 {
		return nil, &RemoteError{
			StatusCode: outcome.statusCode,
			Status:     outcome.status,
			Body:       utils.Truncate(strings.TrimSpace(string(outcome.body)), maxErrorBody),
		}
	}

	p.emit(stageInference)
	parsed, err := ParseV1(outcome.body)
	if err != nil {
		return nil, err
	}
	p.emit(stageReceived)

	details := parsed.Message
	if details == "" {
		details = "The endpoint returned no explanation."
	}
	logs := append(p.logs, fmt.Sprintf("Confidence calculated: %s%%", strconv.FormatFloat(parsed.Confidence, 'f', -1, 64)))
	if parsed.Message != "" {
		logs = append(logs, "Server Message: "+parsed.Message)
	}

	return &DetectionResult{
		ID:            o.newID(),
		IsAIGenerated: parsed.IsAI,
		Confidence:    parsed.Confidence,
		Details:       details,
		Metadata:      liveMetadata(parsed.IsAI),
		Logs:          logs,
		Mode:          ModeLive,
		SchemaVersion: SchemaV1,
		CreatedAt:     o.now(),
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (o *Orchestrator) encode(req AnalysisRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := req.Name
	if filename == "" {
		filename = "upload"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(o.fieldName), quoteEscaper.Replace(filename)))
	header.Set("Content-Type", req.MediaType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", &NetworkError{Op: "encode", Err: err}
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", &NetworkError{Op: "encode", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, "", &NetworkError{Op: "encode", Err: err}
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (o *Orchestrator) post(ctx context.Context, body []byte, contentType string) callOutcome {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return callOutcome{err: &NetworkError{Op: "build request", Err: err}}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return callOutcome{err: &NetworkError{Op: "post", Err: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return callOutcome{err: &NetworkError{Op: "read response", Err: err}}
	}

	o.logger.DebugTag("Detector", "endpoint responded: status=%d bytes=%d elapsed=%s", resp.StatusCode, len(raw), time.Since(start))
	observability.RecordMetric(ctx, "detector.remote_latency_ms", float64(time.Since(start).Milliseconds()), map[string]string{
		"status": strconv.Itoa(resp.StatusCode),
	})
	return callOutcome{statusCode: resp.StatusCode, status: resp.Status, body: raw}
}

func (o *Orchestrator) simulate(ctx context.Context, p *progress) (*DetectionResult, error) {
	for i, stage := range simulatedStages {
		p.emit(stage)
		if err := pause(ctx, o.delay(i)); err != nil {
			return nil, err
		}
	}

	// biased toward authentic: synthetic 40% of the time
	isAI := o.random() < 0.4
	confidence := 85 + o.random()*14.9

	details := "No diffusion patterns detected. Sensor noise is consistent."
	if isAI {
		details = "Generative artifacts found in high-frequency bands."
	}

	return &DetectionResult{
		ID:            o.newID(),
		IsAIGenerated: isAI,
		Confidence:    confidence,
		Details:       details,
		Metadata:      simulatedMetadata(isAI),
		Logs:          append(p.logs, fmt.Sprintf("Confidence calculated: %.1f%%", confidence)),
		Mode:          ModeSimulated,
		CreatedAt:     o.now(),
	}, nil
}

func (o *Orchestrator) delay(i int) time.Duration {
	if i < len(o.delays) {
		return o.delays[i]
	}
	return 0
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
