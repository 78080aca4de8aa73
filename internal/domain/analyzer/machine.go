package analyzer

import (
	"context"
	"sync"
	"time"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/eventbus"
	"ai-sentinel/internal/domain/image"
	"ai-sentinel/internal/platform/errors"
	"ai-sentinel/internal/utils"
)

// Mode is the UI-facing state of the session.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeAnalyzing Mode = "analyzing"
	ModeResult    Mode = "result"
)

var (
	ErrBusy      = errors.New(errors.KindDomain, "analyzer", "an analysis is already in flight")
	ErrNoFile    = errors.New(errors.KindDomain, "analyzer", "no file selected")
	ErrNotIdle   = errors.New(errors.KindDomain, "analyzer", "submit requires the idle state")
	ErrReset     = errors.New(errors.KindDomain, "analyzer", "session was reset before the analysis resolved")
	ErrNoSession = errors.New(errors.KindValidation, "analyzer", "selection is nil")
)

// Snapshot is a copy of the session at one point in time.
type Snapshot struct {
	Mode       Mode                       `json:"mode"`
	Generation uint64                     `json:"generation"`
	File       *image.Info                `json:"file,omitempty"`
	Preview    string                     `json:"preview,omitempty"`
	Stage      *detection.ScanStage       `json:"stage,omitempty"`
	Log        []string                   `json:"log"`
	Result     *detection.DetectionResult `json:"result,omitempty"`
}

// Options configures a Machine.
type Options struct {
	Analyzer detection.Analyzer
	Bus      eventbus.Publisher
	Now      func() time.Time
	Logger   *utils.Logger
}

// Machine owns the single analyzer session: idle -> analyzing -> result,
// with Reset returning to idle from any state.
type Machine struct {
	analyzer detection.Analyzer
	bus      eventbus.Publisher
	now      func() time.Time
	logger   *utils.Logger

	// pubMu orders transitions with their events. It is taken before mu and
	// held through the publish, so no event from a superseded generation can
	// follow the event that superseded it.
	pubMu      sync.Mutex
	mu         sync.Mutex
	mode       Mode
	file       *image.Selection
	preview    string
	stage      *detection.ScanStage
	log        []string
	result     *detection.DetectionResult
	generation uint64
	cancel     context.CancelFunc
}

// New creates an idle machine.
func New(opts Options) (*Machine, error) {
	if opts.Analyzer == nil {
		return nil, errors.New(errors.KindConfig, "analyzer.new", "analyzer is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}
	return &Machine{
		analyzer: opts.Analyzer,
		bus:      opts.Bus,
		now:      opts.Now,
		logger:   opts.Logger,
		mode:     ModeIdle,
	}, nil
}

func (m *Machine) publish(event eventbus.AnalyzerEvent) {
	if m.bus == nil {
		return
	}
	event.Timestamp = m.now()
	m.bus.Publish(event.Type, event)
}

// Select stores a validated file as the current selection. It clears any
// prior result and log and leaves the machine idle.
func (m *Machine) Select(sel *image.Selection) error {
	if sel == nil {
		return ErrNoSession
	}
	if err := sel.Request().Validate(); err != nil {
		return err
	}
	preview := sel.Preview()
	info := sel.Info()

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	if m.mode == ModeAnalyzing {
		m.mu.Unlock()
		return ErrBusy
	}
	m.generation++
	gen := m.generation
	m.file = sel
	m.preview = preview
	m.stage = nil
	m.log = nil
	m.result = nil
	m.mode = ModeIdle
	m.mu.Unlock()

	m.publish(eventbus.AnalyzerEvent{
		Type:       eventbus.TopicAnalyzerSelected,
		Generation: gen,
		Mode:       string(ModeIdle),
		File:       &info,
	})
	return nil
}

// Submit starts the analysis of the selected file. ctx bounds the analysis
// itself, not just the call to Submit. While analyzing it returns ErrBusy and
// changes nothing.
func (m *Machine) Submit(ctx context.Context) (*Run, error) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	switch {
	case m.mode == ModeAnalyzing:
		m.mu.Unlock()
		return nil, ErrBusy
	case m.mode != ModeIdle:
		m.mu.Unlock()
		return nil, ErrNotIdle
	case m.file == nil:
		m.mu.Unlock()
		return nil, ErrNoFile
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.generation++
	gen := m.generation
	m.mode = ModeAnalyzing
	m.stage = nil
	m.log = nil
	m.result = nil
	m.cancel = cancel
	req := m.file.Request()
	info := m.file.Info()
	m.mu.Unlock()

	run := newRun(gen)
	m.publish(eventbus.AnalyzerEvent{
		Type:       eventbus.TopicAnalyzerStarted,
		Generation: gen,
		Mode:       string(ModeAnalyzing),
		File:       &info,
	})

	go m.execute(runCtx, cancel, run, req, info)
	return run, nil
}

func (m *Machine) execute(ctx context.Context, cancel context.CancelFunc, run *Run, req detection.AnalysisRequest, info image.Info) {
	defer cancel()
	gen := run.generation

	result, err := m.analyzer.Analyze(ctx, req, func(stage detection.ScanStage) {
		m.onStage(gen, stage)
	})
	run.complete(m.finish(gen, info, result, err))
}

func (m *Machine) onStage(gen uint64, stage detection.ScanStage) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	if m.generation != gen || m.mode != ModeAnalyzing {
		m.mu.Unlock()
		return
	}
	line := utils.ClockTime(m.now()) + " " + stage.Log
	current := stage
	m.stage = &current
	m.log = append(m.log, line)
	m.mu.Unlock()

	m.publish(eventbus.AnalyzerEvent{
		Type:       eventbus.TopicAnalyzerStage,
		Generation: gen,
		Mode:       string(ModeAnalyzing),
		Stage:      &stage,
		LogLine:    line,
	})
}

func (m *Machine) finish(gen uint64, info image.Info, result *detection.DetectionResult, err error) (*detection.DetectionResult, error) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	if m.generation != gen || m.mode != ModeAnalyzing {
		m.mu.Unlock()
		m.logger.DebugTag("Analyzer", "discarding outcome of superseded session: gen=%d", gen)
		return nil, ErrReset
	}
	m.cancel = nil

	if err != nil {
		// the selection survives so the caller can retry
		m.mode = ModeIdle
		m.stage = nil
		m.log = nil
		m.result = nil
		m.mu.Unlock()

		m.publish(eventbus.AnalyzerEvent{
			Type:       eventbus.TopicAnalyzerFailed,
			Generation: gen,
			Mode:       string(ModeIdle),
			File:       &info,
			Error:      err.Error(),
			ErrorKind:  string(detection.FailureKind(err)),
		})
		return nil, err
	}

	m.result = result.Clone()
	m.mode = ModeResult
	published := result.Clone()
	m.mu.Unlock()

	m.publish(eventbus.AnalyzerEvent{
		Type:       eventbus.TopicAnalyzerCompleted,
		Generation: gen,
		Mode:       string(ModeResult),
		File:       &info,
		Result:     published,
	})
	return result, nil
}

// Reset abandons any in-flight analysis and clears the session. It waits for
// an event that is being published to finish delivering.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++
	gen := m.generation
	m.mode = ModeIdle
	m.file = nil
	m.preview = ""
	m.stage = nil
	m.log = nil
	m.result = nil
	m.mu.Unlock()

	m.publish(eventbus.AnalyzerEvent{
		Type:       eventbus.TopicAnalyzerReset,
		Generation: gen,
		Mode:       string(ModeIdle),
	})
}

// Mode returns the current state.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Snapshot copies the session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Mode:       m.mode,
		Generation: m.generation,
		Preview:    m.preview,
		Log:        append([]string{}, m.log...),
		Result:     m.result.Clone(),
	}
	if m.file != nil {
		info := m.file.Info()
		snap.File = &info
	}
	if m.stage != nil {
		stage := *m.stage
		snap.Stage = &stage
	}
	return snap
}
