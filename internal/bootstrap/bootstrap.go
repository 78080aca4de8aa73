package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"ai-sentinel/internal/domain/analyzer"
	domainauth "ai-sentinel/internal/domain/auth"
	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/eventbus"
	"ai-sentinel/internal/domain/history"
	domainimage "ai-sentinel/internal/domain/image"
	platformconfig "ai-sentinel/internal/platform/config"
	platformerrors "ai-sentinel/internal/platform/errors"
	platformlogging "ai-sentinel/internal/platform/logging"
	platformobservability "ai-sentinel/internal/platform/observability"
	platformstorage "ai-sentinel/internal/platform/storage"
	httptransport "ai-sentinel/internal/transport/http"
	"ai-sentinel/internal/transport/ws"
	"ai-sentinel/internal/utils"
)

const (
	asyncWorkers         = 2
	shutdownGraceTimeout = 15 * time.Second
)

// Options adjusts how the application is assembled. Empty fields keep the
// values from the configuration file and environment.
type Options struct {
	ConfigPath string
	Mode       string
	Endpoint   string
	// DotEnv loads a .env file from the working directory before the environment.
	DotEnv bool
	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options               Options
	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	history               history.Store
	bus                   eventbus.Bus
	async                 *eventbus.AsyncEventBus
	detector              *detection.Orchestrator
	pipeline              *domainimage.Pipeline
	machine               *analyzer.Machine
	tokens                *domainauth.AuthToken
}

// App is the assembled dependency graph shared by the server and the CLI.
type App struct {
	Config   *platformconfig.Config
	Logger   *utils.Logger
	Bus      eventbus.Bus
	Detector *detection.Orchestrator
	Pipeline *domainimage.Pipeline
	Machine  *analyzer.Machine
	History  history.Store
	// Tokens is nil unless API auth is enabled.
	Tokens *domainauth.AuthToken

	state *appState
}

// New runs the init graph and returns the assembled application.
func New(ctx context.Context, opts Options) (*App, error) {
	state := &appState{options: opts}
	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		state.release()
		return nil, err
	}
	return &App{
		Config:   state.config,
		Logger:   state.logger,
		Bus:      state.bus,
		Detector: state.detector,
		Pipeline: state.pipeline,
		Machine:  state.machine,
		History:  state.history,
		Tokens:   state.tokens,
		state:    state,
	}, nil
}

// Close drains pending history writes and releases every resource.
func (a *App) Close() {
	if a == nil || a.state == nil {
		return
	}
	a.state.release()
}

func (s *appState) release() {
	if s.async != nil {
		s.async.Stop()
		s.async = nil
	}
	if s.history != nil {
		if err := s.history.Close(context.Background()); err != nil {
			s.logger.WarnTag("Bootstrap", "history store did not close cleanly: %v", err)
		}
		s.history = nil
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			s.logger.WarnTag("Bootstrap", "database did not close cleanly: %v", err)
		}
		s.db = nil
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			s.logger.WarnTag("Bootstrap", "observability did not shut down cleanly: %v", err)
		}
		cancel()
		s.observabilityShutdown = nil
	}
	if s.logProvider != nil {
		_ = s.logProvider.Close()
		s.logProvider = nil
	}
}

// Run assembles the application and serves the HTTP API until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	app, err := New(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	logger := app.Logger
	logBootstrapGraph(InitGraph(), logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startHTTPServer(app, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *utils.Logger) {
	logger.InfoTag("Bootstrap", "init graph overview")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Bootstrap", "%s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag("Bootstrap", "%s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}
	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the initialisation steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-history",
			Title:     "Initialise history store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initHistoryStep,
		},
		{
			ID:        "eventbus:init",
			Title:     "Initialise event buses",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "detector:init",
			Title:     "Initialise detection orchestrator",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindConfig,
			Execute:   initDetectorStep,
		},
		{
			ID:        "analyzer:init-machine",
			Title:     "Initialise analyzer state machine",
			DependsOn: []string{"detector:init", "eventbus:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAnalyzerStep,
		},
		{
			ID:        "history:attach-recorder",
			Title:     "Persist completed analyses",
			DependsOn: []string{"storage:init-history", "eventbus:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   attachRecorderStep,
		},
		{
			ID:        "auth:init-token",
			Title:     "Initialise API token signer",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindConfig,
			Execute:   initAuthStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	opts := state.options
	loader := platformconfig.NewLoader().WithDotEnv(opts.DotEnv).WithPath(opts.ConfigPath)
	if opts.LookupEnv != nil {
		loader = loader.WithEnv(opts.LookupEnv)
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}

	cfg := result.Config
	if opts.Mode != "" || opts.Endpoint != "" {
		if opts.Endpoint != "" {
			cfg.Detector.Endpoint = opts.Endpoint
			if opts.Mode == "" {
				cfg.Detector.Mode = ""
			}
		}
		if opts.Mode != "" {
			cfg.Detector.Mode = opts.Mode
		}
		platformconfig.Normalize(cfg)
		if err := platformconfig.Validate(cfg); err != nil {
			return err
		}
	}

	state.config = cfg
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Legacy()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	state.logger.InfoTag(
		"Bootstrap",
		"logging ready [%s] config=%s",
		state.config.Log.Level,
		state.configPath,
	)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled || strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initHistoryStep(_ context.Context, state *appState) error {
	hc := state.config.History
	cfg := history.Config{
		Driver: hc.Driver,
		Limit:  hc.Limit,
		TTL:    hc.TTL,
	}

	var deps history.Dependencies
	switch hc.Driver {
	case history.DriverSQLite:
		db, err := platformstorage.Open(hc.SQLite.DSN)
		if err != nil {
			return err
		}
		state.db = db
		deps.SQLiteDB = db
		cfg.SQLite = &history.SQLiteConfig{DSN: hc.SQLite.DSN}
	case history.DriverRedis:
		cfg.Redis = &history.RedisConfig{
			Addr:     hc.Redis.Addr,
			Username: hc.Redis.Username,
			Password: hc.Redis.Password,
			DB:       hc.Redis.DB,
			Prefix:   hc.Redis.Prefix,
		}
	}

	store, err := history.New(cfg, deps)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-history", "failed to create history store", err)
	}
	state.history = store
	state.logger.InfoTag("Bootstrap", "history store ready: driver=%s limit=%d", hc.Driver, hc.Limit)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New()
	state.async = eventbus.NewAsyncEventBus(asyncWorkers, state.logger)
	state.async.Start()

	if err := eventbus.SetupEventHandlers(state.bus, state.logger); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:init", "failed to subscribe log handlers", err)
	}
	return nil
}

func initDetectorStep(_ context.Context, state *appState) error {
	dc := state.config.Detector
	mode, err := detection.ParseMode(dc.Mode)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "detector:init", "invalid detector mode", err)
	}

	detector, err := detection.NewOrchestrator(detection.Options{
		Mode:           mode,
		Endpoint:       dc.Endpoint,
		FieldName:      dc.FieldName,
		ColdStartAfter: dc.ColdStartAfter,
		RequestTimeout: dc.RequestTimeout,
		Delays:         dc.SimulationDelays,
		Logger:         state.logger,
	})
	if err != nil {
		return err
	}
	state.detector = detector
	return nil
}

func initAnalyzerStep(_ context.Context, state *appState) error {
	state.pipeline = domainimage.NewPipeline(domainimage.Options{
		MaxFileSize: state.config.Image.MaxFileSize,
		Logger:      state.logger,
	})

	machine, err := analyzer.New(analyzer.Options{
		Analyzer: state.detector,
		Bus:      state.bus,
		Logger:   state.logger,
	})
	if err != nil {
		return err
	}
	state.machine = machine
	return nil
}

func attachRecorderStep(_ context.Context, state *appState) error {
	recorder := history.NewRecorder(state.history, state.async, state.logger)
	if err := recorder.Attach(state.bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "history:attach-recorder", "failed to subscribe history recorder", err)
	}
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	ac := state.config.Server.Auth
	if !ac.Enabled {
		return nil
	}
	state.tokens = domainauth.NewAuthToken(ac.Secret).WithTTL(ac.TTL)
	return nil
}

func startHTTPServer(app *App, g *errgroup.Group, groupCtx context.Context) error {
	config := app.Config
	logger := app.Logger

	var authMiddleware gin.HandlerFunc
	if app.Tokens != nil {
		authMiddleware = httptransport.BearerAuth(app.Tokens, logger)
	}

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:         config,
		Logger:         logger,
		AuthMiddleware: authMiddleware,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			httptransport.RespondError(c, http.StatusNotFound, "api not found", gin.H{})
			return
		}
		c.Status(http.StatusNotFound)
	})

	hub := ws.NewHub(logger)
	if err := hub.Attach(app.Bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "ws:attach-hub", "failed to subscribe websocket hub", err)
	}

	analyzerService, err := httptransport.NewAnalyzerService(app.Machine, app.Pipeline, app.Detector.Mode(), logger)
	if err != nil {
		return err
	}
	streamRouter := ws.NewRouter(hub, logger, ws.RouterOptions{
		Snapshot: func() any { return analyzerService.View(false) },
	})
	analyzerService.SetStream(streamRouter.Handle)

	analyzerService.Register(httpRouter.Secured)
	httptransport.NewHistoryService(app.History, logger).Register(httpRouter.Secured)
	httptransport.NewHealthService(string(app.Detector.Mode()), app.Detector.Endpoint(), hub.Count).Register(httpRouter.API)

	addr := net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "gin server listening on http://%s (detector=%s)", addr, app.Detector.Mode())

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
			defer cancel()

			hub.CloseAll(ws.ErrSessionShutdown)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP server stopped gracefully")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *utils.Logger,
	g *errgroup.Group,
) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		// the server exited on its own, typically a bind failure
		cancel()
		return err
	case <-ctx.Done():
	}
	logger.InfoTag("Bootstrap", "shutdown requested (%v), releasing resources", context.Cause(ctx))

	cancel()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(shutdownGraceTimeout):
		logger.ErrorTag("Bootstrap", "shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
	return nil
}
