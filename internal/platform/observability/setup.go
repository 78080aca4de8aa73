package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc tears down whatever Setup installed.
type ShutdownFunc func(context.Context) error

var (
	stateMu  sync.RWMutex
	spanLog  *slog.Logger
	current  Config
	counters = newCounterSet()
)

func currentState() (*slog.Logger, Config) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return spanLog, current
}

// Setup installs the span logger and resets the in-process counters.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	stateMu.Lock()
	spanLog = logger
	current = cfg
	counters = newCounterSet()
	stateMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] span logging enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] span logging disabled, counters only")
		}
	}
	return func(context.Context) error {
		stateMu.Lock()
		spanLog = nil
		current = Config{}
		stateMu.Unlock()
		return nil
	}, nil
}

// Enabled reports whether span logging has been toggled on.
func Enabled() bool {
	_, cfg := currentState()
	return cfg.Enabled
}
