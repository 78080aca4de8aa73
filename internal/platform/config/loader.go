package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ai-sentinel/internal/platform/errors"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SENTINEL_"

var defaultSearchPaths = []string{".config.yaml", "config.yaml"}

// Loader reads configuration from an optional yaml file, .env and the environment.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that searches the working directory for a config file.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file. A pinned file that does not exist is an error.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load merges defaults, the config file and environment overrides, then validates.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.read", "failed to read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.parse", "failed to parse config file", err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	Normalize(cfg)
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func (l *Loader) resolvePath() (string, error) {
	if l.path != "" {
		if _, err := os.Stat(l.path); err != nil {
			return "", errors.Wrap(errors.KindConfig, "config.resolve", "config file not found", err)
		}
		return l.path, nil
	}
	for _, candidate := range defaultSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (l *Loader) env(name string) (string, bool) {
	value, ok := l.lookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v, ok := l.env("DETECTOR_MODE"); ok {
		cfg.Detector.Mode = v
	}
	if v, ok := l.env("DETECTOR_ENDPOINT"); ok {
		cfg.Detector.Endpoint = v
	}
	if v, ok := l.env("DETECTOR_FIELD_NAME"); ok {
		cfg.Detector.FieldName = v
	}
	if v, ok := l.env("DETECTOR_REQUIRE_ENDPOINT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", "invalid SENTINEL_DETECTOR_REQUIRE_ENDPOINT", err)
		}
		cfg.Detector.RequireEndpoint = b
	}
	if v, ok := l.env("DETECTOR_COLD_START_AFTER"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", "invalid SENTINEL_DETECTOR_COLD_START_AFTER", err)
		}
		cfg.Detector.ColdStartAfter = d
	}
	if v, ok := l.env("SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", "invalid SENTINEL_SERVER_PORT", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := l.env("AUTH_SECRET"); ok {
		cfg.Server.Auth.Secret = v
	}
	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("HISTORY_DRIVER"); ok {
		cfg.History.Driver = v
	}
	if v, ok := l.env("HISTORY_SQLITE_DSN"); ok {
		cfg.History.SQLite.DSN = v
	}
	if v, ok := l.env("HISTORY_REDIS_ADDR"); ok {
		cfg.History.Redis.Addr = v
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	return Validate(cfg)
}

// Normalize fills derived values: an empty detector mode becomes live when an
// endpoint is configured and simulated otherwise.
func Normalize(cfg *Config) {
	cfg.Detector.Mode = strings.ToLower(strings.TrimSpace(cfg.Detector.Mode))
	cfg.Detector.Endpoint = strings.TrimSpace(cfg.Detector.Endpoint)
	if cfg.Detector.Mode == "" {
		if cfg.Detector.Endpoint != "" {
			cfg.Detector.Mode = ModeLive
		} else {
			cfg.Detector.Mode = ModeSimulated
		}
	}
	if cfg.Detector.FieldName == "" {
		cfg.Detector.FieldName = "image"
	}
	cfg.History.Driver = strings.ToLower(strings.TrimSpace(cfg.History.Driver))
	if cfg.History.Driver == "" {
		cfg.History.Driver = HistoryDriverMemory
	}
}

// Validate checks a normalized configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.KindConfig, "config.validate", "config is nil")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid server port: %d", cfg.Server.Port))
	}
	if cfg.Server.Auth.Enabled && cfg.Server.Auth.Secret == "" {
		return errors.New(errors.KindConfig, "config.validate", "auth enabled without secret")
	}

	switch cfg.Detector.Mode {
	case ModeLive:
		if cfg.Detector.Endpoint == "" {
			return errors.New(errors.KindConfig, "config.validate", "live detector mode requires an endpoint")
		}
		u, err := url.Parse(cfg.Detector.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid detector endpoint: %q", cfg.Detector.Endpoint))
		}
	case ModeSimulated:
		if cfg.Detector.RequireEndpoint {
			return errors.New(errors.KindConfig, "config.validate", "simulated detector mode is disabled by require_endpoint")
		}
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unknown detector mode: %q", cfg.Detector.Mode))
	}
	if cfg.Detector.ColdStartAfter <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "cold_start_after must be positive")
	}
	if cfg.Detector.RequestTimeout < 0 {
		return errors.New(errors.KindConfig, "config.validate", "request_timeout must not be negative")
	}
	for _, d := range cfg.Detector.SimulationDelays {
		if d < 0 {
			return errors.New(errors.KindConfig, "config.validate", "simulation delays must not be negative")
		}
	}

	if cfg.Image.MaxFileSize <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "image max_file_size must be positive")
	}

	switch cfg.History.Driver {
	case HistoryDriverMemory, HistoryDriverSQLite, HistoryDriverRedis:
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unsupported history driver: %q", cfg.History.Driver))
	}
	return nil
}
