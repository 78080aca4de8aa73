package config

import "time"

const (
	ModeLive      = "live"
	ModeSimulated = "simulated"

	HistoryDriverMemory = "memory"
	HistoryDriverSQLite = "sqlite"
	HistoryDriverRedis  = "redis"
)

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
			Auth: AuthConfig{
				Enabled: false,
				TTL:     24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "sentinel.log",
		},
		Web: WebConfig{
			AllowOrigins: []string{"*"},
		},
		Detector: DetectorConfig{
			FieldName:        "image",
			ColdStartAfter:   4 * time.Second,
			RequestTimeout:   120 * time.Second,
		},
		Image: ImageConfig{
			MaxFileSize: 20 * 1024 * 1024,
		},
		History: HistoryConfig{
			Driver: HistoryDriverMemory,
			Limit:  100,
			TTL:    7 * 24 * time.Hour,
			SQLite: HistorySQLiteStore{
				DSN: "data/sentinel.db",
			},
			Redis: HistoryRedisStore{
				Addr:   "127.0.0.1:6379",
				Prefix: "sentinel:history:",
			},
		},
	}
}
