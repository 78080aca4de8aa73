package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Web           WebConfig           `yaml:"web"`
	Detector      DetectorConfig      `yaml:"detector"`
	Image         ImageConfig         `yaml:"image"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Auth            AuthConfig    `yaml:"auth"`
}

type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Secret  string        `yaml:"secret"`
	TTL     time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	StaticDir    string   `yaml:"static_dir"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// DetectorConfig selects how analyses are produced.
type DetectorConfig struct {
	// Mode is "live" or "simulated". Empty means live when Endpoint is set.
	Mode            string        `yaml:"mode"`
	Endpoint        string        `yaml:"endpoint"`
	FieldName       string        `yaml:"field_name"`
	ColdStartAfter  time.Duration `yaml:"cold_start_after"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RequireEndpoint bool          `yaml:"require_endpoint"`
	// SimulationDelays paces the four simulated stages. Unset keeps the
	// detector's built-in pacing; an explicit empty list disables it.
	SimulationDelays []time.Duration `yaml:"simulation_delays"`
}

type ImageConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

type HistoryConfig struct {
	Driver string             `yaml:"driver"`
	Limit  int                `yaml:"limit"`
	TTL    time.Duration      `yaml:"ttl"`
	SQLite HistorySQLiteStore `yaml:"sqlite"`
	Redis  HistoryRedisStore  `yaml:"redis"`
}

type HistorySQLiteStore struct {
	DSN string `yaml:"dsn"`
}

type HistoryRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}
