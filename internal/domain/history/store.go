package history

import (
	"context"
	"time"

	"ai-sentinel/internal/platform/errors"
)

// ErrNotFound is returned by Get and Delete for unknown or expired ids.
var ErrNotFound = errors.New(errors.KindStorage, "history", "record not found")

// Store keeps completed analyses, newest first.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}

// Stats summarises a store.
type Stats struct {
	Driver    string `json:"driver"`
	Total     int64  `json:"total"`
	Synthetic int64  `json:"synthetic"`
	Authentic int64  `json:"authentic"`
}

// Config describes the store selection.
type Config struct {
	Driver string
	// Limit caps the number of kept records. Zero keeps the default of 100.
	Limit  int
	TTL    time.Duration
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// SQLiteConfig provides the database location.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

const defaultLimit = 100

func (c Config) limit() int {
	if c.Limit <= 0 {
		return defaultLimit
	}
	return c.Limit
}
