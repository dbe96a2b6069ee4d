package store

import (
	"context"
	"log/slog"
	"time"

	"quietlink/pkg/interfaces"
)

// Backend names the implementation chosen by Open
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Options selects and configures the store backend
type Options struct {
	RedisURL    string
	Prefix      string
	MaxRetries  int
	DialTimeout time.Duration
}

// Open picks the backend once at startup. Without a URL, or when Redis cannot
// be reached, it falls back to memory and logs a warning: state is then only
// consistent within this process.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (interfaces.StateStore, Backend, error) {
	if opts.RedisURL == "" {
		logger.Warn("no redis url configured, using in-memory store (single instance only)")
		return NewMemoryStore(), BackendMemory, nil
	}

	redisStore, err := NewRedisStore(ctx, RedisStoreConfig{
		URL:         opts.RedisURL,
		Prefix:      opts.Prefix,
		MaxRetries:  opts.MaxRetries,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory store; multi-instance matchmaking is disabled",
			"error", err)
		return NewMemoryStore(), BackendMemory, nil
	}

	logger.Info("connected to redis store", "prefix", opts.Prefix)
	return redisStore, BackendRedis, nil
}
