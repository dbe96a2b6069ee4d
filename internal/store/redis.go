package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quietlink/pkg/interfaces"
)

// RedisStore is the distributed implementation of interfaces.StateStore.
// Each primitive maps to exactly one Redis set command, so atomicity across
// instances is provided by the server.
type RedisStore struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
	prefix string
}

// RedisStoreConfig configures the Redis store
type RedisStoreConfig struct {
	URL         string
	Prefix      string // Optional prefix for set keys
	MaxRetries  int
	DialTimeout time.Duration
	Options     *redis.Options // Takes precedence over URL when set
}

// NewRedisStore connects to Redis and verifies the connection with PING
func NewRedisStore(ctx context.Context, config RedisStoreConfig) (*RedisStore, error) {
	opts := config.Options
	if opts == nil {
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		opts = parsed
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
	}, nil
}

// Client exposes the underlying connection so the Redis bus can share it
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) key(set string) string {
	return r.prefix + set
}

// acquire holds the read lock for the duration of one command so Close
// cannot tear the client down underneath it
func (r *RedisStore) acquire(ctx context.Context, set string) (func(), error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if set == "" {
		return nil, ErrEmptySetName
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	return r.mu.RUnlock, nil
}

// Add inserts ids with a single SADD
func (r *RedisStore) Add(ctx context.Context, set string, ids ...string) error {
	release, err := r.acquire(ctx, set)
	if err != nil {
		return err
	}
	defer release()

	if len(ids) == 0 {
		return nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := r.client.SAdd(ctx, r.key(set), members...).Err(); err != nil {
		return fmt.Errorf("failed to add to %s: %w", set, err)
	}
	return nil
}

// Remove deletes id with SREM and reports whether it was present
func (r *RedisStore) Remove(ctx context.Context, set, id string) (bool, error) {
	release, err := r.acquire(ctx, set)
	if err != nil {
		return false, err
	}
	defer release()

	removed, err := r.client.SRem(ctx, r.key(set), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove from %s: %w", set, err)
	}
	return removed > 0, nil
}

// PopAny removes a random member with SPOP
func (r *RedisStore) PopAny(ctx context.Context, set string) (string, bool, error) {
	release, err := r.acquire(ctx, set)
	if err != nil {
		return "", false, err
	}
	defer release()

	id, err := r.client.SPop(ctx, r.key(set)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to pop from %s: %w", set, err)
	}
	return id, true, nil
}

// Cardinality returns SCARD of the set
func (r *RedisStore) Cardinality(ctx context.Context, set string) (int64, error) {
	release, err := r.acquire(ctx, set)
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := r.client.SCard(ctx, r.key(set)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", set, err)
	}
	return n, nil
}

// Contains reports SISMEMBER of id
func (r *RedisStore) Contains(ctx context.Context, set, id string) (bool, error) {
	release, err := r.acquire(ctx, set)
	if err != nil {
		return false, err
	}
	defer release()

	ok, err := r.client.SIsMember(ctx, r.key(set), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", set, err)
	}
	return ok, nil
}

// Ping verifies the server is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrStoreClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

var _ interfaces.StateStore = (*RedisStore)(nil)
