package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Options configures a Manager.
type Options struct {
	// Size is the number of entries kept in memory
	Size int
	// DefaultTTL applies to responses without an Expires header
	DefaultTTL time.Duration
}

// DefaultOptions returns the default cache options.
func DefaultOptions() Options {
	return Options{
		Size:       1024,
		DefaultTTL: DefaultTTL,
	}
}

// Manager handles caching operations with an in-memory LRU in front of an
// optional Redis backend.
type Manager struct {
	memory     *lru.Cache[string, *CacheEntry]
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewManager creates a new cache manager. redisClient may be nil, in which
// case only the memory layer is used.
func NewManager(redisClient *redis.Client, opts Options) (*Manager, error) {
	if opts.Size <= 0 {
		opts.Size = DefaultOptions().Size
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}

	memory, err := lru.New[string, *CacheEntry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	return &Manager{
		memory:     memory,
		redis:      redisClient,
		defaultTTL: opts.DefaultTTL,
	}, nil
}

// DefaultTTL returns the TTL applied to responses without Expires.
func (m *Manager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if entry, ok := m.memory.Get(cacheKey); ok {
		if !entry.IsExpired() {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
		m.memory.Remove(cacheKey)
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.memory.Add(cacheKey, &entry)

	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cacheKey := key.String()

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	m.memory.Add(cacheKey, entry)
	CacheSize.WithLabelValues("memory").Add(float64(entry.Size()))

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))

	return nil
}

// Delete removes a cache entry from every layer.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()
	m.memory.Remove(cacheKey)

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL updates the TTL of an existing cache entry.
// This is used when a 304 Not Modified response confirms the entry.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	updated := *entry
	updated.Expires = newExpires

	return m.Set(ctx, key, &updated)
}

// Len returns the number of entries in the memory layer.
func (m *Manager) Len() int {
	return m.memory.Len()
}
