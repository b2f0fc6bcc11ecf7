// Package app wires configuration, clients and the import pipeline into the
// operations exposed by the ayda command.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richardjlyon/ayda/internal/config"
	"github.com/richardjlyon/ayda/pkg/anythingllm"
	"github.com/richardjlyon/ayda/pkg/cache"
	"github.com/richardjlyon/ayda/pkg/logging"
	"github.com/richardjlyon/ayda/pkg/ratelimit"
	"github.com/richardjlyon/ayda/pkg/zotero"
	"github.com/rs/zerolog"
)

// ErrZoteroNotConfigured is returned by Zotero operations of an App built
// without config.NeedZotero.
var ErrZoteroNotConfigured = errors.New("zotero client is not configured")

// App holds the clients shared by all operations.
type App struct {
	cfg    *config.Config
	redis  *redis.Client
	cache  *cache.Manager
	zotero *zotero.Client
	llm    *anythingllm.Client
	logger zerolog.Logger
}

// New validates cfg for need and builds the clients. Redis is connected
// only when cfg.Redis.Addr is set; without it, cache and backoff state stay
// in process memory.
func New(ctx context.Context, cfg *config.Config, need config.Need) (*App, error) {
	if err := cfg.Validate(need); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logging.NewLogger("app")}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	var err error
	a.cache, err = cache.NewManager(a.redis, cache.Options{Size: cfg.Cache.Size, DefaultTTL: cfg.Cache.TTL})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	if need&config.NeedZotero != 0 {
		zc := zotero.DefaultConfig(cfg.Zotero.UserID, cfg.Zotero.APIKey)
		if cfg.Zotero.BaseURL != "" {
			zc.BaseURL = cfg.Zotero.BaseURL
		}
		zc.PageSize = cfg.Zotero.PageSize
		zc.MaxPageConcurrency = cfg.Zotero.MaxPageConcurrency
		zc.Cache = a.cache
		zc.RateLimiter = ratelimit.NewTracker(a.redis, zotero.ServiceName, cfg.Zotero.RequestsPerSecond, logging.NewLogger("ratelimit"))

		if a.zotero, err = zotero.New(zc); err != nil {
			a.Close()
			return nil, err
		}
	}

	if need&config.NeedAnythingLLM != 0 {
		lc := anythingllm.DefaultConfig(cfg.AnythingLLM.APIKey)
		if cfg.AnythingLLM.BaseURL != "" {
			lc.BaseURL = cfg.AnythingLLM.BaseURL
		}
		if cfg.AnythingLLM.Timeout > 0 {
			lc.Timeout = cfg.AnythingLLM.Timeout
		}
		lc.MaxFileSize = cfg.AnythingLLM.MaxFileSize
		// AnythingLLM is local; only server-directed backoff applies.
		lc.RateLimiter = ratelimit.NewTracker(a.redis, anythingllm.ServiceName, 0, logging.NewLogger("ratelimit"))

		if a.llm, err = anythingllm.New(lc); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Close releases the Redis connection.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Zotero returns the Zotero client, nil unless config.NeedZotero was given.
func (a *App) Zotero() *zotero.Client {
	return a.zotero
}

// AnythingLLM returns the AnythingLLM client, nil unless
// config.NeedAnythingLLM was given.
func (a *App) AnythingLLM() *anythingllm.Client {
	return a.llm
}

// Collections lists the Zotero collections.
func (a *App) Collections(ctx context.Context) ([]zotero.Collection, error) {
	if a.zotero == nil {
		return nil, ErrZoteroNotConfigured
	}
	return a.zotero.Collections(ctx)
}
