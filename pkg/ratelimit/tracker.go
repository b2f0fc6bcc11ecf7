package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	backoffSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ayda_rate_limit_backoff_seconds",
		Help: "Most recent back-off requested by a service in seconds",
	}, []string{"service"})

	backoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayda_rate_limit_backoffs_total",
		Help: "Total number of back-off requests received by service and reason",
	}, []string{"service", "reason"})

	waitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayda_rate_limit_waits_total",
		Help: "Total number of requests delayed by a back-off",
	}, []string{"service"})
)

// Tracker records back-off requests and gates outgoing requests.
type Tracker struct {
	redis   *redis.Client
	service string
	limiter *rate.Limiter
	logger  zerolog.Logger

	// local holds the state when no Redis client is configured.
	mu    sync.Mutex
	local RateLimitState
}

// NewTracker creates a new rate limit tracker. redisClient may be nil to
// keep state in memory. requestsPerSecond <= 0 disables pacing.
func NewTracker(redisClient *redis.Client, service string, requestsPerSecond float64, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		redis:   redisClient,
		service: service,
		logger:  logger,
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return t
}

// GetState retrieves the current back-off state.
// Returns an empty state if nothing was recorded.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	untilMillis, err := t.redis.Get(ctx, redisKey(t.service, "backoff_until")).Int64()
	if err == redis.Nil {
		return &RateLimitState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backoff: %w", err)
	}

	reason, err := t.redis.Get(ctx, redisKey(t.service, "reason")).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get backoff reason: %w", err)
	}

	updatedMillis, err := t.redis.Get(ctx, redisKey(t.service, "last_update")).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	return &RateLimitState{
		BackoffUntil: time.UnixMilli(untilMillis),
		Reason:       reason,
		LastUpdate:   time.UnixMilli(updatedMillis),
	}, nil
}

// UpdateFromHeaders records the back-off requested by response headers.
// A shorter pause never replaces a longer one already in effect.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	now := time.Now()
	pause, reason, err := backoffFromHeaders(headers, now)
	if err != nil {
		return err
	}
	if pause <= 0 {
		// No back-off requested - the common case
		return nil
	}

	current, err := t.GetState(ctx)
	if err != nil {
		return err
	}
	until := now.Add(pause)
	if !until.After(current.BackoffUntil) {
		return nil
	}

	state := RateLimitState{BackoffUntil: until, Reason: reason, LastUpdate: now}
	if err := t.store(ctx, state, pause); err != nil {
		return err
	}

	backoffSeconds.WithLabelValues(t.service).Set(pause.Seconds())
	backoffsTotal.WithLabelValues(t.service, reason).Inc()

	t.logger.Warn().
		Str("service", t.service).
		Str("reason", reason).
		Dur("pause", pause).
		Time("resume_at", until).
		Msg("Service requested back-off")

	return nil
}

func (t *Tracker) store(ctx context.Context, state RateLimitState, ttl time.Duration) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	// Keys expire with the back-off itself.
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, redisKey(t.service, "backoff_until"), state.BackoffUntil.UnixMilli(), ttl)
	pipe.Set(ctx, redisKey(t.service, "reason"), state.Reason, ttl)
	pipe.Set(ctx, redisKey(t.service, "last_update"), state.LastUpdate.UnixMilli(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store backoff state in redis: %w", err)
	}
	return nil
}

// Wait blocks until a request may be sent: first until any recorded
// back-off has passed, then until the token bucket allows it.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	if wait := state.TimeUntilReset(); wait > 0 {
		waitsTotal.WithLabelValues(t.service).Inc()
		t.logger.Info().
			Str("service", t.service).
			Str("reason", state.Reason).
			Dur("wait", wait).
			Msg("Waiting for back-off to pass")

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if t.limiter != nil {
		return t.limiter.Wait(ctx)
	}
	return nil
}

// Service returns the name of the tracked service.
func (t *Tracker) Service() string {
	return t.service
}
