// Package ratelimit implements server-directed back-off and client-side
// request pacing for the REST clients.
//
// The Zotero web API asks clients to slow down with the Backoff header
// (seconds to pause before the next request) and with Retry-After on 429
// and 503 responses. The tracker records the pause in Redis so that every
// process sharing the API key honours it, and paces requests with a token
// bucket.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPrefix namespaces rate limit state in Redis.
const RedisKeyPrefix = "ayda:rate_limit"

// Header names understood by the tracker.
const (
	HeaderBackoff    = "Backoff"
	HeaderRetryAfter = "Retry-After"
)

// Back-off reasons.
const (
	ReasonBackoff    = "backoff"
	ReasonRetryAfter = "retry-after"
)

// redisKey returns the Redis key of a state field for service.
func redisKey(service, field string) string {
	return strings.Join([]string{RedisKeyPrefix, service, field}, ":")
}

// RateLimitState represents the back-off requested by a service.
// This state is shared across all client instances via Redis.
type RateLimitState struct {
	// BackoffUntil is when requests may resume. Zero means no back-off.
	BackoffUntil time.Time `json:"backoff_until"`

	// Reason is the header that requested the back-off.
	Reason string `json:"reason,omitempty"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// InBackoff returns true if requests must wait.
func (s *RateLimitState) InBackoff() bool {
	return s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until requests may resume.
// Returns 0 if the back-off has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	if s.BackoffUntil.IsZero() {
		return 0
	}
	duration := time.Until(s.BackoffUntil)
	if duration < 0 {
		return 0
	}
	return duration
}

// ParseRetryAfter parses a Retry-After value, either delay-seconds or an
// HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative delay %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, fmt.Errorf("parse Retry-After %q: %w", value, err)
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}

// backoffFromHeaders returns the longest pause requested by headers.
func backoffFromHeaders(headers http.Header, now time.Time) (time.Duration, string, error) {
	var (
		longest time.Duration
		reason  string
	)

	if v := headers.Get(HeaderBackoff); v != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, "", fmt.Errorf("parse %s header: %w", HeaderBackoff, err)
		}
		if d := time.Duration(secs) * time.Second; d > longest {
			longest, reason = d, ReasonBackoff
		}
	}

	if v := headers.Get(HeaderRetryAfter); v != "" {
		d, err := ParseRetryAfter(v, now)
		if err != nil {
			return 0, "", err
		}
		if d > longest {
			longest, reason = d, ReasonRetryAfter
		}
	}

	return longest, reason, nil
}
