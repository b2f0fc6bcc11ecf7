package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

// fastPolicy keeps the retry schedule short enough for unit tests.
func fastPolicy(attempts int) func(ErrorClass) RetryConfig {
	return func(ErrorClass) RetryConfig {
		return RetryConfig{
			MaxAttempts:       attempts,
			InitialBackoff:    5 * time.Millisecond,
			MaxBackoff:        20 * time.Millisecond,
			BackoffMultiplier: 2.0,
		}
	}
}

func classAlways(class ErrorClass) func(error) ErrorClass {
	return func(error) ErrorClass { return class }
}

// failing returns an operation that fails until call number succeedOn.
func failing(calls *int, succeedOn int) func() error {
	return func() error {
		*calls++
		if succeedOn > 0 && *calls >= succeedOn {
			return nil
		}
		return errTest
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	assert.Equal(t, RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}, DefaultRetryConfig())
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		initial  time.Duration
		max      time.Duration
		attempts int
	}{
		{ErrorClassServer, time.Second, 10 * time.Second, 3},
		{ErrorClassRateLimit, 5 * time.Second, 60 * time.Second, 5},
		{ErrorClassNetwork, 2 * time.Second, 30 * time.Second, 3},
		{"", time.Second, 30 * time.Second, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			cfg := RetryConfigForErrorClass(tt.class)
			assert.Equal(t, tt.initial, cfg.InitialBackoff)
			assert.Equal(t, tt.max, cfg.MaxBackoff)
			assert.Equal(t, tt.attempts, cfg.MaxAttempts)
		})
	}
}

func TestRetryConfig_BackoffFor(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, BackoffMultiplier: 2}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, cfg.backoffFor(i+1), "attempt %d", i+1)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		succeedOn int
		class     ErrorClass
		wantCalls int
		wantErr   bool
		exhausted bool
	}{
		{"first try", 3, 1, ErrorClassServer, 1, false, false},
		{"success after retries", 3, 3, ErrorClassServer, 3, false, false},
		{"attempts exhausted", 3, 0, ErrorClassNetwork, 3, true, true},
		{"client error not retried", 3, 0, ErrorClassClient, 1, true, false},
		{"single attempt policy", 1, 0, ErrorClassServer, 1, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryWithBackoff(context.Background(), zerolog.Nop(), fastPolicy(tt.attempts),
				failing(&calls, tt.succeedOn), classAlways(tt.class))

			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errTest, "last error is kept")
			assert.Equal(t, tt.exhausted, errors.Is(err, ErrRetryExhausted))
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := func(ErrorClass) RetryConfig {
		return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 2}
	}
	time.AfterFunc(10*time.Millisecond, cancel)

	calls := 0
	err := retryWithBackoff(ctx, zerolog.Nop(), policy, failing(&calls, 0), classAlways(ErrorClassServer))

	assert.ErrorIs(t, err, ErrContextCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no attempt after cancellation")
}

func TestRetryWithBackoff_PolicyFollowsErrorClass(t *testing.T) {
	var classes []ErrorClass
	policy := func(class ErrorClass) RetryConfig {
		classes = append(classes, class)
		return fastPolicy(3)(class)
	}

	calls := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), policy, failing(&calls, 0), func(error) ErrorClass {
		if calls == 1 {
			return ErrorClassNetwork
		}
		return ErrorClassRateLimit
	})

	require.ErrorIs(t, err, ErrRetryExhausted)
	require.Len(t, classes, 3)
	assert.Equal(t, ErrorClassNetwork, classes[0])
	assert.Equal(t, ErrorClassRateLimit, classes[2])
}

func TestRetryWithBackoff_Jitter(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = retryWithBackoff(context.Background(), zerolog.Nop(), func(ErrorClass) RetryConfig {
		return RetryConfig{MaxAttempts: 2, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	}, failing(&calls, 0), classAlways(ErrorClassServer))
	elapsed := time.Since(start)

	// One backoff of 50ms ±20%.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}
