// Package metrics exposes the Prometheus metrics registered by the other
// packages (client, cache, ratelimit, pagination, pipeline) and serves
// them over HTTP next to a health endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by ayda.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve listens on addr until ctx is done. The listener is bound before
// Serve returns so that a bad address fails fast; the returned channel
// reports the server's exit error.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	return done, nil
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ayda_rate_limit_backoff_seconds{service} (Gauge): Most recent back-off requested
//   - ayda_rate_limit_backoffs_total{service, reason} (Counter): Back-off requests received
//   - ayda_rate_limit_waits_total{service} (Counter): Requests delayed by a back-off
//
// Cache Metrics (pkg/cache):
//   - ayda_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - ayda_cache_misses_total (Counter): Cache misses
//   - ayda_cache_size_bytes{layer} (Gauge): Bytes written per layer
//   - ayda_304_responses_total (Counter): 304 Not Modified responses
//   - ayda_conditional_requests_total (Counter): Conditional requests sent
//   - ayda_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - ayda_http_requests_total{service, method, status} (Counter)
//   - ayda_http_request_duration_seconds{service, method} (Histogram)
//   - ayda_http_errors_total{service, class} (Counter)
//   - ayda_http_retries_total{error_class} (Counter)
//   - ayda_http_retry_backoff_seconds{error_class} (Histogram)
//   - ayda_http_retry_exhausted_total{error_class} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - ayda_pages_fetched_total{result} (Counter)
//   - ayda_items_fetched_total (Counter)
//
// Import Metrics (pkg/pipeline):
//   - ayda_uploads_total{outcome} (Counter)
//   - ayda_uploads_in_flight (Gauge)
//   - ayda_upload_duration_seconds (Histogram)
//   - ayda_embed_batches_total{result} (Counter)
//   - ayda_failure_logs_total{result} (Counter)
//   - ayda_runs_total{status} (Counter)
//
// Example Prometheus Queries:
//
//   # Upload failure ratio
//   sum(rate(ayda_uploads_total{outcome="failed"}[5m])) / sum(rate(ayda_uploads_total[5m]))
//
//   # P95 upload latency
//   histogram_quantile(0.95, rate(ayda_upload_duration_seconds_bucket[5m]))
//
//   # Zotero revalidation rate
//   rate(ayda_304_responses_total[5m]) / rate(ayda_conditional_requests_total[5m])
