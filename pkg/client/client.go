// Package client provides the HTTP client shared by the Zotero and
// AnythingLLM integrations: rate limiting, response caching, retries and
// error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richardjlyon/ayda/pkg/cache"
	"github.com/richardjlyon/ayda/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for HTTP client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayda_http_requests_total",
		Help: "Total HTTP requests by service, method and status",
	}, []string{"service", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ayda_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by service and method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 120},
	}, []string{"service", "method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayda_http_errors_total",
		Help: "Total HTTP errors by service and class",
	}, []string{"service", "class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayda_http_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ayda_http_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayda_http_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and 503 with Retry-After.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// DefaultUserAgent identifies ayda to remote services.
const DefaultUserAgent = "ayda (+https://github.com/richardjlyon/ayda)"

// Client is an HTTP client bound to one service's base URL.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Service names the remote service in logs, metrics and cache keys.
	Service string

	// BaseURL is prepended to every relative endpoint.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Headers are added to every request (API keys, API versions).
	Headers http.Header

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// RateLimiter gates requests. Optional.
	RateLimiter *ratelimit.Tracker

	// Cache stores GET responses for conditional revalidation. Optional.
	Cache *cache.Manager

	// CacheScope separates cache entries of different credentials.
	CacheScope string

	// Retry
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(service, baseURL string) Config {
	return Config{
		Service:        service,
		BaseURL:        baseURL,
		UserAgent:      DefaultUserAgent,
		Headers:        http.Header{},
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", cfg.Service+"-client").Logger()

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     base,
		rateLimiter: cfg.RateLimiter,
		cache:       cfg.Cache,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Service returns the configured service name.
func (c *Client) Service() string {
	return c.config.Service
}

// URL resolves endpoint against the base URL.
func (c *Client) URL(endpoint string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// NewRequest builds a request for endpoint relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(endpoint, query), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Do performs an HTTP request with rate limiting, caching, and error handling.
//
// GET and HEAD requests are retried on network errors, 5xx and rate
// limit responses. Other methods are attempted once. 4xx responses are
// returned to the caller untouched.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path
	service := c.config.Service

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(service, req.Method).Observe(time.Since(startTime).Seconds())
	}()

	for name, values := range c.config.Headers {
		if req.Header.Get(name) == "" {
			req.Header[name] = values
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	idempotent := req.Method == http.MethodGet || req.Method == http.MethodHead

	// Check cache and revalidate
	var (
		cacheKey    cache.CacheKey
		cachedEntry *cache.CacheEntry
	)
	cacheable := c.cache != nil && req.Method == http.MethodGet
	if cacheable {
		cacheKey = cache.CacheKey{
			Service:     service,
			Endpoint:    endpoint,
			QueryParams: req.URL.Query(),
			Scope:       c.config.CacheScope,
		}
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		if entry != nil && cache.ShouldMakeConditionalRequest(entry) {
			cachedEntry = entry
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Int64("version", entry.Version).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing request")

	var resp *http.Response

	attempt := func() error {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return &APIError{Service: service, ErrorClass: ErrorClassNetwork, Message: "rate limit wait", Err: err}
			}
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(service, string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(service, req.Method, "network_error").Inc()
			return &APIError{Service: service, ErrorClass: ErrorClassNetwork, Message: "request failed", Err: reqErr}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(service, req.Method, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 400 {
			return nil
		}

		errClass := classifyStatus(resp)
		errorsTotal.WithLabelValues(service, string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request error")

		if !shouldRetry(errClass) {
			// Let the caller handle 4xx
			return nil
		}

		apiErr := CheckResponse(service, resp)
		resp = nil
		return apiErr
	}

	classify := func(err error) ErrorClass {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if errors.Is(apiErr.Err, context.Canceled) || errors.Is(apiErr.Err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					// The caller gave up; retrying cannot help.
					return ErrorClassClient
				}
			}
			return apiErr.ErrorClass
		}
		return ""
	}

	policy := func(class ErrorClass) RetryConfig {
		cfg := RetryConfigForErrorClass(class)
		if !idempotent {
			cfg.MaxAttempts = 1
			return cfg
		}
		if c.config.MaxAttempts > 0 {
			cfg.MaxAttempts = c.config.MaxAttempts
		}
		if c.config.InitialBackoff > 0 {
			cfg.InitialBackoff = c.config.InitialBackoff
		}
		return cfg
	}

	if err := retryWithBackoff(ctx, c.logger, policy, attempt, classify); err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()
		resp.Body.Close()

		expires := time.Now().Add(c.cache.DefaultTTL())
		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if parsed, err := http.ParseTime(expiresStr); err == nil {
				expires = parsed
			}
		}
		if err := c.cache.UpdateTTL(ctx, cacheKey, expires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}

		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.cache.DefaultTTL())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// Get performs a GET request to endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// GetJSON decodes the JSON body of a GET request into v and returns the
// response headers.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, v any) (http.Header, error) {
	resp, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	return resp.Header, c.decode(resp, v)
}

// SendJSON sends body as JSON with method and decodes the response into
// v. A nil v discards the response body.
func (c *Client) SendJSON(ctx context.Context, method, endpoint string, body, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, endpoint, nil, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return c.decode(resp, v)
}

// PostMultipart uploads content as a single multipart form file. The form
// is streamed into the request body, so content is never held in memory.
// The body can be read only once, which is safe because POST is attempted
// once.
func (c *Client) PostMultipart(ctx context.Context, endpoint, field, filename string, content io.Reader, v any) error {
	pr, pw := io.Pipe()
	// Unblocks the writer if the request ends before the body is consumed.
	defer pr.Close()

	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, field, filename, content))
	}()

	req, err := c.NewRequest(ctx, http.MethodPost, endpoint, nil, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return c.decode(resp, v)
}

func writeForm(form *multipart.Writer, field, filename string, content io.Reader) error {
	part, err := form.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy %s into form: %w", filename, err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}
	return nil
}

func (c *Client) decode(resp *http.Response, v any) error {
	if err := CheckResponse(c.config.Service, resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := v.(*[]byte); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		*raw = data
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &DecodeError{Service: c.config.Service, Err: err}
	}
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
