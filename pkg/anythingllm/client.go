// Package anythingllm talks to the AnythingLLM developer API: workspace
// administration, document upload, embedding and chat.
package anythingllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/richardjlyon/ayda/pkg/client"
	"github.com/richardjlyon/ayda/pkg/ratelimit"
)

const (
	// ServiceName labels AnythingLLM requests in logs and metrics.
	ServiceName = "anythingllm"

	// DefaultBaseURL is where a local AnythingLLM desktop instance listens.
	DefaultBaseURL = "http://localhost:3001"

	// DefaultMaxFileSize is the largest file accepted for upload.
	DefaultMaxFileSize int64 = 50 << 20

	apiPrefix = "/api/v1"
)

// Errors returned by the client.
var (
	ErrUnauthenticated    = errors.New("anythingllm rejected the api key")
	ErrWorkspaceNotFound  = errors.New("anythingllm workspace not found")
	ErrMultipleWorkspaces = errors.New("multiple anythingllm workspaces match")
	ErrBadRequest         = errors.New("anythingllm rejected the request")
)

// Config holds the AnythingLLM client configuration.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single request. Embedding a large batch is slow.
	Timeout time.Duration

	// MaxFileSize rejects larger files before upload. Zero disables the check.
	MaxFileSize int64

	// RateLimiter is optional.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns the default configuration for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		APIKey:      apiKey,
		Timeout:     120 * time.Second,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Client is an AnythingLLM API client.
type Client struct {
	http        *client.Client
	maxFileSize int64
}

// New creates an AnythingLLM client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anythingllm api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	base := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), apiPrefix) + apiPrefix
	hc := client.DefaultConfig(ServiceName, base)
	hc.Headers.Set("Authorization", "Bearer "+cfg.APIKey)
	hc.RateLimiter = cfg.RateLimiter
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}

	httpClient, err := client.New(hc)
	if err != nil {
		return nil, fmt.Errorf("create anythingllm http client: %w", err)
	}

	return &Client{http: httpClient, maxFileSize: cfg.MaxFileSize}, nil
}

// HTTP returns the underlying HTTP client (for testing).
func (c *Client) HTTP() *client.Client {
	return c.http
}

// Authenticated verifies the api key.
func (c *Client) Authenticated(ctx context.Context) error {
	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	if _, err := c.http.GetJSON(ctx, "auth", nil, &resp); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusUnauthorized) {
			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return fmt.Errorf("check authentication: %w", err)
	}
	if !resp.Authenticated {
		return ErrUnauthenticated
	}
	return nil
}
