// Package zotero reads collections and items from the Zotero Web API v3.
//
// Requests go through pkg/client, so they share its rate limiting
// (Zotero's Backoff and Retry-After headers), retry policy and response
// cache. Cached pages are revalidated with If-Modified-Since-Version and
// served from the cache when Zotero answers 304.
package zotero

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/richardjlyon/ayda/pkg/cache"
	"github.com/richardjlyon/ayda/pkg/client"
	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/item"
	"github.com/richardjlyon/ayda/pkg/logging"
	"github.com/richardjlyon/ayda/pkg/pagination"
	"github.com/richardjlyon/ayda/pkg/ratelimit"
	"github.com/rs/zerolog"
)

const (
	// ServiceName labels Zotero requests in logs, metrics and cache keys.
	ServiceName = "zotero"

	// DefaultBaseURL is the Zotero Web API root.
	DefaultBaseURL = "https://api.zotero.org"

	// APIVersion is the Zotero Web API version spoken by the client.
	APIVersion = "3"

	HeaderAPIKey       = "Zotero-API-Key"
	HeaderAPIVersion   = "Zotero-API-Version"
	HeaderTotalResults = "Total-Results"
)

// Errors returned when resolving a collection by name.
var (
	ErrCollectionNotFound  = errors.New("zotero collection not found")
	ErrMultipleCollections = errors.New("multiple zotero collections match")
)

// Config holds the Zotero client configuration.
type Config struct {
	BaseURL string
	UserID  string
	APIKey  string

	// Pagination
	PageSize           int
	MaxPageConcurrency int
	PageTimeout        time.Duration

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Optional collaborators shared with other clients.
	RateLimiter *ratelimit.Tracker
	Cache       *cache.Manager
}

// DefaultConfig returns the default configuration for userID.
func DefaultConfig(userID, apiKey string) Config {
	return Config{
		BaseURL:            DefaultBaseURL,
		UserID:             userID,
		APIKey:             apiKey,
		PageSize:           100,
		MaxPageConcurrency: 1,
		PageTimeout:        30 * time.Second,
		Timeout:            30 * time.Second,
	}
}

// Client is a Zotero Web API client scoped to one user library.
type Client struct {
	http       *client.Client
	pagination pagination.Config
	logger     zerolog.Logger
}

// New creates a Zotero client.
func New(cfg Config) (*Client, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("zotero user id is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("zotero api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	base := strings.TrimRight(cfg.BaseURL, "/") + "/users/" + url.PathEscape(cfg.UserID)
	hc := client.DefaultConfig(ServiceName, base)
	hc.Headers.Set(HeaderAPIKey, cfg.APIKey)
	hc.Headers.Set(HeaderAPIVersion, APIVersion)
	hc.RateLimiter = cfg.RateLimiter
	hc.Cache = cfg.Cache
	hc.CacheScope = cfg.UserID
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}

	httpClient, err := client.New(hc)
	if err != nil {
		return nil, fmt.Errorf("create zotero http client: %w", err)
	}

	return &Client{
		http: httpClient,
		pagination: pagination.Config{
			PageSize:       cfg.PageSize,
			MaxConcurrency: cfg.MaxPageConcurrency,
			Timeout:        cfg.PageTimeout,
		},
		logger: logging.NewLogger(ServiceName),
	}, nil
}

// HTTP returns the underlying HTTP client (for testing).
func (c *Client) HTTP() *client.Client {
	return c.http
}

// getPage fetches one page of endpoint and decodes it into entries. The
// endpoint may carry its own query parameters.
func (c *Client) getPage(ctx context.Context, endpoint string, offset, limit int, entries any) (int, error) {
	path, rawQuery, _ := strings.Cut(endpoint, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return 0, &failure.FetchError{Kind: failure.KindProtocol, Message: "invalid endpoint query", Err: err}
	}
	query.Set("start", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("format", "json")

	headers, err := c.http.GetJSON(ctx, path, query, entries)
	if err != nil {
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) && ctx.Err() == nil {
			// Undecodable body
			return 0, &failure.FetchError{Kind: failure.KindProtocol, Message: "malformed page", Err: err}
		}
		return 0, err
	}

	raw := headers.Get(HeaderTotalResults)
	if raw == "" {
		return 0, &failure.FetchError{Kind: failure.KindProtocol, Message: "missing " + HeaderTotalResults + " header"}
	}
	total, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || total < 0 {
		return 0, &failure.FetchError{Kind: failure.KindProtocol, Message: fmt.Sprintf("invalid %s header %q", HeaderTotalResults, raw)}
	}
	return total, nil
}

// FetchPage fetches the items of endpoint starting at offset. It
// implements pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, endpoint string, offset, limit int) (pagination.Page[item.Item], error) {
	var entries []itemEntry
	total, err := c.getPage(ctx, endpoint, offset, limit, &entries)
	if err != nil {
		return pagination.Page[item.Item]{}, err
	}

	items := make([]item.Item, len(entries))
	var linked []string
	for i, e := range entries {
		items[i] = e.toItem()
		if e.Data.ItemType == "attachment" && isLinked(e.Data.LinkMode) {
			linked = append(linked, items[i].Key)
		}
	}
	if len(linked) > 0 {
		// Linked files live outside Zotero storage and are never uploaded.
		linkedAttachments.Add(float64(len(linked)))
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("offset", offset).
			Int("count", len(linked)).
			Strs("keys", linked).
			Msg("Skipping linked attachments outside library storage")
	}
	return pagination.Page[item.Item]{Items: items, Total: total}, nil
}

// Items returns the items of endpoint in order, one page at a time.
func (c *Client) Items(ctx context.Context, endpoint string) iter.Seq2[item.Item, error] {
	return pagination.New[item.Item](c, c.pagination).FetchAll(ctx, endpoint)
}

// ItemsEndpoint returns the endpoint listing the items of a collection.
func ItemsEndpoint(collectionKey string) string {
	return "collections/" + url.PathEscape(collectionKey) + "/items"
}
