package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey represents a unique identifier for a cached response.
type CacheKey struct {
	// Service is the API the response came from (e.g., "zotero")
	Service string

	// Endpoint is the request path (e.g., "/users/123/collections/ABCD1234/items")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"start": "0", "limit": "100"})
	QueryParams url.Values

	// Scope separates responses that differ by credential (empty for public data)
	Scope string
}

// String generates a deterministic cache key string.
// Format: ayda:service:endpoint:query1=val1:query2=val2:scope=xyz
//
// Example:
//
//	ayda:zotero:users/123/collections:limit=100:start=0
func (k CacheKey) String() string {
	parts := []string{"ayda"}

	if k.Service != "" {
		parts = append(parts, k.Service)
	}

	// Add endpoint (normalize path)
	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}
