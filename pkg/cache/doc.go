// Package cache keeps API responses so repeated page fetches can be answered
// locally or revalidated cheaply.
//
// Entries live in an in-process LRU and, when a Redis client is given, in
// Redis as well, so several ayda processes share them. A Redis hit is copied
// into memory. Entries expire from the Expires header or a fallback TTL.
//
// Revalidation prefers the Zotero library version (If-Modified-Since-Version)
// and falls back to If-None-Match and If-Modified-Since:
//
//	manager, err := cache.NewManager(redisClient, cache.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	key := cache.CacheKey{
//		Service:     "zotero",
//		Endpoint:    "/users/123/collections/ABCD1234/items",
//		QueryParams: url.Values{"start": {"0"}, "limit": {"100"}},
//	}
//	entry, err := manager.Get(ctx, key)
//	if err == nil && cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// on 304, answer with cache.EntryToResponse(entry, req)
//	}
//
// Metrics: ayda_cache_hits_total{layer}, ayda_cache_misses_total,
// ayda_cache_size_bytes{layer}, ayda_cache_errors_total{operation},
// ayda_conditional_requests_total and ayda_304_responses_total.
package cache
