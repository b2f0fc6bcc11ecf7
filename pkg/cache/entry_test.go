package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEntry_Expiry(t *testing.T) {
	tests := []struct {
		name        string
		expires     time.Time
		wantExpired bool
		wantTTL     time.Duration
	}{
		{"expired an hour ago", time.Now().Add(-time.Hour), true, 0},
		{"just expired", time.Now().Add(-time.Second), true, 0},
		{"five minutes left", time.Now().Add(5 * time.Minute), false, 5 * time.Minute},
		{"an hour left", time.Now().Add(time.Hour), false, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			assert.Equal(t, tt.wantExpired, entry.IsExpired())
			assert.InDelta(t, float64(tt.wantTTL), float64(entry.TTL()), float64(time.Second))
		})
	}
}

func TestCacheEntry_Size(t *testing.T) {
	entry := &CacheEntry{
		Data:    []byte("0123456789"),
		ETag:    `"ab"`,
		Headers: http.Header{"Total-Results": []string{"42"}},
	}
	// 10 data + 4 etag + 13 header name + 2 header value
	assert.Equal(t, 29, entry.Size())
	assert.Zero(t, (&CacheEntry{}).Size())
}
