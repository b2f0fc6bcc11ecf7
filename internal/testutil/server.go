package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewJSONServer starts a server answering every request with status and
// body. It is closed when the test ends.
func NewJSONServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
