package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldRetry(tt.errorClass))
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				Service:    "zotero",
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection refused"),
			},
			expected: "zotero server error (status 500): internal server error: connection refused",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				Service:    "anythingllm",
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "not found",
			},
			expected: "anythingllm client error (status 404): not found",
		},
		{
			name: "unnamed service",
			apiError: &APIError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "slow down",
			},
			expected: "api rate_limit error (status 429): slow down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.apiError, tt.expected)
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Err: wrappedErr}

	assert.ErrorIs(t, apiError, wrappedErr)
	assert.NoError(t, (&APIError{}).Unwrap())
}

func TestAPIError_FailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want failure.Kind
	}{
		{"not found", &APIError{StatusCode: 404, ErrorClass: ErrorClassClient}, failure.KindNotFound},
		{"conflict", &APIError{StatusCode: 409, ErrorClass: ErrorClassClient}, failure.KindDuplicate},
		{"too large", &APIError{StatusCode: 413, ErrorClass: ErrorClassClient}, failure.KindTooLarge},
		{"rate limited", &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}, failure.KindRateLimited},
		{"bad request", &APIError{StatusCode: 400, ErrorClass: ErrorClassClient}, failure.KindStatus},
		{"server", &APIError{StatusCode: 502, ErrorClass: ErrorClassServer}, failure.KindStatus},
		{"network", &APIError{ErrorClass: ErrorClassNetwork, Err: errors.New("connection reset")}, failure.KindTransport},
		{"network timeout", &APIError{ErrorClass: ErrorClassNetwork, Err: context.DeadlineExceeded}, failure.KindTimeout},
		{"cancelled", &APIError{ErrorClass: ErrorClassNetwork, Err: context.Canceled}, failure.KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failure.KindOf(tt.err))
		})
	}
}

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name        string
		resp        *http.Response
		wantErr     bool
		wantClass   ErrorClass
		wantMessage string
	}{
		{"ok", response(200, "{}", nil), false, "", ""},
		{"not modified", response(304, "", nil), false, "", ""},
		{"json error field", response(400, `{"success":false,"error":"No valid api key found."}`, nil), true, ErrorClassClient, "No valid api key found."},
		{"json message field", response(404, `{"message":"Workspace not found"}`, nil), true, ErrorClassClient, "Workspace not found"},
		{"plain text", response(403, "Invalid key", nil), true, ErrorClassClient, "Invalid key"},
		{"html falls back to status", response(502, "<html>bad gateway</html>", nil), true, ErrorClassServer, "Bad Gateway"},
		{"too many requests", response(429, "", nil), true, ErrorClassRateLimit, "Too Many Requests"},
		{"unavailable with retry-after", response(503, "", http.Header{"Retry-After": []string{"5"}}), true, ErrorClassRateLimit, "Service Unavailable"},
		{"unavailable", response(503, "", nil), true, ErrorClassServer, "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckResponse("test", tt.resp)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantClass, apiErr.ErrorClass)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.resp.StatusCode, apiErr.StatusCode)
		})
	}
}

func TestDecodeError(t *testing.T) {
	cause := errors.New("invalid character '<'")
	err := error(&DecodeError{Service: "zotero", Err: cause})

	assert.EqualError(t, err, "decode zotero response: invalid character '<'")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, failure.KindProtocol, failure.KindOf(fmt.Errorf("get items: %w", err)))
}
