package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/richardjlyon/ayda/pkg/failure"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// DecodeError is a success response whose body could not be decoded.
type DecodeError struct {
	Service string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Service, e.Err)
}

// Unwrap returns the decoder error.
func (e *DecodeError) Unwrap() error { return e.Err }

// FailureKind reports a protocol failure.
func (e *DecodeError) FailureKind() failure.Kind { return failure.KindProtocol }

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// APIError is a non-success response from a remote service.
type APIError struct {
	Service    string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	service := e.Service
	if service == "" {
		service = "api"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (status %d): %s: %v",
			service, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error (status %d): %s",
		service, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// FailureKind maps the response onto a failure kind.
func (e *APIError) FailureKind() failure.Kind {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return failure.KindNotFound
	case e.StatusCode == http.StatusConflict:
		return failure.KindDuplicate
	case e.StatusCode == http.StatusRequestEntityTooLarge:
		return failure.KindTooLarge
	case e.ErrorClass == ErrorClassRateLimit:
		return failure.KindRateLimited
	case e.ErrorClass == ErrorClassNetwork:
		if k := failure.KindOf(e.Err); k == failure.KindTimeout || k == failure.KindCancelled {
			return k
		}
		return failure.KindTransport
	default:
		return failure.KindStatus
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus returns the error class of an HTTP response.
func classifyStatus(resp *http.Response) ErrorClass {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "":
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// CheckResponse returns nil for 2xx and 3xx responses. Otherwise it
// consumes and closes the body and returns an *APIError.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(body))

	return &APIError{
		Service:    service,
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp),
		Message:    errorMessage(resp, body),
		Body:       text,
	}
}

// errorMessage prefers an "error" or "message" field from a JSON body,
// then a short plain-text body, then the status line.
func errorMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if text != "" && len(text) <= 200 && !strings.ContainsAny(text, "{<") {
		return text
	}
	return resp.Status
}
