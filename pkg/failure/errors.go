// Package failure defines the error taxonomy shared by the import pipeline.
//
// Each boundary of the pipeline reports one error type:
//
//	FetchError     paginated retrieval failed (fatal to the run)
//	UploadError    a single item could not be uploaded (recorded, never propagated)
//	EmbedError     the batch embed call failed (fatal to embedding only)
//	LogWriteError  the failure log could not be written (non-fatal)
//
// All of them carry a machine-readable Kind and a human-readable message.
package failure

import (
	"fmt"
)

// Kind classifies the cause of a failure.
type Kind string

// Failure kinds.
const (
	KindTransport   Kind = "transport"
	KindStatus      Kind = "status"
	KindRateLimited Kind = "rate_limited"
	KindProtocol    Kind = "protocol"
	KindNotFound    Kind = "not_found"
	KindDuplicate   Kind = "duplicate"
	KindTooLarge    Kind = "too_large"
	KindTimeout     Kind = "timeout"
	KindCancelled   Kind = "cancelled"
	KindIO          Kind = "io"
	KindUnknown     Kind = "unknown"
)

// FetchError is returned when a page of the source collection cannot be retrieved.
type FetchError struct {
	Kind     Kind
	Endpoint string
	Offset   int
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s error at offset %d of %q: %s", e.Kind, e.Offset, e.Endpoint, e.Message)
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error { return e.Err }

// FailureKind reports the failure kind.
func (e *FetchError) FailureKind() Kind { return e.Kind }

// UploadError describes why a single item could not be uploaded.
type UploadError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("upload %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("upload %s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UploadError) Unwrap() error { return e.Err }

// FailureKind reports the failure kind.
func (e *UploadError) FailureKind() Kind { return e.Kind }

// EmbedError is returned when the batch embed call fails.
type EmbedError struct {
	Kind      Kind
	Workspace string
	Handles   int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *EmbedError) Error() string {
	msg := fmt.Sprintf("embed %s error for workspace %q (%d documents): %s", e.Kind, e.Workspace, e.Handles, e.Message)
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *EmbedError) Unwrap() error { return e.Err }

// FailureKind reports the failure kind.
func (e *EmbedError) FailureKind() Kind { return e.Kind }

// LogWriteError is returned when the failure log cannot be persisted.
type LogWriteError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LogWriteError) Error() string {
	return fmt.Sprintf("failure log %s: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LogWriteError) Unwrap() error { return e.Err }

// FailureKind reports the failure kind.
func (e *LogWriteError) FailureKind() Kind { return KindIO }

// Upload wraps err as an UploadError, classifying it with KindOf.
// An err that already is an UploadError is returned unchanged.
func Upload(err error) *UploadError {
	if err == nil {
		return nil
	}
	var ue *UploadError
	if As(err, &ue) {
		return ue
	}
	return &UploadError{Kind: KindOf(err), Message: err.Error(), Err: err}
}

// Embed wraps err as an EmbedError for workspace.
func Embed(err error, workspace string, handles int) *EmbedError {
	if err == nil {
		return nil
	}
	var ee *EmbedError
	if As(err, &ee) {
		if ee.Workspace == "" {
			ee.Workspace = workspace
		}
		if ee.Handles == 0 {
			ee.Handles = handles
		}
		return ee
	}
	return &EmbedError{Kind: KindOf(err), Workspace: workspace, Handles: handles, Message: err.Error(), Err: err}
}

// Fetch wraps err as a FetchError for the page at offset of endpoint.
func Fetch(err error, endpoint string, offset int) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if As(err, &fe) {
		if fe.Endpoint == "" {
			fe.Endpoint = endpoint
		}
		return fe
	}
	return &FetchError{Kind: KindOf(err), Endpoint: endpoint, Offset: offset, Message: err.Error(), Err: err}
}
