package failure

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
)

// Kinded is implemented by errors that know their own failure kind.
type Kinded interface {
	FailureKind() Kind
}

// KindOf classifies err. Errors implementing Kinded anywhere in the chain
// win; otherwise well-known standard library conditions are mapped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindIO
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}

	return KindUnknown
}

// As is errors.As, re-exported so callers classifying failures need one import.
func As(err error, target any) bool {
	return errors.As(err, target)
}
