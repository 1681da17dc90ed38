package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/hyperengineering/mykrok/internal/types"
)

// FailureType is the category a processing failure is classified into.
type FailureType string

const (
	FailureRateLimited FailureType = "rate_limited"
	FailureTransient   FailureType = "transient"
	FailureNotFound    FailureType = "not_found"
	FailureUnknown     FailureType = "unknown"
)

// ParseFailureType maps a persisted value back to a FailureType.
// Unrecognized values fall into FailureUnknown.
func ParseFailureType(s string) FailureType {
	switch FailureType(s) {
	case FailureRateLimited, FailureTransient, FailureNotFound:
		return FailureType(s)
	default:
		return FailureUnknown
	}
}

// Classify buckets err into a FailureType.
func Classify(err error) FailureType {
	if err == nil {
		return FailureUnknown
	}

	switch {
	case errors.Is(err, types.ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrInvalid):
		return FailureNotFound
	case errors.Is(err, types.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return FailureTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureTransient
	}

	return FailureUnknown
}
