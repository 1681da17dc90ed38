package types

import (
	"errors"
	"fmt"
	"time"
)

// Remote failure sentinels. Clients wrap these so callers can classify
// failures with errors.Is without depending on a specific client package.
var (
	ErrRateLimited  = errors.New("remote rate limit exceeded")
	ErrNotFound     = errors.New("remote resource not found")
	ErrInvalid      = errors.New("remote resource invalid")
	ErrTransient    = errors.New("transient remote failure")
	ErrUnauthorized = errors.New("remote authorization failed")
)

// RateLimitError is returned when the remote throttles requests.
// RetryAfter is the server-advised wait, zero when not provided.
type RateLimitError struct {
	RetryAfter time.Duration
	Usage      string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited.Error(), e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRateLimited reports whether err signals remote throttling.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
