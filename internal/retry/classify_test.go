package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperengineering/mykrok/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureType
	}{
		{"nil", nil, FailureUnknown},
		{"rate limit sentinel", fmt.Errorf("list: %w", types.ErrRateLimited), FailureRateLimited},
		{"rate limit error", &types.RateLimitError{}, FailureRateLimited},
		{"not found", fmt.Errorf("get: %w", types.ErrNotFound), FailureNotFound},
		{"invalid", fmt.Errorf("decode: %w", types.ErrInvalid), FailureNotFound},
		{"transient", fmt.Errorf("get: %w", types.ErrTransient), FailureTransient},
		{"deadline", context.DeadlineExceeded, FailureTransient},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, FailureTransient},
		{"plain", errors.New("disk full"), FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestParseFailureType(t *testing.T) {
	assert.Equal(t, FailureTransient, ParseFailureType("transient"))
	assert.Equal(t, FailureUnknown, ParseFailureType("bogus"))
}
