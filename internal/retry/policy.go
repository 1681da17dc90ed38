package retry

import (
	"fmt"
	"math"
	"time"
)

// Policy controls backoff scheduling and the permanent-failure ceiling.
type Policy struct {
	BaseDelay    time.Duration
	GrowthFactor float64
	MaxDelay     time.Duration
	// MaxRetries is the ceiling: an entry whose retry count exceeds it is
	// permanently failed.
	MaxRetries int
}

// DefaultPolicy returns the policy used when configuration does not override it.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:    15 * time.Minute,
		GrowthFactor: 2,
		MaxDelay:     24 * time.Hour,
		MaxRetries:   5,
	}
}

// Validate checks that the policy produces non-decreasing, bounded delays.
func (p Policy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive, got %s", p.BaseDelay)
	}
	if p.GrowthFactor < 1 {
		return fmt.Errorf("retry growth factor must be >= 1, got %g", p.GrowthFactor)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay)
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("retry max retries must be >= 1, got %d", p.MaxRetries)
	}
	return nil
}

// Delay returns base * growth^(retryCount-1), capped at MaxDelay.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.GrowthFactor, float64(retryCount-1))
	if math.IsInf(d, 0) || d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
