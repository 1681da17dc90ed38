package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/types"
)

// IntegrityChecker runs a check-and-fix pass. Implemented by backup.Service.
type IntegrityChecker interface {
	CheckAndFix(ctx context.Context, opts backup.CheckOptions) (*types.IntegrityResult, error)
}

// IntegrityCoordinator periodically repairs records whose photos or track
// went missing on disk.
type IntegrityCoordinator struct {
	checker  IntegrityChecker
	interval time.Duration
	lock     sync.Locker
}

// NewIntegrityCoordinator creates an integrity coordinator.
func NewIntegrityCoordinator(checker IntegrityChecker, interval time.Duration, lock sync.Locker) *IntegrityCoordinator {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &IntegrityCoordinator{
		checker:  checker,
		interval: interval,
		lock:     lock,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first pass waits one full interval so it never races the initial sync.
func (c *IntegrityCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "integrity-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "integrity-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *IntegrityCoordinator) runOnce(ctx context.Context) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if ctx.Err() != nil {
		return
	}

	result, err := c.checker.CheckAndFix(ctx, backup.CheckOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("integrity check failed",
			"component", "worker",
			"worker", "integrity-coordinator",
			"action", "check_failed",
			"error", err,
		)
		return
	}

	if len(result.Issues) > 0 {
		slog.Info("integrity check completed",
			"component", "worker",
			"worker", "integrity-coordinator",
			"action", "cycle_complete",
			"checked", result.Checked,
			"issues", len(result.Issues),
			"fixed", result.Fixed,
			"halted", result.Halted,
		)
	}
}
