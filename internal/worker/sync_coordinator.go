package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/types"
)

// Syncer runs one incremental sync. Implemented by backup.Service.
type Syncer interface {
	Sync(ctx context.Context, opts backup.SyncOptions) (*types.SyncResult, error)
}

// RunStatus describes the most recent scheduled pass.
type RunStatus struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Result     *types.SyncResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// SyncCoordinator runs an incremental sync on a fixed interval.
type SyncCoordinator struct {
	syncer   Syncer
	interval time.Duration
	lock     sync.Locker

	mu   sync.Mutex
	last *RunStatus
}

// NewSyncCoordinator creates a sync coordinator. lock serializes passes
// against the same archive and may be shared with other coordinators.
func NewSyncCoordinator(syncer Syncer, interval time.Duration, lock sync.Locker) *SyncCoordinator {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &SyncCoordinator{
		syncer:   syncer,
		interval: interval,
		lock:     lock,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Sync immediately on start
	c.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

// Last returns the status of the most recent pass, or nil before the first one.
func (c *SyncCoordinator) Last() *RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	cp := *c.last
	return &cp
}

func (c *SyncCoordinator) runOnce(ctx context.Context) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if ctx.Err() != nil {
		return
	}

	status := &RunStatus{StartedAt: time.Now().UTC()}
	result, err := c.syncer.Sync(ctx, backup.SyncOptions{})
	status.FinishedAt = time.Now().UTC()
	status.Result = result

	switch {
	case err != nil && ctx.Err() != nil:
		return // Graceful shutdown, don't record as failure
	case err != nil:
		status.Error = err.Error()
		slog.Error("scheduled sync failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_failed",
			"error", err,
		)
	default:
		slog.Info("scheduled sync completed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "cycle_complete",
			"run_id", result.RunID,
			"synced", result.ActivitiesSynced,
			"errors", len(result.Errors),
			"duration_ms", status.FinishedAt.Sub(status.StartedAt).Milliseconds(),
		)
	}

	c.mu.Lock()
	c.last = status
	c.mu.Unlock()
}
