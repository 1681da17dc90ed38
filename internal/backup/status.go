package backup

import (
	"context"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/ledger"
	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/state"
)

// OwnerStatus is a read-only view of an owner's ledger.
type OwnerStatus struct {
	Athlete           string          `json:"athlete"`
	State             state.SyncState `json:"state"`
	PendingRetries    int             `json:"pending_retries"`
	PermanentFailures int             `json:"permanent_failures"`
	Retries           []retry.Entry   `json:"retries"`
	Runs              []ledger.Run    `json:"runs"`
}

// ReadStatus loads an owner's sync state, retry queue and recent runs
// without creating or modifying the ledger.
func ReadStatus(ctx context.Context, arc *archive.Archive, owner string, policy retry.Policy, runs int) (*OwnerStatus, error) {
	if err := archive.ValidateOwner(owner); err != nil {
		return nil, err
	}
	led, err := ledger.OpenReadOnly(arc.LedgerPath(owner))
	if err != nil {
		return nil, err
	}
	defer led.Close()

	st, err := led.LoadSyncState(ctx)
	if err != nil {
		return nil, err
	}
	queue, err := led.LoadRetryQueue(ctx, policy)
	if err != nil {
		return nil, err
	}
	recent, err := led.RecentRuns(ctx, runs)
	if err != nil {
		return nil, err
	}

	entries := queue.Entries()
	status := &OwnerStatus{
		Athlete:        owner,
		State:          st,
		PendingRetries: queue.PendingCount(),
		Retries:        entries,
		Runs:           recent,
	}
	for _, e := range entries {
		if e.PermanentlyFailed() {
			status.PermanentFailures++
		}
	}
	if status.Retries == nil {
		status.Retries = []retry.Entry{}
	}
	if status.Runs == nil {
		status.Runs = []ledger.Run{}
	}
	return status, nil
}

// Status reads the ledger of the authenticated athlete, or of owner when set.
func (s *Service) Status(ctx context.Context, owner string, runs int) (*OwnerStatus, error) {
	owner, err := s.ownerFor(ctx, owner)
	if err != nil {
		return nil, err
	}
	return ReadStatus(ctx, s.archive, owner, s.cfg.Policy, runs)
}
