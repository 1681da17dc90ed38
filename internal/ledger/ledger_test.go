package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/state"
	"github.com/hyperengineering/mykrok/internal/types"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "athl=alice", "sync.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestOpen_EmptyLedgerLoadsDefaults(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	s, err := l.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.SyncState{}, s)

	q, err := l.LoadRetryQueue(ctx, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
}

func TestSyncState_RoundTrip(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	lastActivity := t0.Add(-2 * time.Hour)
	s := state.SyncState{LastSync: &t0, LastActivityDate: &lastActivity, TotalActivities: 12, LastRunID: "run-1"}
	require.NoError(t, l.SaveSyncState(ctx, s))

	got, err := l.LoadSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	require.NotNil(t, got.LastActivityDate)
	assert.True(t, got.LastSync.Equal(t0))
	assert.True(t, got.LastActivityDate.Equal(lastActivity))
	assert.Equal(t, 12, got.TotalActivities)
	assert.Equal(t, "run-1", got.LastRunID)

	// Overwrite, not merge.
	require.NoError(t, l.SaveSyncState(ctx, state.SyncState{TotalActivities: 1}))
	got, err = l.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.LastSync)
	assert.Equal(t, 1, got.TotalActivities)
}

func TestRetryQueue_RoundTrip(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	policy := retry.DefaultPolicy()

	q := retry.NewQueue(policy)
	q.AddFailure(1, fmt.Errorf("fetch: %w", types.ErrTransient), t0)
	q.AddFailure(2, fmt.Errorf("fetch: %w", types.ErrNotFound), t0)
	for i := 0; i < policy.MaxRetries+1; i++ {
		q.AddFailure(3, fmt.Errorf("fetch: %w", types.ErrTransient), t0)
	}
	require.NoError(t, l.SaveRetryQueue(ctx, q))

	got, err := l.LoadRetryQueue(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
	assert.Equal(t, 2, got.PendingCount())

	e, ok := got.Get(2)
	require.True(t, ok)
	assert.Equal(t, retry.FailureNotFound, e.FailureType)
	require.NotNil(t, e.NextRetryAfter)
	assert.True(t, e.NextRetryAfter.Equal(t0.Add(policy.BaseDelay)))

	perm, ok := got.Get(3)
	require.True(t, ok)
	assert.True(t, perm.PermanentlyFailed())
	assert.Equal(t, policy.MaxRetries+1, perm.RetryCount)

	// Removing an entry and saving again drops it from storage.
	got.Remove(1)
	require.NoError(t, l.SaveRetryQueue(ctx, got))
	again, err := l.LoadRetryQueue(ctx, policy)
	require.NoError(t, err)
	assert.False(t, again.Has(1))
	assert.Equal(t, 2, again.Len())
}

func TestCommit_WritesStateQueueAndRun(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	q := retry.NewQueue(retry.DefaultPolicy())
	q.AddFailure(9, fmt.Errorf("x: %w", types.ErrTransient), t0)
	s := state.SyncState{LastSync: &t0, TotalActivities: 3, LastRunID: "run-2"}
	run := RunFromResult(&types.SyncResult{
		RunID:            "run-2",
		StartedAt:        t0,
		FinishedAt:       t0.Add(time.Minute),
		ActivitiesSynced: 3,
		Errors:           []types.SyncError{{ActivityID: 9}},
	})

	require.NoError(t, l.Commit(ctx, s, q, &run))

	gotState, err := l.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", gotState.LastRunID)
	gotQueue, err := l.LoadRetryQueue(ctx, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, gotQueue.Has(9))

	runs, err := l.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].ActivitiesSynced)
	assert.Equal(t, 1, runs[0].Errors)
}

func TestRecentRuns_OrdersSubSecondStarts(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	q := retry.NewQueue(retry.DefaultPolicy())
	early := t0.Add(5 * time.Second)
	late := early.Add(500 * time.Millisecond)
	for _, r := range []Run{
		{RunID: "late", StartedAt: late, FinishedAt: late.Add(time.Second)},
		{RunID: "early", StartedAt: early, FinishedAt: early.Add(time.Second)},
	} {
		run := r
		require.NoError(t, l.Commit(ctx, state.SyncState{LastRunID: run.RunID}, q, &run))
	}

	runs, err := l.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "late", runs[0].RunID)
	assert.Equal(t, "early", runs[1].RunID)
	assert.True(t, runs[0].StartedAt.Equal(late))
	assert.True(t, runs[1].StartedAt.Equal(early))
}

func TestCommit_CanceledContextLeavesPreviousPair(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.SaveSyncState(ctx, state.SyncState{TotalActivities: 1, LastRunID: "old"}))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	q := retry.NewQueue(retry.DefaultPolicy())
	q.AddFailure(5, fmt.Errorf("x: %w", types.ErrTransient), t0)
	err := l.Commit(canceled, state.SyncState{TotalActivities: 2, LastRunID: "new"}, q, nil)
	require.Error(t, err)

	s, err := l.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", s.LastRunID)
	gotQueue, err := l.LoadRetryQueue(ctx, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 0, gotQueue.Len())
}

func TestOpenReadOnly_MissingDoesNotCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "athl=bob", "sync.db")

	l, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer l.Close()

	assert.True(t, l.ReadOnly())
	s, err := l.LoadSyncState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.LastActivityDate)
	assert.ErrorIs(t, l.SaveSyncState(context.Background(), s), ErrReadOnly)

	_, statErr := os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenReadOnly_ExistingIsUnchanged(t *testing.T) {
	l, path := openTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.SaveSyncState(ctx, state.SyncState{TotalActivities: 4}))
	require.NoError(t, l.Close())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	s, err := ro.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalActivities)
	assert.ErrorIs(t, ro.Commit(ctx, s, retry.NewQueue(retry.DefaultPolicy()), nil), ErrReadOnly)
	require.NoError(t, ro.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpen_Reopen(t *testing.T) {
	l, path := openTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.SaveSyncState(ctx, state.SyncState{TotalActivities: 7}))
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	s, err := reopened.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, s.TotalActivities)
}
