package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/state"
)

// LoadSyncState returns the stored cursor, or the zero value when none exists.
func (l *Ledger) LoadSyncState(ctx context.Context) (state.SyncState, error) {
	if l.db == nil {
		return state.SyncState{}, nil
	}

	var (
		lastSync, lastActivity sql.NullString
		s                      state.SyncState
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT last_sync, last_activity_date, total_activities, last_run_id
		FROM sync_state WHERE id = 1
	`).Scan(&lastSync, &lastActivity, &s.TotalActivities, &s.LastRunID)
	if errors.Is(err, sql.ErrNoRows) {
		return state.SyncState{}, nil
	}
	if err != nil {
		return state.SyncState{}, fmt.Errorf("load sync state: %w", err)
	}

	if s.LastSync, err = parseTimePtr(lastSync); err != nil {
		return state.SyncState{}, fmt.Errorf("load sync state: %w", err)
	}
	if s.LastActivityDate, err = parseTimePtr(lastActivity); err != nil {
		return state.SyncState{}, fmt.Errorf("load sync state: %w", err)
	}
	return s, nil
}

// LoadRetryQueue returns the stored queue, or an empty one when none exists.
func (l *Ledger) LoadRetryQueue(ctx context.Context, policy retry.Policy) (*retry.Queue, error) {
	if l.db == nil {
		return retry.NewQueue(policy), nil
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT record_id, retry_count, failure_type, last_error, next_retry_after, first_failed_at, last_failed_at
		FROM retry_queue ORDER BY record_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load retry queue: %w", err)
	}
	defer rows.Close()

	var entries []retry.Entry
	for rows.Next() {
		var (
			e                  retry.Entry
			failureType        string
			next               sql.NullString
			firstFailed, lastF string
		)
		if err := rows.Scan(&e.RecordID, &e.RetryCount, &failureType, &e.LastError, &next, &firstFailed, &lastF); err != nil {
			return nil, fmt.Errorf("scan retry entry: %w", err)
		}
		e.FailureType = retry.ParseFailureType(failureType)
		if e.NextRetryAfter, err = parseTimePtr(next); err != nil {
			return nil, fmt.Errorf("retry entry %d: %w", e.RecordID, err)
		}
		if e.FirstFailedAt, err = parseTime(firstFailed); err != nil {
			return nil, fmt.Errorf("retry entry %d: %w", e.RecordID, err)
		}
		if e.LastFailedAt, err = parseTime(lastF); err != nil {
			return nil, fmt.Errorf("retry entry %d: %w", e.RecordID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load retry queue: %w", err)
	}
	return retry.Restore(policy, entries), nil
}

// SaveSyncState overwrites the stored cursor.
func (l *Ledger) SaveSyncState(ctx context.Context, s state.SyncState) error {
	if err := l.writable(); err != nil {
		return err
	}
	return writeSyncState(ctx, l.db, s)
}

// SaveRetryQueue replaces the stored queue with q.
func (l *Ledger) SaveRetryQueue(ctx context.Context, q *retry.Queue) error {
	if err := l.writable(); err != nil {
		return err
	}
	return l.inTx(ctx, func(tx *sql.Tx) error {
		return writeRetryQueue(ctx, tx, q)
	})
}

// Commit writes the cursor, the queue and, when run is non-nil, the run
// record in one transaction. Either all of them change or none does.
func (l *Ledger) Commit(ctx context.Context, s state.SyncState, q *retry.Queue, run *Run) error {
	if err := l.writable(); err != nil {
		return err
	}
	return l.inTx(ctx, func(tx *sql.Tx) error {
		if err := writeSyncState(ctx, tx, s); err != nil {
			return err
		}
		if err := writeRetryQueue(ctx, tx, q); err != nil {
			return err
		}
		if run != nil {
			return writeRun(ctx, tx, *run)
		}
		return nil
	})
}

func writeSyncState(ctx context.Context, db execer, s state.SyncState) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_sync, last_activity_date, total_activities, last_run_id, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_sync = excluded.last_sync,
			last_activity_date = excluded.last_activity_date,
			total_activities = excluded.total_activities,
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at
	`, formatTimePtr(s.LastSync), formatTimePtr(s.LastActivityDate), s.TotalActivities, s.LastRunID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

func writeRetryQueue(ctx context.Context, db execer, q *retry.Queue) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM retry_queue"); err != nil {
		return fmt.Errorf("clear retry queue: %w", err)
	}
	for _, e := range q.Entries() {
		_, err := db.ExecContext(ctx, `
			INSERT INTO retry_queue (record_id, retry_count, failure_type, last_error, next_retry_after, first_failed_at, last_failed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.RecordID, e.RetryCount, string(e.FailureType), e.LastError, formatTimePtr(e.NextRetryAfter), formatTime(e.FirstFailedAt), formatTime(e.LastFailedAt))
		if err != nil {
			return fmt.Errorf("save retry entry %d: %w", e.RecordID, err)
		}
	}
	return nil
}
