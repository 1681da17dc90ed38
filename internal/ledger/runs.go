package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/mykrok/internal/types"
)

// Run is the bookkeeping row of one completed, non-dry sync.
type Run struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Candidates        int       `json:"candidates"`
	ActivitiesSynced  int       `json:"activities_synced"`
	ActivitiesNew     int       `json:"activities_new"`
	ActivitiesUpdated int       `json:"activities_updated"`
	PhotosDownloaded  int       `json:"photos_downloaded"`
	RetriesSucceeded  int       `json:"retries_succeeded"`
	RetriesFailed     int       `json:"retries_failed"`
	Errors            int       `json:"errors"`
}

// RunFromResult summarizes a sync result as a run row.
func RunFromResult(r *types.SyncResult) Run {
	return Run{
		RunID:             r.RunID,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		Candidates:        r.Candidates,
		ActivitiesSynced:  r.ActivitiesSynced,
		ActivitiesNew:     r.ActivitiesNew,
		ActivitiesUpdated: r.ActivitiesUpdated,
		PhotosDownloaded:  r.PhotosDownloaded,
		RetriesSucceeded:  r.RetriesSucceeded,
		RetriesFailed:     r.RetriesFailed,
		Errors:            len(r.Errors),
	}
}

// RecentRuns returns up to limit runs, most recent first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, candidates, activities_synced, activities_new,
		       activities_updated, photos_downloaded, retries_succeeded, retries_failed, errors
		FROM sync_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Candidates, &r.ActivitiesSynced, &r.ActivitiesNew,
			&r.ActivitiesUpdated, &r.PhotosDownloaded, &r.RetriesSucceeded, &r.RetriesFailed, &r.Errors); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func writeRun(ctx context.Context, db execer, r Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_runs (run_id, started_at, finished_at, candidates, activities_synced, activities_new,
			activities_updated, photos_downloaded, retries_succeeded, retries_failed, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Candidates, r.ActivitiesSynced, r.ActivitiesNew,
		r.ActivitiesUpdated, r.PhotosDownloaded, r.RetriesSucceeded, r.RetriesFailed, r.Errors)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}
	return nil
}
