package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/mykrok/internal/ledger"
	"github.com/hyperengineering/mykrok/internal/metrics"
	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/state"
	"github.com/hyperengineering/mykrok/internal/types"
)

// SyncOptions are the caller-supplied parameters of one sync.
type SyncOptions struct {
	// Full ignores the stored cursor and fetches the entire history.
	Full   bool
	After  *time.Time
	Before *time.Time
	// Limit caps the number of candidates fetched. Zero means no limit.
	Limit int
	// ActivityIDs restricts processing to the listed records when non-empty.
	ActivityIDs []int64
	DryRun      bool
}

// Sync reconciles the remote collection against the archive. It returns a
// result even when individual records failed; an error is returned only when
// the run itself could not proceed, in which case nothing is committed.
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (*types.SyncResult, error) {
	result := &types.SyncResult{
		RunID:     s.newRunID(),
		DryRun:    opts.DryRun,
		StartedAt: s.now().UTC(),
		Records:   []types.RecordReport{},
		Errors:    []types.SyncError{},
	}

	err := s.sync(ctx, opts, result)
	result.FinishedAt = s.now().UTC()

	switch {
	case err != nil:
		metrics.SyncRuns.WithLabelValues("error").Inc()
		s.logger.Error("sync failed", "run_id", result.RunID, "athlete", result.Athlete, "error", err)
		return result, err
	case opts.DryRun:
		metrics.SyncRuns.WithLabelValues("dry_run").Inc()
	default:
		metrics.SyncRuns.WithLabelValues("ok").Inc()
	}

	s.logger.Info("sync completed",
		"run_id", result.RunID,
		"athlete", result.Athlete,
		"dry_run", result.DryRun,
		"candidates", result.Candidates,
		"synced", result.ActivitiesSynced,
		"new", result.ActivitiesNew,
		"updated", result.ActivitiesUpdated,
		"photos", result.PhotosDownloaded,
		"errors", len(result.Errors),
		"pending_retries", result.PendingRetries,
	)
	return result, nil
}

func (s *Service) sync(ctx context.Context, opts SyncOptions, result *types.SyncResult) error {
	owner, err := s.resolveOwner(ctx)
	if err != nil {
		return fmt.Errorf("resolve athlete: %w", err)
	}
	result.Athlete = owner

	led, err := s.openLedger(owner, opts.DryRun)
	if err != nil {
		return err
	}
	defer led.Close()

	st, err := led.LoadSyncState(ctx)
	if err != nil {
		return err
	}
	queue, err := led.LoadRetryQueue(ctx, s.cfg.Policy)
	if err != nil {
		return err
	}

	// WINDOW_COMPUTED
	now := s.now().UTC()
	result.Window = state.ComputeWindow(st, state.WindowRequest{
		Full:   opts.Full,
		After:  opts.After,
		Before: opts.Before,
	}, now)
	s.reporter.Report(LevelSummary, fmt.Sprintf("Syncing %s%s", owner, describeWindow(result.Window)))

	// CANDIDATES_FETCHED
	summaries, err := s.remote.ListActivities(ctx, result.Window, opts.Limit)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	allow := allowList(opts.ActivityIDs)
	candidates := make([]types.ActivitySummary, 0, len(summaries))
	fetched := make(map[int64]bool, len(summaries))
	for _, sum := range summaries {
		if allow != nil && !allow[sum.ID] {
			continue
		}
		if fetched[sum.ID] {
			continue
		}
		fetched[sum.ID] = true
		candidates = append(candidates, sum)
	}
	result.Candidates = len(candidates)

	var due []retry.Entry
	for _, e := range queue.DueRetries(now) {
		if fetched[e.RecordID] {
			continue
		}
		if allow != nil && !allow[e.RecordID] {
			continue
		}
		due = append(due, e)
	}

	s.reporter.Report(LevelSummary, fmt.Sprintf("Found %d activities, %d due for retry", len(candidates), len(due)))

	// PROCESSING
	var maxSeen *time.Time
	var written []string
	for i, sum := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sum.StartDate.IsZero() && (maxSeen == nil || sum.StartDate.After(*maxSeen)) {
			t := sum.StartDate
			maxSeen = &t
		}
		s.reporter.Report(LevelRecord, fmt.Sprintf("[%d/%d] %s", i+1, len(candidates), describeSummary(sum)))
		written = append(written, s.runRecord(ctx, owner, sum.ID, queue, opts.DryRun, false, result)...)
	}

	// RETRY_PASS
	if !opts.DryRun {
		for _, e := range due {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.reporter.Report(LevelRecord, fmt.Sprintf("Retrying activity %d (attempt %d)", e.RecordID, e.RetryCount+1))
			written = append(written, s.runRecord(ctx, owner, e.RecordID, queue, false, true, result)...)
		}
	}

	result.PendingRetries = queue.PendingCount()
	if opts.DryRun {
		return nil
	}

	// FINALIZED
	if err := ctx.Err(); err != nil {
		return err
	}
	written = append(written, s.finalize(ctx, owner)...)

	st.Advance(now, maxSeen, result.ActivitiesSynced, result.RunID)
	result.FinishedAt = s.now().UTC()
	run := ledger.RunFromResult(result)
	if err := led.Commit(ctx, st, queue, &run); err != nil {
		return fmt.Errorf("commit sync ledger: %w", err)
	}

	metrics.RetryQueuePending.WithLabelValues(owner).Set(float64(result.PendingRetries))
	if st.LastSync != nil {
		metrics.LastSyncTimestamp.WithLabelValues(owner).Set(float64(st.LastSync.Unix()))
	}

	result.MirroredFiles = s.mirrorFiles(ctx, written)
	return nil
}

// runRecord processes one record and applies its outcome to the queue and
// result. It returns the files written for the record.
func (s *Service) runRecord(ctx context.Context, owner string, id int64, queue *retry.Queue, dryRun, retryPass bool, result *types.SyncResult) []string {
	queued := queue.Has(id)
	out := s.processRecord(ctx, owner, id, dryRun)

	report := types.RecordReport{
		ActivityID: id,
		Retry:      retryPass,
		Warnings:   out.warnings(),
	}
	if out.activity != nil {
		report.Name = out.activity.Name
		report.Session = out.key
	}
	for _, w := range report.Warnings {
		s.reporter.Report(LevelRecord, "  warning: "+w)
	}
	for _, st := range out.steps {
		if st.outcome == stepDegraded {
			metrics.StepsDegraded.WithLabelValues(st.step).Inc()
			s.logger.Warn("optional step failed", "activity_id", id, "step", st.step, "error", st.err)
		}
	}

	if f := out.failure(); f != nil {
		report.Status = types.StatusFailed
		result.Records = append(result.Records, report)
		metrics.RecordsProcessed.WithLabelValues(types.StatusFailed).Inc()

		// Dry runs classify without touching the queue.
		if dryRun {
			result.Errors = append(result.Errors, types.SyncError{
				ActivityID:  id,
				Error:       f.err.Error(),
				FailureType: string(retry.Classify(f.err)),
				Warnings:    report.Warnings,
			})
			s.reporter.Report(LevelRecord, fmt.Sprintf("  failed: %v", f.err))
			return nil
		}

		entry := queue.AddFailure(id, f.err, s.now().UTC())
		if queued {
			result.RetriesFailed++
		}
		result.Errors = append(result.Errors, types.SyncError{
			ActivityID:     id,
			Error:          f.err.Error(),
			FailureType:    string(entry.FailureType),
			RetryCount:     entry.RetryCount,
			NextRetryAfter: entry.NextRetryAfter,
			Warnings:       report.Warnings,
		})
		s.logger.Warn("record failed",
			"activity_id", id,
			"step", f.step,
			"failure_type", entry.FailureType,
			"retry_count", entry.RetryCount,
			"permanent", entry.PermanentlyFailed(),
			"error", f.err,
		)
		s.reporter.Report(LevelRecord, fmt.Sprintf("  failed (%s, attempt %d): %v", entry.FailureType, entry.RetryCount, f.err))
		return out.written
	}

	if out.isNew {
		report.Status = types.StatusNew
		result.ActivitiesNew++
	} else {
		report.Status = types.StatusUpdate
		result.ActivitiesUpdated++
	}
	result.ActivitiesSynced++
	result.PhotosDownloaded += out.photos
	result.Records = append(result.Records, report)
	metrics.RecordsProcessed.WithLabelValues(report.Status).Inc()

	if !dryRun && queue.Remove(id) {
		result.RetriesSucceeded++
	}
	s.reporter.Report(LevelDetail, fmt.Sprintf("  %s %s", report.Status, out.key))
	return out.written
}

// finalize refreshes the gear catalog, the summary and the data-directory
// athlete index. Failures are logged only. Returned paths are candidates for
// mirroring.
func (s *Service) finalize(ctx context.Context, owner string) []string {
	var written []string

	gear, err := s.remote.GetGear(ctx)
	if err != nil {
		s.logger.Warn("gear refresh failed", "athlete", owner, "error", err)
	} else if path, err := s.archive.SaveGear(owner, gear); err != nil {
		s.logger.Warn("gear save failed", "athlete", owner, "error", err)
	} else {
		written = append(written, path)
	}

	path, err := s.archive.RegenerateSummary(owner)
	if err != nil {
		s.logger.Warn("summary regeneration failed", "athlete", owner, "error", err)
	} else {
		written = append(written, path)
	}

	if path, err := s.archive.RegenerateAthletes(); err != nil {
		s.logger.Warn("athlete index regeneration failed", "error", err)
	} else {
		written = append(written, path)
	}
	return written
}

// mirrorFiles uploads written files to the mirror. Failures are counted and
// logged but never fail the run.
func (s *Service) mirrorFiles(ctx context.Context, paths []string) int {
	if !s.mirror.Enabled() {
		return 0
	}
	seen := make(map[string]bool, len(paths))
	uploaded := 0
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		rel, err := s.archive.RelPath(p)
		if err != nil {
			s.logger.Warn("mirror skipped", "path", p, "error", err)
			continue
		}
		if err := s.mirror.Upload(ctx, rel, p); err != nil {
			metrics.MirrorUploads.WithLabelValues("error").Inc()
			s.logger.Warn("mirror upload failed", "path", rel, "error", err)
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}
		metrics.MirrorUploads.WithLabelValues("ok").Inc()
		uploaded++
	}
	if uploaded > 0 {
		s.reporter.Report(LevelSummary, fmt.Sprintf("Mirrored %d files", uploaded))
	}
	return uploaded
}

// openLedger opens the owner's ledger. Dry runs never create it.
func (s *Service) openLedger(owner string, dryRun bool) (*ledger.Ledger, error) {
	path := s.archive.LedgerPath(owner)
	if dryRun {
		return ledger.OpenReadOnly(path)
	}
	return ledger.Open(path)
}

func allowList(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func describeWindow(w types.SyncWindow) string {
	switch {
	case w.After != nil && w.Before != nil:
		return fmt.Sprintf(" from %s to %s", w.After.Format(time.RFC3339), w.Before.Format(time.RFC3339))
	case w.After != nil:
		return fmt.Sprintf(" since %s", w.After.Format(time.RFC3339))
	case w.Before != nil:
		return fmt.Sprintf(" before %s", w.Before.Format(time.RFC3339))
	default:
		return " (full history)"
	}
}

func describeSummary(sum types.ActivitySummary) string {
	date := sum.StartDate.UTC().Format("2006-01-02")
	if sum.Name == "" {
		return fmt.Sprintf("%s activity %d", date, sum.ID)
	}
	return fmt.Sprintf("%s %s", date, sum.Name)
}
