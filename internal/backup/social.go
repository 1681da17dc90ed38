package backup

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/types"
)

// SocialOptions bound a social refresh. Nil bounds are open.
type SocialOptions struct {
	// Owner selects the archive partition. Empty resolves the authenticated athlete.
	Owner  string
	After  *time.Time
	Before *time.Time
	// Limit caps the number of records checked. Zero means no limit.
	Limit int
}

// RefreshSocial re-fetches comments and kudos of persisted records and
// overwrites the records whose social payload changed. A rate limit halts the
// pass; records updated before the halt stay saved.
func (s *Service) RefreshSocial(ctx context.Context, opts SocialOptions) (*types.SocialRefreshResult, error) {
	owner, err := s.ownerFor(ctx, opts.Owner)
	if err != nil {
		return nil, err
	}
	result := &types.SocialRefreshResult{Athlete: owner, Errors: []types.SyncError{}}

	keys, err := s.archive.SessionKeys(owner)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if opts.Limit > 0 && result.Checked >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		act, err := s.archive.Load(owner, key)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "session", key, "error", err)
			continue
		}
		if act == nil || !inRange(act.StartDate, opts.After, opts.Before) {
			continue
		}

		if err := s.socialLimiter.Wait(ctx); err != nil {
			return result, err
		}
		result.Checked++

		changed, err := s.refreshOne(ctx, act)
		if err != nil {
			if types.IsRateLimited(err) {
				result.Halted = true
				result.HaltError = err.Error()
				s.logger.Warn("social refresh halted by rate limit", "athlete", owner, "activity_id", act.ID, "checked", result.Checked)
				s.reporter.Report(LevelSummary, fmt.Sprintf("Rate limited after %d records, stopping", result.Checked))
				break
			}
			result.Errors = append(result.Errors, types.SyncError{
				ActivityID:  act.ID,
				Error:       err.Error(),
				FailureType: string(retry.Classify(err)),
			})
			s.reporter.Report(LevelRecord, fmt.Sprintf("  %s: %v", key, err))
			continue
		}
		if !changed {
			s.reporter.Report(LevelDetail, fmt.Sprintf("  %s unchanged", key))
			continue
		}

		if _, err := s.archive.Save(owner, act); err != nil {
			result.Errors = append(result.Errors, types.SyncError{
				ActivityID:  act.ID,
				Error:       err.Error(),
				FailureType: string(retry.Classify(err)),
			})
			continue
		}
		result.Updated++
		s.reporter.Report(LevelRecord, fmt.Sprintf("  %s: %d kudos, %d comments", key, act.KudosCount, act.CommentCount))
	}

	if result.Updated > 0 {
		if _, err := s.archive.RegenerateSummary(owner); err != nil {
			s.logger.Warn("summary regeneration failed", "athlete", owner, "error", err)
		}
	}

	s.logger.Info("social refresh completed",
		"athlete", owner,
		"checked", result.Checked,
		"updated", result.Updated,
		"halted", result.Halted,
		"errors", len(result.Errors),
	)
	return result, nil
}

// refreshOne fetches comments and kudos into act and reports whether
// anything changed. Nothing is applied unless both fetches succeed.
func (s *Service) refreshOne(ctx context.Context, act *types.Activity) (bool, error) {
	comments, err := s.remote.GetComments(ctx, act.ID)
	if err != nil {
		return false, fmt.Errorf("comments: %w", err)
	}
	kudos, err := s.remote.GetKudos(ctx, act.ID)
	if err != nil {
		return false, fmt.Errorf("kudos: %w", err)
	}
	if comments == nil {
		comments = []types.Comment{}
	}
	if kudos == nil {
		kudos = []types.Kudo{}
	}

	changed := act.CommentCount != len(comments) ||
		act.KudosCount != len(kudos) ||
		!reflect.DeepEqual(nonNil(act.Comments), comments) ||
		!reflect.DeepEqual(nonNil(act.Kudos), kudos)

	act.Comments = comments
	act.Kudos = kudos
	act.CommentCount = len(comments)
	act.KudosCount = len(kudos)
	return changed, nil
}

// ownerFor validates an explicit owner or resolves the authenticated one.
func (s *Service) ownerFor(ctx context.Context, owner string) (string, error) {
	if owner == "" {
		o, err := s.resolveOwner(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve athlete: %w", err)
		}
		return o, nil
	}
	if err := archive.ValidateOwner(owner); err != nil {
		return "", err
	}
	return owner, nil
}

func inRange(t time.Time, after, before *time.Time) bool {
	if after != nil && t.Before(*after) {
		return false
	}
	if before != nil && !t.Before(*before) {
		return false
	}
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
