package backup

import (
	"context"
	"fmt"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/types"
)

// Integrity issue kinds.
const (
	IssuePhotos = "photos"
	IssueTrack  = "track"
)

// CheckOptions configure a check-and-fix pass.
type CheckOptions struct {
	// Owner selects the archive partition. Empty resolves the authenticated athlete.
	Owner string
	// DryRun reports discrepancies without fetching or writing anything.
	DryRun bool
}

// CheckAndFix verifies that every persisted record's downloadable photos and
// track presence match the files on disk, and re-fetches only the missing
// piece of each inconsistent record. A rate limit halts the pass.
func (s *Service) CheckAndFix(ctx context.Context, opts CheckOptions) (*types.IntegrityResult, error) {
	owner, err := s.ownerFor(ctx, opts.Owner)
	if err != nil {
		return nil, err
	}
	result := &types.IntegrityResult{Athlete: owner, DryRun: opts.DryRun, Issues: []types.IntegrityIssue{}}

	keys, err := s.archive.SessionKeys(owner)
	if err != nil {
		return nil, err
	}

	saved := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		act, err := s.archive.Load(owner, key)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "session", key, "error", err)
			continue
		}
		if act == nil {
			continue
		}
		result.Checked++

		issues := s.inspect(owner, key, act)
		if len(issues) == 0 {
			continue
		}
		if opts.DryRun {
			for _, issue := range issues {
				s.reporter.Report(LevelRecord, fmt.Sprintf("  %s: %s", key, issue.Detail))
			}
			result.Issues = append(result.Issues, issues...)
			continue
		}

		changed := false
		for i := range issues {
			issue := &issues[i]
			var fixErr error
			switch issue.Kind {
			case IssuePhotos:
				n, refreshed, err := s.fixPhotos(ctx, owner, key, act)
				result.PhotosRecovered += n
				changed = changed || refreshed
				fixErr = err
			case IssueTrack:
				fixErr = s.fixTrack(ctx, owner, key, act)
				changed = changed || fixErr == nil
			}

			if fixErr != nil {
				issue.Error = fixErr.Error()
				s.reporter.Report(LevelRecord, fmt.Sprintf("  %s: %s, fix failed: %v", key, issue.Detail, fixErr))
				if types.IsRateLimited(fixErr) {
					result.Halted = true
					break
				}
				continue
			}
			issue.Fixed = true
			result.Fixed++
			s.reporter.Report(LevelRecord, fmt.Sprintf("  %s: %s, fixed", key, issue.Detail))
		}
		result.Issues = append(result.Issues, issues...)

		if changed {
			if _, err := s.archive.Save(owner, act); err != nil {
				s.logger.Warn("save after fix failed", "session", key, "error", err)
			} else {
				saved++
			}
		}
		if result.Halted {
			s.logger.Warn("integrity check halted by rate limit", "athlete", owner, "session", key)
			break
		}
	}

	if saved > 0 {
		if _, err := s.archive.RegenerateSummary(owner); err != nil {
			s.logger.Warn("summary regeneration failed", "athlete", owner, "error", err)
		}
	}

	s.logger.Info("integrity check completed",
		"athlete", owner,
		"checked", result.Checked,
		"issues", len(result.Issues),
		"fixed", result.Fixed,
		"photos_recovered", result.PhotosRecovered,
		"halted", result.Halted,
		"dry_run", result.DryRun,
	)
	return result, nil
}

// inspect lists the discrepancies of one record without touching the remote.
func (s *Service) inspect(owner, key string, act *types.Activity) []types.IntegrityIssue {
	var issues []types.IntegrityIssue
	if want, have := s.photoTarget(owner, key, act); have < want {
		issues = append(issues, types.IntegrityIssue{
			Session:  key,
			Activity: act.ID,
			Kind:     IssuePhotos,
			Detail:   fmt.Sprintf("%d of %d photos on disk", have, want),
		})
	}
	if act.HasGPS && !s.archive.TrackReadable(owner, key) {
		issues = append(issues, types.IntegrityIssue{
			Session:  key,
			Activity: act.ID,
			Kind:     IssueTrack,
			Detail:   "track missing or unreadable",
		})
	}
	return issues
}

// photoTarget returns how many photo files a record should have on disk and
// how many of them are present. Only photos with a downloadable rendition
// count. A record whose photo metadata is missing falls back to its declared
// count against whatever image files exist.
func (s *Service) photoTarget(owner, key string, act *types.Activity) (want, have int) {
	if len(act.Photos) == 0 {
		return act.PhotoCount, s.archive.CountPhotoFiles(owner, key)
	}
	names := archive.PhotoFilenames(act)
	for _, name := range names {
		if s.archive.PhotoExists(owner, key, name) {
			have++
		}
	}
	return len(names), have
}

// fixPhotos refreshes photo metadata and downloads the missing files. It
// reports whether the metadata was refreshed, and fails unless every
// downloadable photo is on disk afterwards.
func (s *Service) fixPhotos(ctx context.Context, owner, key string, act *types.Activity) (int, bool, error) {
	photos, err := s.remote.GetPhotos(ctx, act.ID)
	if err != nil {
		return 0, false, err
	}
	act.Photos = photos
	act.HasPhotos = len(photos) > 0
	act.PhotoCount = len(photos)

	n, _, err := s.downloadPhotos(ctx, owner, key, act)
	if err != nil {
		return n, true, err
	}
	if want, have := s.photoTarget(owner, key, act); have < want {
		return n, true, fmt.Errorf("%d of %d photos on disk after fix", have, want)
	}
	return n, true, nil
}

// fixTrack re-fetches streams. A record whose streams are gone no longer
// claims a track.
func (s *Service) fixTrack(ctx context.Context, owner, key string, act *types.Activity) error {
	streams, err := s.remote.GetStreams(ctx, act.ID)
	if err != nil {
		return err
	}
	if streams == nil {
		act.HasGPS = false
		return nil
	}
	manifest, err := s.archive.SaveTracking(owner, key, streams)
	if err != nil {
		return err
	}
	act.HasGPS = manifest.HasGPS
	return nil
}
