package backup

import (
	"context"
	"fmt"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/metrics"
	"github.com/hyperengineering/mykrok/internal/types"
)

// stepOutcome classifies the result of one pipeline step.
type stepOutcome int

const (
	// stepOK: the step completed.
	stepOK stepOutcome = iota
	// stepDegraded: the step failed but the record is still persisted.
	stepDegraded
	// stepFatal: the record failed and goes to the retry queue.
	stepFatal
)

type stepResult struct {
	step    string
	outcome stepOutcome
	err     error
}

func ok(step string) stepResult { return stepResult{step: step} }

func degraded(step string, err error) stepResult {
	return stepResult{step: step, outcome: stepDegraded, err: err}
}

func fatal(step string, err error) stepResult {
	return stepResult{step: step, outcome: stepFatal, err: err}
}

// recordOutcome is the result of running the pipeline for one record.
type recordOutcome struct {
	activity *types.Activity
	key      string
	isNew    bool
	photos   int
	written  []string
	steps    []stepResult
}

// failure returns the first fatal step, if any.
func (o *recordOutcome) failure() *stepResult {
	for i := range o.steps {
		if o.steps[i].outcome == stepFatal {
			return &o.steps[i]
		}
	}
	return nil
}

func (o *recordOutcome) warnings() []string {
	var out []string
	for _, st := range o.steps {
		if st.outcome == stepDegraded {
			out = append(out, fmt.Sprintf("%s: %v", st.step, st.err))
		}
	}
	return out
}

// processRecord runs the fetch/persist pipeline for one activity. Detail
// fetch and final persist are required; streams and photos are optional;
// comments and kudos are best-effort. In dry-run only the detail is fetched.
func (s *Service) processRecord(ctx context.Context, owner string, id int64, dryRun bool) *recordOutcome {
	out := &recordOutcome{}

	act, err := s.remote.GetActivity(ctx, id)
	if err != nil {
		out.steps = append(out.steps, fatal("detail", err))
		return out
	}
	out.activity = act
	out.key = archive.SessionKey(act.StartDate)
	out.isNew = !s.archive.Exists(owner, act.StartDate)
	out.steps = append(out.steps, ok("detail"))

	if dryRun {
		return out
	}

	var prev *types.Activity
	if !out.isNew {
		prev, err = s.archive.Load(owner, out.key)
		if err != nil {
			s.logger.Warn("existing record unreadable, overwriting", "activity_id", id, "session", out.key, "error", err)
			prev = nil
		}
	}

	if _, err := s.archive.EnsureSessionDir(owner, out.key); err != nil {
		out.steps = append(out.steps, fatal("persist", err))
		return out
	}

	if s.cfg.Streams {
		out.steps = append(out.steps, s.streamsStep(ctx, owner, out))
	}
	if s.cfg.Photos {
		out.steps = append(out.steps, s.photosStep(ctx, owner, out, prev))
	} else if prev != nil {
		act.Photos = prev.Photos
	}
	if s.cfg.Comments {
		s.socialStep(ctx, act, prev)
	} else if prev != nil {
		carrySocial(act, prev)
	}

	path, err := s.archive.Save(owner, act)
	if err != nil {
		out.steps = append(out.steps, fatal("persist", err))
		return out
	}
	out.written = append(out.written, path)
	out.steps = append(out.steps, ok("persist"))
	return out
}

func (s *Service) streamsStep(ctx context.Context, owner string, out *recordOutcome) stepResult {
	act := out.activity
	streams, err := s.remote.GetStreams(ctx, act.ID)
	if err != nil {
		return degraded("streams", err)
	}
	if streams == nil {
		return ok("streams")
	}
	manifest, err := s.archive.SaveTracking(owner, out.key, streams)
	if err != nil {
		return degraded("streams", err)
	}
	act.HasGPS = manifest.HasGPS
	out.written = append(out.written, s.archive.TrackingPath(owner, out.key))
	return ok("streams")
}

func (s *Service) photosStep(ctx context.Context, owner string, out *recordOutcome, prev *types.Activity) stepResult {
	act := out.activity
	photos, err := s.remote.GetPhotos(ctx, act.ID)
	if err != nil {
		if prev != nil {
			act.Photos = prev.Photos
		}
		return degraded("photos", err)
	}
	act.Photos = photos
	act.HasPhotos = len(photos) > 0
	act.PhotoCount = len(photos)

	n, written, err := s.downloadPhotos(ctx, owner, out.key, act)
	out.photos += n
	out.written = append(out.written, written...)
	if err != nil {
		return degraded("photos", err)
	}
	return ok("photos")
}

// socialStep refreshes comments and kudos. Failures are absorbed and the
// previously persisted payload is kept.
func (s *Service) socialStep(ctx context.Context, act, prev *types.Activity) {
	comments, err := s.remote.GetComments(ctx, act.ID)
	switch {
	case err == nil:
		act.Comments = comments
		act.CommentCount = len(comments)
	case prev != nil:
		act.Comments = prev.Comments
	}
	if err != nil {
		s.logger.Debug("comments unavailable", "activity_id", act.ID, "error", err)
	}

	kudos, err := s.remote.GetKudos(ctx, act.ID)
	switch {
	case err == nil:
		act.Kudos = kudos
		act.KudosCount = len(kudos)
	case prev != nil:
		act.Kudos = prev.Kudos
	}
	if err != nil {
		s.logger.Debug("kudos unavailable", "activity_id", act.ID, "error", err)
	}
}

func carrySocial(act, prev *types.Activity) {
	act.Comments = prev.Comments
	act.Kudos = prev.Kudos
}

// downloadPhotos stores the largest rendition of every photo that is not yet
// on disk. It keeps going past individual failures and returns the first one;
// a rate limit stops it immediately.
func (s *Service) downloadPhotos(ctx context.Context, owner, key string, act *types.Activity) (int, []string, error) {
	names := archive.PhotoFilenames(act)
	var (
		downloaded int
		written    []string
		firstErr   error
	)
	for i, p := range act.Photos {
		name, found := names[i]
		if !found || s.archive.PhotoExists(owner, key, name) {
			continue
		}
		u, _ := p.LargestURL()

		if err := s.photoLimiter.Wait(ctx); err != nil {
			return downloaded, written, err
		}
		data, err := s.remote.DownloadPhoto(ctx, u)
		if err == nil {
			var path string
			path, err = s.archive.WritePhoto(owner, key, name, data)
			if err == nil {
				downloaded++
				written = append(written, path)
				metrics.PhotosDownloaded.Inc()
				s.reporter.Report(LevelDetail, fmt.Sprintf("    downloaded photo %s", name))
				continue
			}
		}
		if types.IsRateLimited(err) {
			return downloaded, written, err
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("photo %s: %w", p.UniqueID, err)
		}
	}
	return downloaded, written, firstErr
}
