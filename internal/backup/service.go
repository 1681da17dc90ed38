// Package backup is the sync orchestrator: it reconciles the remote activity
// collection against the local archive and keeps the per-owner sync ledger.
package backup

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/mirror"
	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/types"
)

// RemoteClient is the remote capability the orchestrator consumes.
// Implemented by strava.Client.
type RemoteClient interface {
	GetAthlete(ctx context.Context) (*types.Athlete, error)
	ListActivities(ctx context.Context, window types.SyncWindow, limit int) ([]types.ActivitySummary, error)
	GetActivity(ctx context.Context, id int64) (*types.Activity, error)
	// GetStreams returns nil when the activity has no streams.
	GetStreams(ctx context.Context, id int64) (*types.StreamSet, error)
	GetPhotos(ctx context.Context, id int64) ([]types.Photo, error)
	GetComments(ctx context.Context, id int64) ([]types.Comment, error)
	GetKudos(ctx context.Context, id int64) ([]types.Kudo, error)
	GetGear(ctx context.Context) ([]types.Gear, error)
	DownloadPhoto(ctx context.Context, url string) ([]byte, error)
}

// Verbosity levels passed to a Reporter.
const (
	LevelSummary = 0
	LevelRecord  = 1
	LevelDetail  = 2
)

// Reporter receives user-facing progress messages.
type Reporter interface {
	Report(level int, msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(level int, msg string)

// Report calls f.
func (f ReporterFunc) Report(level int, msg string) { f(level, msg) }

type nopReporter struct{}

func (nopReporter) Report(int, string) {}

// Config selects the optional pipeline steps and pacing.
type Config struct {
	Photos   bool
	Streams  bool
	Comments bool
	// PhotoDelay is the minimum spacing between photo downloads.
	PhotoDelay time.Duration
	// SocialDelay is the minimum spacing between records during social refresh.
	SocialDelay time.Duration
	Policy      retry.Policy
}

// DefaultConfig enables every step with the standard pacing.
func DefaultConfig() Config {
	return Config{
		Photos:      true,
		Streams:     true,
		Comments:    true,
		PhotoDelay:  100 * time.Millisecond,
		SocialDelay: 200 * time.Millisecond,
		Policy:      retry.DefaultPolicy(),
	}
}

// Deps are the collaborators of a Service. Mirror, Logger and Reporter are
// optional.
type Deps struct {
	Remote   RemoteClient
	Archive  *archive.Archive
	Mirror   mirror.Mirror
	Logger   *slog.Logger
	Reporter Reporter
}

// Service runs sync, social refresh and integrity passes for the
// authenticated athlete. One Service must not run passes concurrently
// against the same archive.
type Service struct {
	remote   RemoteClient
	archive  *archive.Archive
	mirror   mirror.Mirror
	cfg      Config
	logger   *slog.Logger
	reporter Reporter

	photoLimiter  *rate.Limiter
	socialLimiter *rate.Limiter

	now      func() time.Time
	newRunID func() string
}

// New creates a Service.
func New(deps Deps, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	m := deps.Mirror
	if m == nil {
		m = mirror.NoopMirror{}
	}
	return &Service{
		remote:        deps.Remote,
		archive:       deps.Archive,
		mirror:        m,
		cfg:           cfg,
		logger:        logger.With("component", "backup"),
		reporter:      reporter,
		photoLimiter:  newLimiter(cfg.PhotoDelay),
		socialLimiter: newLimiter(cfg.SocialDelay),
		now:           time.Now,
		newRunID:      func() string { return ulid.Make().String() },
	}
}

// Archive returns the record store the service writes to.
func (s *Service) Archive() *archive.Archive {
	return s.archive
}

// resolveOwner returns the archive owner of the authenticated athlete.
func (s *Service) resolveOwner(ctx context.Context) (string, error) {
	athlete, err := s.remote.GetAthlete(ctx)
	if err != nil {
		return "", err
	}
	owner := archive.OwnerFromAthlete(athlete)
	if err := archive.ValidateOwner(owner); err != nil {
		return "", err
	}
	return owner, nil
}

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}
