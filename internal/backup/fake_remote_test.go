package backup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/types"
)

const testOwner = "runner"

var t0 = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory RemoteClient.
type fakeRemote struct {
	mu sync.Mutex

	activities map[int64]*types.Activity
	streams    map[int64]*types.StreamSet
	photos     map[int64][]types.Photo
	comments   map[int64][]types.Comment
	kudos      map[int64][]types.Kudo
	gear       []types.Gear

	listErr     error
	detailErr   map[int64]error
	streamsErr  map[int64]error
	photosErr   map[int64]error
	commentsErr map[int64]error
	kudosErr    map[int64]error
	downloadErr map[string]error
	gearErr     error

	detailCalls   map[int64]int
	commentCalls  map[int64]int
	photoCalls    map[int64]int
	downloads     []string
	lastWindow    types.SyncWindow
	listCallCount int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		activities:   make(map[int64]*types.Activity),
		streams:      make(map[int64]*types.StreamSet),
		photos:       make(map[int64][]types.Photo),
		comments:     make(map[int64][]types.Comment),
		kudos:        make(map[int64][]types.Kudo),
		detailErr:    make(map[int64]error),
		streamsErr:   make(map[int64]error),
		photosErr:    make(map[int64]error),
		commentsErr:  make(map[int64]error),
		kudosErr:     make(map[int64]error),
		downloadErr:  make(map[string]error),
		detailCalls:  make(map[int64]int),
		commentCalls: make(map[int64]int),
		photoCalls:   make(map[int64]int),
	}
}

func (f *fakeRemote) add(id int64, start time.Time) *types.Activity {
	act := &types.Activity{
		ID:           id,
		Name:         fmt.Sprintf("Activity %d", id),
		Type:         "Run",
		SportType:    "Run",
		StartDate:    start,
		Distance:     5000,
		MovingTime:   1500,
		ElapsedTime:  1600,
		AthleteCount: 1,
	}
	f.activities[id] = act
	return act
}

func (f *fakeRemote) GetAthlete(ctx context.Context) (*types.Athlete, error) {
	return &types.Athlete{ID: 7, Username: testOwner}, nil
}

func (f *fakeRemote) ListActivities(ctx context.Context, window types.SyncWindow, limit int) ([]types.ActivitySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastWindow = window
	f.listCallCount++
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []types.ActivitySummary
	for _, a := range f.activities {
		if window.After != nil && !a.StartDate.After(*window.After) {
			continue
		}
		if window.Before != nil && !a.StartDate.Before(*window.Before) {
			continue
		}
		out = append(out, types.ActivitySummary{ID: a.ID, Name: a.Name, Type: a.Type, StartDate: a.StartDate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) GetActivity(ctx context.Context, id int64) (*types.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	a, ok := f.activities[id]
	if !ok {
		return nil, fmt.Errorf("activity %d: %w", id, types.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRemote) GetStreams(ctx context.Context, id int64) (*types.StreamSet, error) {
	if err := f.streamsErr[id]; err != nil {
		return nil, err
	}
	return f.streams[id], nil
}

func (f *fakeRemote) GetPhotos(ctx context.Context, id int64) ([]types.Photo, error) {
	f.photoCalls[id]++
	if err := f.photosErr[id]; err != nil {
		return nil, err
	}
	return f.photos[id], nil
}

func (f *fakeRemote) GetComments(ctx context.Context, id int64) ([]types.Comment, error) {
	f.commentCalls[id]++
	if err := f.commentsErr[id]; err != nil {
		return nil, err
	}
	return f.comments[id], nil
}

func (f *fakeRemote) GetKudos(ctx context.Context, id int64) ([]types.Kudo, error) {
	if err := f.kudosErr[id]; err != nil {
		return nil, err
	}
	return f.kudos[id], nil
}

func (f *fakeRemote) GetGear(ctx context.Context) ([]types.Gear, error) {
	if f.gearErr != nil {
		return nil, f.gearErr
	}
	return f.gear, nil
}

func (f *fakeRemote) DownloadPhoto(ctx context.Context, url string) ([]byte, error) {
	if err := f.downloadErr[url]; err != nil {
		return nil, err
	}
	f.downloads = append(f.downloads, url)
	return []byte("img:" + url), nil
}

// testClock is a settable time source.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, remote *fakeRemote) (*Service, *archive.Archive, *testClock) {
	t.Helper()
	arc, err := archive.New(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PhotoDelay = 0
	cfg.SocialDelay = 0

	svc := New(Deps{Remote: remote, Archive: arc}, cfg)
	clock := &testClock{now: t0.Add(48 * time.Hour)}
	svc.now = clock.Now
	runs := 0
	svc.newRunID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
	return svc, arc, clock
}

func testPhoto(id string, created time.Time) types.Photo {
	return types.Photo{
		UniqueID:  id,
		CreatedAt: &created,
		URLs: map[string]string{
			"600":  "https://img.example/" + id + "-600.jpg",
			"2048": "https://img.example/" + id + "-2048.jpg",
		},
	}
}

func gpsStreams() *types.StreamSet {
	return &types.StreamSet{
		Time:     []int{0, 1, 2},
		LatLng:   [][2]float64{{52.5, 13.4}, {52.51, 13.41}, {52.52, 13.42}},
		Distance: []float64{0, 5, 10},
	}
}
