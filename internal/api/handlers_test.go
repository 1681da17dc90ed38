package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/ledger"
	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/state"
	"github.com/hyperengineering/mykrok/internal/types"
	"github.com/hyperengineering/mykrok/internal/worker"
)

const testOwner = "jane"

var t0 = time.Date(2025, 4, 2, 6, 30, 0, 0, time.UTC)

type stubScheduler struct{ last *worker.RunStatus }

func (s stubScheduler) Last() *worker.RunStatus { return s.last }

func newTestServer(t *testing.T) (*httptest.Server, *archive.Archive) {
	t.Helper()
	arc, err := archive.New(t.TempDir())
	require.NoError(t, err)

	for i, start := range []time.Time{t0, t0.Add(24 * time.Hour), t0.Add(48 * time.Hour)} {
		act := &types.Activity{
			ID:           int64(100 + i),
			Name:         "Ride",
			Type:         "Ride",
			SportType:    "Ride",
			StartDate:    start,
			Distance:     20000,
			AthleteCount: 1,
		}
		if i == 0 {
			act.HasGPS = true
			act.PhotoCount = 1
			act.HasPhotos = true
		}
		_, err := arc.Save(testOwner, act)
		require.NoError(t, err)
	}

	key := archive.SessionKey(t0)
	_, err = arc.SaveTracking(testOwner, key, &types.StreamSet{
		Time:   []int{0, 1},
		LatLng: [][2]float64{{48.1, 11.5}, {48.2, 11.6}},
	})
	require.NoError(t, err)
	_, err = arc.WritePhoto(testOwner, key, key+".jpg", []byte("jpegdata"))
	require.NoError(t, err)
	_, err = arc.SaveGear(testOwner, []types.Gear{{ID: "b1", Name: "Gravel", Type: "bike"}})
	require.NoError(t, err)

	led, err := ledger.Open(arc.LedgerPath(testOwner))
	require.NoError(t, err)
	q := retry.NewQueue(retry.DefaultPolicy())
	q.AddFailure(999, errors.New("boom"), t0)
	last := t0.Add(48 * time.Hour)
	require.NoError(t, led.Commit(context.Background(), state.SyncState{LastSync: &last, LastActivityDate: &last, TotalActivities: 3}, q, nil))
	require.NoError(t, led.Close())

	sched := stubScheduler{last: &worker.RunStatus{StartedAt: t0, FinishedAt: t0, Error: "token expired"}}
	h := NewHandler(arc, retry.DefaultPolicy(), sched, "test")
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, arc
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	var body HealthResponse
	resp := getJSON(t, srv.URL+"/api/v1/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, 1, body.Athletes)
}

func TestListAthletes(t *testing.T) {
	srv, _ := newTestServer(t)

	var body []AthleteInfo
	resp := getJSON(t, srv.URL+"/api/v1/athletes", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []AthleteInfo{{Athlete: testOwner, Sessions: 3}}, body)
}

func TestListSessions(t *testing.T) {
	srv, _ := newTestServer(t)

	var all []SessionSummary
	getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions", &all)
	require.Len(t, all, 3)
	assert.Equal(t, int64(102), all[0].ID, "newest first")

	var filtered []SessionSummary
	getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions?after=2025-04-03&limit=1", &filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(102), filtered[0].ID)

	var problem ProblemWithErrors
	resp := getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions?limit=-2&after=tomorrow", &problem)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Len(t, problem.Errors, 2)
}

func TestGetSession(t *testing.T) {
	srv, _ := newTestServer(t)
	key := archive.SessionKey(t0)

	var act types.Activity
	resp := getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/"+key, &act)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(100), act.ID)

	var problem Problem
	resp = getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/20200101T000000", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	resp = getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/not-a-key", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/api/v1/athletes/nobody/sessions/"+key, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/api/v1/athletes/Jane/sessions", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetTrack(t *testing.T) {
	srv, _ := newTestServer(t)

	var track TrackResponse
	resp := getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/"+archive.SessionKey(t0)+"/track", &track)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, track.Manifest.HasGPS)
	assert.Equal(t, 2, track.Manifest.RowCount)

	resp = getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/"+archive.SessionKey(t0.Add(24*time.Hour))+"/track", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPhotos(t *testing.T) {
	srv, _ := newTestServer(t)
	key := archive.SessionKey(t0)

	var names []string
	getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/"+key+"/photos", &names)
	assert.Equal(t, []string{key + ".jpg"}, names)

	resp, err := http.Get(srv.URL + "/api/v1/athletes/jane/sessions/" + key + "/photos/" + key + ".jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/"+key+"/photos/missing.jpg", nil)
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3 := getJSON(t, srv.URL+"/api/v1/athletes/jane/sessions/"+key+"/photos/..hidden", nil)
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestGetGear(t *testing.T) {
	srv, _ := newTestServer(t)

	var gear []types.Gear
	resp := getJSON(t, srv.URL+"/api/v1/athletes/jane/gear", &gear)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, gear, 1)
	assert.Equal(t, "b1", gear[0].ID)
}

func TestSyncStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Athlete        string `json:"athlete"`
		PendingRetries int    `json:"pending_retries"`
		State          struct {
			TotalActivities int `json:"total_activities"`
		} `json:"state"`
		Scheduler *worker.RunStatus `json:"scheduler"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/athletes/jane/sync", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testOwner, body.Athlete)
	assert.Equal(t, 1, body.PendingRetries)
	assert.Equal(t, 3, body.State.TotalActivities)
	require.NotNil(t, body.Scheduler)
	assert.Equal(t, "token expired", body.Scheduler.Error)
}

func TestReadOnlyAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/athletes", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	getJSON(t, srv.URL+"/api/v1/health", nil)
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
