package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/mykrok/internal/types"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:  srv.URL + "/api/v3",
		TokenURL: srv.URL + "/oauth/token",
		Token:    Token{AccessToken: "tok"},
	})
	return c, srv
}

func TestGetActivity_MapsDetail(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/activities/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"id": 42, "name": "Lunch Ride", "type": "Ride", "sport_type": "GravelRide",
			"start_date": "2025-04-01T10:00:00Z", "start_date_local": "2025-04-01T12:00:00Z",
			"timezone": "(GMT+01:00) Europe/Berlin", "start_latlng": [52.5, 13.4],
			"distance": 40000.5, "moving_time": 5400, "elapsed_time": 6000,
			"average_heartrate": 140.2, "gear_id": "b123", "kudos_count": 3,
			"total_photo_count": 2, "map": {"summary_polyline": "abc"},
			"laps": [{"id": 1, "lap_index": 1, "distance": 1000}],
			"segment_efforts": [{"id": 7, "name": "Hill", "segment": {"id": 99}}]
		}`)
	}))

	act, err := c.GetActivity(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), act.ID)
	assert.Equal(t, "GravelRide", act.SportType)
	assert.Equal(t, time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC), act.StartDate)
	require.NotNil(t, act.StartLatLng)
	assert.Equal(t, 52.5, act.StartLatLng.Lat)
	require.NotNil(t, act.AverageHeartrate)
	assert.Equal(t, 140.2, *act.AverageHeartrate)
	assert.True(t, act.HasGPS)
	assert.True(t, act.HasPhotos)
	assert.Equal(t, 2, act.PhotoCount)
	assert.Equal(t, 1, act.AthleteCount)
	require.Len(t, act.SegmentEfforts, 1)
	assert.Equal(t, int64(99), act.SegmentEfforts[0].SegmentID)
}

func TestGetActivity_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited with retry-after",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "120", "X-RateLimit-Usage": "100,1000"},
			check: func(t *testing.T, err error) {
				var rl *types.RateLimitError
				require.True(t, errors.As(err, &rl))
				assert.Equal(t, 2*time.Minute, rl.RetryAfter)
				assert.Equal(t, "100,1000", rl.Usage)
				assert.True(t, types.IsRateLimited(err))
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, types.ErrNotFound) },
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, types.ErrTransient) },
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, types.ErrUnauthorized) },
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, types.ErrInvalid) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			_, err := c.GetActivity(context.Background(), 1)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestRetryAfter_DefaultsToNextWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, 7*time.Minute+30*time.Second, retryAfter(http.Header{}, now))
}

func TestListActivities_PagesAndLimit(t *testing.T) {
	var pages int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		assert.Equal(t, "1700000000", r.URL.Query().Get("after"))
		page := r.URL.Query().Get("page")
		n := PageSize
		if page == "2" {
			n = 3
		}
		base := 0
		if page == "2" {
			base = PageSize
		}
		var items []string
		for i := 0; i < n; i++ {
			items = append(items, fmt.Sprintf(`{"id": %d, "name": "a", "type": "Run", "start_date": "2025-01-01T00:00:00Z"}`, base+i+1))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(items, ","))
	}))
	after := time.Unix(1700000000, 0)

	all, err := c.ListActivities(context.Background(), types.SyncWindow{After: &after}, 0)
	require.NoError(t, err)
	assert.Len(t, all, PageSize+3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pages))

	limited, err := c.ListActivities(context.Background(), types.SyncWindow{After: &after}, 5)
	require.NoError(t, err)
	assert.Len(t, limited, 5)
}

func TestGetStreams(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/activities/1/streams":
			assert.Equal(t, "true", r.URL.Query().Get("key_by_type"))
			fmt.Fprint(w, `{
				"time": {"data": [0, 1, 2]},
				"latlng": {"data": [[52.5, 13.4], [52.6, 13.5], [52.7, 13.6]]},
				"heartrate": {"data": [100, 110, 120]}
			}`)
		case "/api/v3/activities/2/streams":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v3/activities/3/streams":
			fmt.Fprint(w, `[]`)
		}
	}))
	ctx := context.Background()

	s, err := c.GetStreams(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 3, s.RowCount())
	assert.True(t, s.HasGPS())
	assert.Equal(t, [2]float64{52.6, 13.5}, s.LatLng[1])

	s, err = c.GetStreams(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = c.GetStreams(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetPhotosCommentsKudos(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/photos"):
			assert.Equal(t, "2048", r.URL.Query().Get("size"))
			fmt.Fprint(w, `[{"unique_id": "p1", "created_at": "2025-04-01T10:30:00Z", "location": [1.5, 2.5], "urls": {"2048": "https://cdn/p1.jpg"}}]`)
		case strings.HasSuffix(r.URL.Path, "/comments"):
			fmt.Fprint(w, `[{"id": 5, "text": "nice", "created_at": "2025-04-01T11:00:00Z", "athlete": {"firstname": "Bo", "lastname": "B"}}]`)
		case strings.HasSuffix(r.URL.Path, "/kudos"):
			fmt.Fprint(w, `[{"firstname": "Cy", "lastname": "C"}, {"firstname": "Di", "lastname": "D"}]`)
		}
	}))
	ctx := context.Background()

	photos, err := c.GetPhotos(ctx, 1)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	u, ok := photos[0].LargestURL()
	assert.True(t, ok)
	assert.Equal(t, "https://cdn/p1.jpg", u)
	require.NotNil(t, photos[0].Location)
	assert.Equal(t, 2.5, photos[0].Location.Lng)

	comments, err := c.GetComments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Bo", comments[0].Athlete.FirstName)

	kudos, err := c.GetKudos(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, kudos, 2)
}

func TestGetGear(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/athlete":
			fmt.Fprint(w, `{"id": 1, "username": "al", "bikes": [{"id": "b1", "name": "Bike", "primary": true}], "shoes": [{"id": "g1", "name": "Shoe"}]}`)
		case "/api/v3/gear/b1":
			fmt.Fprint(w, `{"id": "b1", "name": "Bike", "brand_name": "Acme", "model_name": "X"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	gear, err := c.GetGear(context.Background())
	require.NoError(t, err)
	require.Len(t, gear, 2)
	assert.Equal(t, "Acme", gear[0].BrandName)
	assert.Equal(t, "bike", gear[0].Type)
	assert.Equal(t, "shoes", gear[1].Type)
	assert.Empty(t, gear[1].BrandName)
}

func TestToken_RefreshWhenExpired(t *testing.T) {
	var refreshed int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			atomic.AddInt32(&refreshed, 1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
			fmt.Fprint(w, `{"access_token": "fresh", "refresh_token": "new-refresh", "expires_at": 4102444800}`)
		case "/api/v3/athlete":
			assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id": 7, "username": "al"}`)
		}
	}))
	defer srv.Close()

	var got Token
	c := New(Config{
		BaseURL:        srv.URL + "/api/v3",
		TokenURL:       srv.URL + "/oauth/token",
		ClientID:       "id",
		ClientSecret:   "secret",
		Token:          Token{AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: time.Unix(1, 0)},
		OnTokenRefresh: func(tok Token) { got = tok },
	})

	a, err := c.GetAthlete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshed))
	assert.Equal(t, "new-refresh", got.RefreshToken)
}

func TestToken_RefreshOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			fmt.Fprint(w, `{"access_token": "fresh", "expires_at": 4102444800}`)
		case "/api/v3/athlete":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"id": 8}`)
		}
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:  srv.URL + "/api/v3",
		TokenURL: srv.URL + "/oauth/token",
		ClientID: "id",
		Token:    Token{AccessToken: "revoked", RefreshToken: "r"},
	})

	a, err := c.GetAthlete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), a.ID)
}

func TestToken_MissingCredentials(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.GetAthlete(context.Background())
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestCircuitBreaker_OpensOnTransientFailures(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.GetActivity(ctx, 1)
		require.ErrorIs(t, err, types.ErrTransient)
	}
	_, err := c.GetActivity(ctx, 1)
	assert.ErrorIs(t, err, types.ErrTransient)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls), "open breaker must not reach the server")
}

func TestCircuitBreaker_IgnoresNotFound(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	for i := 0; i < 8; i++ {
		_, err := c.GetActivity(context.Background(), 1)
		require.ErrorIs(t, err, types.ErrNotFound)
	}
	assert.Equal(t, int32(8), atomic.LoadInt32(&calls))
}

func TestDownloadPhoto(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))

	data, err := c.DownloadPhoto(context.Background(), srv.URL+"/p.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	_, err = c.DownloadPhoto(context.Background(), srv.URL+"/missing.jpg")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
