package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperengineering/mykrok/internal/types"
)

// streamKeys are the stream channels requested for every activity.
var streamKeys = []string{
	"time", "latlng", "distance", "altitude", "velocity_smooth",
	"heartrate", "cadence", "watts", "temp", "moving", "grade_smooth",
}

// GetAthlete returns the authenticated athlete.
func (c *Client) GetAthlete(ctx context.Context) (*types.Athlete, error) {
	a, err := c.athlete(ctx)
	if err != nil {
		return nil, err
	}
	return a.toAthlete(), nil
}

func (c *Client) athlete(ctx context.Context) (*apiAthlete, error) {
	body, err := c.get(ctx, "athlete", "/athlete", nil)
	if err != nil {
		return nil, err
	}
	var a apiAthlete
	if err := decode(body, &a); err != nil {
		return nil, fmt.Errorf("athlete: %w", err)
	}
	return &a, nil
}

// ListActivities returns the athlete's activities within window, paging
// until the remote is exhausted or limit summaries were collected.
// A limit of zero means no limit.
func (c *Client) ListActivities(ctx context.Context, window types.SyncWindow, limit int) ([]types.ActivitySummary, error) {
	var out []types.ActivitySummary
	for page := 1; ; page++ {
		q := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(PageSize)},
		}
		if window.After != nil {
			q.Set("after", strconv.FormatInt(window.After.Unix(), 10))
		}
		if window.Before != nil {
			q.Set("before", strconv.FormatInt(window.Before.Unix(), 10))
		}

		body, err := c.get(ctx, "activities", "/athlete/activities", q)
		if err != nil {
			return nil, err
		}
		var batch []apiSummary
		if err := decode(body, &batch); err != nil {
			return nil, fmt.Errorf("activities page %d: %w", page, err)
		}
		for _, s := range batch {
			out = append(out, s.toSummary())
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if len(batch) < PageSize {
			return out, nil
		}
	}
}

// GetActivity returns the full detail of one activity.
func (c *Client) GetActivity(ctx context.Context, id int64) (*types.Activity, error) {
	q := url.Values{"include_all_efforts": {"true"}}
	body, err := c.get(ctx, "activity", "/activities/"+strconv.FormatInt(id, 10), q)
	if err != nil {
		return nil, err
	}
	var a apiActivity
	if err := decode(body, &a); err != nil {
		return nil, fmt.Errorf("activity %d: %w", id, err)
	}
	if a.ID == 0 || a.StartDate.IsZero() {
		return nil, fmt.Errorf("activity %d: %w: missing id or start date", id, types.ErrInvalid)
	}
	return a.toActivity(), nil
}

// GetStreams returns the stream bundle of an activity, or nil when the
// activity has none.
func (c *Client) GetStreams(ctx context.Context, id int64) (*types.StreamSet, error) {
	q := url.Values{
		"keys":        {strings.Join(streamKeys, ",")},
		"key_by_type": {"true"},
	}
	body, err := c.get(ctx, "streams", "/activities/"+strconv.FormatInt(id, 10)+"/streams", q)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Activities without recorded streams answer with an empty list.
	if trimmed := strings.TrimSpace(string(body)); trimmed == "" || strings.HasPrefix(trimmed, "[") {
		return nil, nil
	}
	var raw map[string]struct {
		Data json.RawMessage `json:"data"`
	}
	if err := decode(body, &raw); err != nil {
		return nil, fmt.Errorf("streams %d: %w", id, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	s := &types.StreamSet{}
	channels := map[string]any{
		"time":            &s.Time,
		"latlng":          &s.LatLng,
		"distance":        &s.Distance,
		"altitude":        &s.Altitude,
		"velocity_smooth": &s.VelocitySmooth,
		"heartrate":       &s.Heartrate,
		"cadence":         &s.Cadence,
		"watts":           &s.Watts,
		"temp":            &s.Temp,
		"moving":          &s.Moving,
		"grade_smooth":    &s.GradeSmooth,
	}
	for key, dst := range channels {
		ch, ok := raw[key]
		if !ok || len(ch.Data) == 0 {
			continue
		}
		if err := json.Unmarshal(ch.Data, dst); err != nil {
			return nil, fmt.Errorf("streams %d: channel %s: %w: %v", id, key, types.ErrInvalid, err)
		}
	}
	if s.RowCount() == 0 {
		return nil, nil
	}
	return s, nil
}

// GetPhotos returns the photo metadata of an activity with URLs for the
// largest rendition.
func (c *Client) GetPhotos(ctx context.Context, id int64) ([]types.Photo, error) {
	q := url.Values{
		"size":          {types.PhotoSizes[0]},
		"photo_sources": {"true"},
	}
	body, err := c.get(ctx, "photos", "/activities/"+strconv.FormatInt(id, 10)+"/photos", q)
	if err != nil {
		return nil, err
	}
	var raw []apiPhoto
	if err := decode(body, &raw); err != nil {
		return nil, fmt.Errorf("photos %d: %w", id, err)
	}
	photos := make([]types.Photo, 0, len(raw))
	for _, p := range raw {
		photos = append(photos, p.toPhoto())
	}
	return photos, nil
}

// GetComments returns the comments on an activity.
func (c *Client) GetComments(ctx context.Context, id int64) ([]types.Comment, error) {
	body, err := c.get(ctx, "comments", "/activities/"+strconv.FormatInt(id, 10)+"/comments", url.Values{"per_page": {"200"}})
	if err != nil {
		return nil, err
	}
	var raw []apiComment
	if err := decode(body, &raw); err != nil {
		return nil, fmt.Errorf("comments %d: %w", id, err)
	}
	out := make([]types.Comment, 0, len(raw))
	for _, cm := range raw {
		out = append(out, cm.toComment())
	}
	return out, nil
}

// GetKudos returns the athletes who gave kudos to an activity.
func (c *Client) GetKudos(ctx context.Context, id int64) ([]types.Kudo, error) {
	body, err := c.get(ctx, "kudos", "/activities/"+strconv.FormatInt(id, 10)+"/kudos", url.Values{"per_page": {"200"}})
	if err != nil {
		return nil, err
	}
	var raw []apiKudo
	if err := decode(body, &raw); err != nil {
		return nil, fmt.Errorf("kudos %d: %w", id, err)
	}
	out := make([]types.Kudo, 0, len(raw))
	for _, k := range raw {
		out = append(out, types.Kudo{FirstName: k.FirstName, LastName: k.LastName})
	}
	return out, nil
}

// GetGear returns the athlete's gear catalog. Brand and model come from the
// per-item endpoint; an item whose detail cannot be fetched keeps its summary.
func (c *Client) GetGear(ctx context.Context) ([]types.Gear, error) {
	a, err := c.athlete(ctx)
	if err != nil {
		return nil, err
	}

	var out []types.Gear
	add := func(refs []apiGearRef, kind string) error {
		for _, ref := range refs {
			g := types.Gear{
				ID:       ref.ID,
				Name:     ref.Name,
				Type:     kind,
				Distance: ref.Distance,
				Primary:  ref.Primary,
				Retired:  ref.Retired,
			}
			body, err := c.get(ctx, "gear", "/gear/"+url.PathEscape(ref.ID), nil)
			switch {
			case types.IsRateLimited(err):
				return err
			case err != nil:
				c.logger.Warn("gear detail unavailable", "gear_id", ref.ID, "error", err)
			default:
				var d apiGear
				if err := decode(body, &d); err == nil {
					g.BrandName = d.BrandName
					g.ModelName = d.ModelName
					if d.Name != "" {
						g.Name = d.Name
					}
				}
			}
			out = append(out, g)
		}
		return nil
	}
	if err := add(a.Bikes, "bike"); err != nil {
		return nil, err
	}
	if err := add(a.Shoes, "shoes"); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadPhoto fetches the bytes of a photo rendition. Photo URLs point at
// a CDN and are requested without credentials.
func (c *Client) DownloadPhoto(ctx context.Context, photoURL string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("photo download: %w: %v", types.ErrInvalid, err)
	}
	body, err := c.send(req)
	c.observe("photo_download", start, err)
	if err != nil {
		return nil, fmt.Errorf("photo download: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("photo download: %w: empty body", types.ErrTransient)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", types.ErrInvalid, err)
	}
	return nil
}
