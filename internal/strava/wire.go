package strava

import (
	"time"

	"github.com/hyperengineering/mykrok/internal/types"
)

// Wire shapes of the Strava API. Only the fields archived are decoded.

type apiAthlete struct {
	ID        int64        `json:"id"`
	Username  string       `json:"username"`
	FirstName string       `json:"firstname"`
	LastName  string       `json:"lastname"`
	Bikes     []apiGearRef `json:"bikes"`
	Shoes     []apiGearRef `json:"shoes"`
}

type apiGearRef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Primary  bool    `json:"primary"`
	Distance float64 `json:"distance"`
	Retired  bool    `json:"retired"`
}

type apiGear struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	BrandName string  `json:"brand_name"`
	ModelName string  `json:"model_name"`
	Distance  float64 `json:"distance"`
	Primary   bool    `json:"primary"`
	Retired   bool    `json:"retired"`
}

type apiSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	StartDate time.Time `json:"start_date"`
}

type apiActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        *string   `json:"description"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	StartLatLng        []float64 `json:"start_latlng"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain *float64  `json:"total_elevation_gain"`
	Calories           *float64  `json:"calories"`
	AverageSpeed       *float64  `json:"average_speed"`
	MaxSpeed           *float64  `json:"max_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate"`
	AverageWatts       *float64  `json:"average_watts"`
	MaxWatts           *int      `json:"max_watts"`
	AverageCadence     *float64  `json:"average_cadence"`
	GearID             *string   `json:"gear_id"`
	DeviceName         *string   `json:"device_name"`
	Trainer            bool      `json:"trainer"`
	Commute            bool      `json:"commute"`
	Private            bool      `json:"private"`
	KudosCount         int       `json:"kudos_count"`
	CommentCount       int       `json:"comment_count"`
	AthleteCount       int       `json:"athlete_count"`
	AchievementCount   int       `json:"achievement_count"`
	PRCount            int       `json:"pr_count"`
	TotalPhotoCount    int       `json:"total_photo_count"`
	Map                struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
	Laps           []apiLap           `json:"laps"`
	SegmentEfforts []apiSegmentEffort `json:"segment_efforts"`
}

type apiLap struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	LapIndex           int       `json:"lap_index"`
	StartDate          time.Time `json:"start_date"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain *float64  `json:"total_elevation_gain"`
	AverageSpeed       *float64  `json:"average_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate"`
}

type apiSegmentEffort struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	StartDate   time.Time `json:"start_date"`
	Distance    float64   `json:"distance"`
	MovingTime  int       `json:"moving_time"`
	ElapsedTime int       `json:"elapsed_time"`
	PRRank      *int      `json:"pr_rank"`
	KOMRank     *int      `json:"kom_rank"`
	Segment     struct {
		ID int64 `json:"id"`
	} `json:"segment"`
}

type apiPhoto struct {
	UniqueID  string            `json:"unique_id"`
	CreatedAt *time.Time        `json:"created_at"`
	Caption   string            `json:"caption"`
	Location  []float64         `json:"location"`
	URLs      map[string]string `json:"urls"`
	Source    int               `json:"source"`
}

type apiComment struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Athlete   struct {
		ID        int64  `json:"id"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
	} `json:"athlete"`
}

type apiKudo struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

func latLng(v []float64) *types.LatLng {
	if len(v) != 2 || (v[0] == 0 && v[1] == 0) {
		return nil
	}
	return &types.LatLng{Lat: v[0], Lng: v[1]}
}

func (a apiAthlete) toAthlete() *types.Athlete {
	out := &types.Athlete{
		ID:        a.ID,
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
	for _, g := range a.Bikes {
		out.GearIDs = append(out.GearIDs, g.ID)
	}
	for _, g := range a.Shoes {
		out.GearIDs = append(out.GearIDs, g.ID)
	}
	return out
}

func (s apiSummary) toSummary() types.ActivitySummary {
	return types.ActivitySummary{ID: s.ID, Name: s.Name, Type: s.Type, StartDate: s.StartDate.UTC()}
}

func (a apiActivity) toActivity() *types.Activity {
	sport := a.SportType
	if sport == "" {
		sport = a.Type
	}
	athletes := a.AthleteCount
	if athletes == 0 {
		athletes = 1
	}
	out := &types.Activity{
		ID:                 a.ID,
		Name:               a.Name,
		Description:        a.Description,
		Type:               a.Type,
		SportType:          sport,
		StartDate:          a.StartDate.UTC(),
		StartDateLocal:     a.StartDateLocal,
		Timezone:           a.Timezone,
		StartLatLng:        latLng(a.StartLatLng),
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		Calories:           a.Calories,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
		AverageWatts:       a.AverageWatts,
		MaxWatts:           a.MaxWatts,
		AverageCadence:     a.AverageCadence,
		GearID:             a.GearID,
		DeviceName:         a.DeviceName,
		Trainer:            a.Trainer,
		Commute:            a.Commute,
		Private:            a.Private,
		KudosCount:         a.KudosCount,
		CommentCount:       a.CommentCount,
		AthleteCount:       athletes,
		AchievementCount:   a.AchievementCount,
		PRCount:            a.PRCount,
		HasGPS:             a.Map.SummaryPolyline != "",
		HasPhotos:          a.TotalPhotoCount > 0,
		PhotoCount:         a.TotalPhotoCount,
	}
	for _, l := range a.Laps {
		out.Laps = append(out.Laps, types.Lap{
			ID:                 l.ID,
			Name:               l.Name,
			LapIndex:           l.LapIndex,
			StartDate:          l.StartDate.UTC(),
			Distance:           l.Distance,
			MovingTime:         l.MovingTime,
			ElapsedTime:        l.ElapsedTime,
			TotalElevationGain: l.TotalElevationGain,
			AverageSpeed:       l.AverageSpeed,
			AverageHeartrate:   l.AverageHeartrate,
			MaxHeartrate:       l.MaxHeartrate,
		})
	}
	for _, e := range a.SegmentEfforts {
		out.SegmentEfforts = append(out.SegmentEfforts, types.SegmentEffort{
			ID:          e.ID,
			Name:        e.Name,
			SegmentID:   e.Segment.ID,
			StartDate:   e.StartDate.UTC(),
			Distance:    e.Distance,
			MovingTime:  e.MovingTime,
			ElapsedTime: e.ElapsedTime,
			PRRank:      e.PRRank,
			KOMRank:     e.KOMRank,
		})
	}
	return out
}

func (p apiPhoto) toPhoto() types.Photo {
	out := types.Photo{
		UniqueID: p.UniqueID,
		Caption:  p.Caption,
		Location: latLng(p.Location),
		URLs:     p.URLs,
		Source:   p.Source,
	}
	if p.CreatedAt != nil {
		t := p.CreatedAt.UTC()
		out.CreatedAt = &t
	}
	return out
}

func (c apiComment) toComment() types.Comment {
	return types.Comment{
		ID:        c.ID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt.UTC(),
		Athlete: types.AthleteRef{
			ID:        c.Athlete.ID,
			FirstName: c.Athlete.FirstName,
			LastName:  c.Athlete.LastName,
		},
	}
}
