package types

import "time"

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Activity is one archived record: the metadata document persisted as info.json.
// Identity is the remote numeric ID; position in the archive is keyed by StartDate.
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	Timezone       string    `json:"timezone"`
	StartLatLng    *LatLng   `json:"start_latlng,omitempty"`

	Distance           float64  `json:"distance"`
	MovingTime         int      `json:"moving_time"`
	ElapsedTime        int      `json:"elapsed_time"`
	TotalElevationGain *float64 `json:"total_elevation_gain"`
	Calories           *float64 `json:"calories"`
	AverageSpeed       *float64 `json:"average_speed"`
	MaxSpeed           *float64 `json:"max_speed"`
	AverageHeartrate   *float64 `json:"average_heartrate"`
	MaxHeartrate       *float64 `json:"max_heartrate"`
	AverageWatts       *float64 `json:"average_watts"`
	MaxWatts           *int     `json:"max_watts"`
	AverageCadence     *float64 `json:"average_cadence"`

	GearID     *string `json:"gear_id"`
	DeviceName *string `json:"device_name"`
	Trainer    bool    `json:"trainer"`
	Commute    bool    `json:"commute"`
	Private    bool    `json:"private"`

	KudosCount       int `json:"kudos_count"`
	CommentCount     int `json:"comment_count"`
	AthleteCount     int `json:"athlete_count"`
	AchievementCount int `json:"achievement_count"`
	PRCount          int `json:"pr_count"`

	HasGPS     bool `json:"has_gps"`
	HasPhotos  bool `json:"has_photos"`
	PhotoCount int  `json:"photo_count"`

	Comments       []Comment       `json:"comments"`
	Kudos          []Kudo          `json:"kudos"`
	Laps           []Lap           `json:"laps"`
	SegmentEfforts []SegmentEffort `json:"segment_efforts"`
	Photos         []Photo         `json:"photos"`
}

// ActivitySummary is the list-level view returned when enumerating candidates.
type ActivitySummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	StartDate time.Time `json:"start_date"`
}

// PhotoSizes lists rendition sizes from largest to smallest.
var PhotoSizes = []string{"2048", "1024", "600", "256"}

// Photo is photo metadata attached to an activity.
type Photo struct {
	UniqueID  string            `json:"unique_id"`
	CreatedAt *time.Time        `json:"created_at,omitempty"`
	Caption   string            `json:"caption,omitempty"`
	Location  *LatLng           `json:"location,omitempty"`
	URLs      map[string]string `json:"urls,omitempty"`
	Source    int               `json:"source,omitempty"`
}

// LargestURL returns the URL of the largest available rendition.
func (p Photo) LargestURL() (string, bool) {
	for _, size := range PhotoSizes {
		if u, ok := p.URLs[size]; ok && u != "" {
			return u, true
		}
	}
	return "", false
}

// AthleteRef identifies another athlete inside social payloads.
type AthleteRef struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// Comment is one comment left on an activity.
type Comment struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	Athlete   AthleteRef `json:"athlete"`
}

// Kudo is one kudos given to an activity.
type Kudo struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// Lap is one lap of an activity.
type Lap struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	LapIndex           int       `json:"lap_index"`
	StartDate          time.Time `json:"start_date"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain *float64  `json:"total_elevation_gain,omitempty"`
	AverageSpeed       *float64  `json:"average_speed,omitempty"`
	AverageHeartrate   *float64  `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64  `json:"max_heartrate,omitempty"`
}

// SegmentEffort is one segment effort within an activity.
type SegmentEffort struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SegmentID   int64     `json:"segment_id"`
	StartDate   time.Time `json:"start_date"`
	Distance    float64   `json:"distance"`
	MovingTime  int       `json:"moving_time"`
	ElapsedTime int       `json:"elapsed_time"`
	PRRank      *int      `json:"pr_rank,omitempty"`
	KOMRank     *int      `json:"kom_rank,omitempty"`
}

// Gear is one piece of equipment in the athlete's gear catalog.
type Gear struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"` // "bike" or "shoes"
	BrandName string  `json:"brand_name,omitempty"`
	ModelName string  `json:"model_name,omitempty"`
	Distance  float64 `json:"distance"`
	Primary   bool    `json:"primary"`
	Retired   bool    `json:"retired"`
}

// Athlete is the authenticated account whose records are archived.
type Athlete struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	GearIDs   []string `json:"gear_ids,omitempty"`
}

// StreamSet is the GPS/sensor track of an activity, one slice per channel.
// Channels absent on the remote side are nil.
type StreamSet struct {
	Time           []int        `json:"time,omitempty"`
	LatLng         [][2]float64 `json:"latlng,omitempty"`
	Distance       []float64    `json:"distance,omitempty"`
	Altitude       []float64    `json:"altitude,omitempty"`
	VelocitySmooth []float64    `json:"velocity_smooth,omitempty"`
	Heartrate      []int        `json:"heartrate,omitempty"`
	Cadence        []int        `json:"cadence,omitempty"`
	Watts          []int        `json:"watts,omitempty"`
	Temp           []int        `json:"temp,omitempty"`
	Moving         []bool       `json:"moving,omitempty"`
	GradeSmooth    []float64    `json:"grade_smooth,omitempty"`
}

// Columns returns the names of the channels present, in a fixed order.
func (s *StreamSet) Columns() []string {
	var cols []string
	add := func(name string, n int) {
		if n > 0 {
			cols = append(cols, name)
		}
	}
	add("time", len(s.Time))
	add("latlng", len(s.LatLng))
	add("distance", len(s.Distance))
	add("altitude", len(s.Altitude))
	add("velocity_smooth", len(s.VelocitySmooth))
	add("heartrate", len(s.Heartrate))
	add("cadence", len(s.Cadence))
	add("watts", len(s.Watts))
	add("temp", len(s.Temp))
	add("moving", len(s.Moving))
	add("grade_smooth", len(s.GradeSmooth))
	return cols
}

// RowCount returns the length of the longest channel.
func (s *StreamSet) RowCount() int {
	n := 0
	for _, l := range []int{
		len(s.Time), len(s.LatLng), len(s.Distance), len(s.Altitude),
		len(s.VelocitySmooth), len(s.Heartrate), len(s.Cadence), len(s.Watts),
		len(s.Temp), len(s.Moving), len(s.GradeSmooth),
	} {
		if l > n {
			n = l
		}
	}
	return n
}

// HasGPS reports whether the set carries coordinates.
func (s *StreamSet) HasGPS() bool {
	return len(s.LatLng) > 0
}
