// Package gpx renders archived tracks as GPX 1.1 documents.
package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hyperengineering/mykrok/internal/types"
)

const (
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	tpxNamespace = "http://www.garmin.com/xmlschemas/TrackPointExtension/v1"
	creator      = "mykrok"
)

// Options select the sensor channels written as track point extensions.
type Options struct {
	HeartRate bool
	Cadence   bool
	Power     bool
}

func (o Options) any() bool { return o.HeartRate || o.Cadence || o.Power }

type document struct {
	XMLName  xml.Name `xml:"http://www.topografix.com/GPX/1/1 gpx"`
	Version  string   `xml:"version,attr"`
	Creator  string   `xml:"creator,attr"`
	TPX      string   `xml:"xmlns:gpxtpx,attr,omitempty"`
	Metadata metadata `xml:"metadata"`
	Track    track    `xml:"trk"`
}

type metadata struct {
	Name string `xml:"name,omitempty"`
	Time string `xml:"time"`
}

type track struct {
	Name    string  `xml:"name,omitempty"`
	Type    string  `xml:"type,omitempty"`
	Segment segment `xml:"trkseg"`
}

type segment struct {
	Points []point `xml:"trkpt"`
}

type point struct {
	Lat        string      `xml:"lat,attr"`
	Lon        string      `xml:"lon,attr"`
	Ele        string      `xml:"ele,omitempty"`
	Time       string      `xml:"time,omitempty"`
	Extensions *extensions `xml:"extensions,omitempty"`
}

type extensions struct {
	TPX   *trackPointExtension `xml:"gpxtpx:TrackPointExtension,omitempty"`
	Power *int                 `xml:"power,omitempty"`
}

type trackPointExtension struct {
	HeartRate *int `xml:"gpxtpx:hr,omitempty"`
	Cadence   *int `xml:"gpxtpx:cad,omitempty"`
}

// Encode writes act's track as a GPX document. Stream times are offsets in
// seconds from the activity start. It fails when the track has no coordinates.
func Encode(w io.Writer, act *types.Activity, streams *types.StreamSet, opts Options) error {
	if streams == nil || !streams.HasGPS() {
		return fmt.Errorf("activity %d has no GPS track", act.ID)
	}

	doc := document{
		Version: "1.1",
		Creator: creator,
		Metadata: metadata{
			Name: act.Name,
			Time: formatTime(act.StartDate),
		},
		Track: track{
			Name: act.Name,
			Type: act.SportType,
		},
	}
	if opts.HeartRate || opts.Cadence {
		doc.TPX = tpxNamespace
	}

	points := make([]point, len(streams.LatLng))
	for i, ll := range streams.LatLng {
		p := point{Lat: formatCoord(ll[0]), Lon: formatCoord(ll[1])}
		if i < len(streams.Altitude) {
			p.Ele = strconv.FormatFloat(streams.Altitude[i], 'f', 1, 64)
		}
		if i < len(streams.Time) {
			p.Time = formatTime(act.StartDate.Add(time.Duration(streams.Time[i]) * time.Second))
		}
		if opts.any() {
			p.Extensions = pointExtensions(streams, i, opts)
		}
		points[i] = p
	}
	doc.Track.Segment.Points = points

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode gpx: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func pointExtensions(s *types.StreamSet, i int, opts Options) *extensions {
	var ext extensions
	tpx := trackPointExtension{
		HeartRate: sample(opts.HeartRate, s.Heartrate, i),
		Cadence:   sample(opts.Cadence, s.Cadence, i),
	}
	if tpx.HeartRate != nil || tpx.Cadence != nil {
		ext.TPX = &tpx
	}
	ext.Power = sample(opts.Power, s.Watts, i)
	if ext.TPX == nil && ext.Power == nil {
		return nil
	}
	return &ext
}

func sample(enabled bool, values []int, i int) *int {
	if !enabled || i >= len(values) {
		return nil
	}
	v := values[i]
	return &v
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
