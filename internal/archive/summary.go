package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/hyperengineering/mykrok/internal/types"
)

// SummaryColumns are the columns of sessions.tsv, in order.
var SummaryColumns = []string{
	"datetime",
	"type",
	"sport",
	"name",
	"distance_m",
	"moving_time_s",
	"elapsed_time_s",
	"elevation_gain_m",
	"calories",
	"avg_hr",
	"max_hr",
	"avg_watts",
	"gear_id",
	"athletes",
	"kudos_count",
	"comment_count",
	"has_gps",
	"has_photos",
	"photo_count",
	"start_lat",
	"start_lng",
}

// RegenerateSummary rewrites the owner's sessions.tsv from every persisted
// record, oldest first. Output depends only on the records, so repeated runs
// over unchanged records are byte-identical.
func (a *Archive) RegenerateSummary(owner string) (string, error) {
	acts, err := a.ListAll(owner)
	if err != nil {
		return "", fmt.Errorf("list records: %w", err)
	}
	sort.SliceStable(acts, func(i, j int) bool {
		if acts[i].StartDate.Equal(acts[j].StartDate) {
			return acts[i].ID < acts[j].ID
		}
		return acts[i].StartDate.Before(acts[j].StartDate)
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := w.Write(SummaryColumns); err != nil {
		return "", err
	}
	for _, act := range acts {
		if err := w.Write(summaryRow(act)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	path := a.SummaryPath(owner)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, buf.Bytes()) {
		return path, nil
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// ReadSummary parses the owner's sessions.tsv into rows keyed by column.
// A missing file yields no rows.
func (a *Archive) ReadSummary(owner string) ([]map[string]string, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	f, err := os.Open(a.SummaryPath(owner))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func summaryRow(act *types.Activity) []string {
	lat, lng := "", ""
	if act.StartLatLng != nil {
		lat = formatFloat(act.StartLatLng.Lat)
		lng = formatFloat(act.StartLatLng.Lng)
	}
	gear := ""
	if act.GearID != nil {
		gear = *act.GearID
	}
	return []string{
		SessionKey(act.StartDate),
		act.Type,
		act.SportType,
		act.Name,
		formatFloat(act.Distance),
		strconv.Itoa(act.MovingTime),
		strconv.Itoa(act.ElapsedTime),
		formatOptFloat(act.TotalElevationGain),
		formatOptFloat(act.Calories),
		formatOptFloat(act.AverageHeartrate),
		formatOptFloat(act.MaxHeartrate),
		formatOptFloat(act.AverageWatts),
		gear,
		strconv.Itoa(act.AthleteCount),
		strconv.Itoa(act.KudosCount),
		strconv.Itoa(act.CommentCount),
		strconv.FormatBool(act.HasGPS),
		strconv.FormatBool(act.HasPhotos),
		strconv.Itoa(act.PhotoCount),
		lat,
		lng,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
