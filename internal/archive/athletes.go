package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// AthleteColumns are the columns of athletes.tsv, in order.
var AthleteColumns = []string{
	"username",
	"session_count",
	"first_activity",
	"last_activity",
	"total_distance_km",
	"total_moving_time_h",
	"activity_types",
}

// RegenerateAthletes rewrites athletes.tsv at the archive root with one row
// per owner, aggregated from that owner's sessions.tsv. An unreadable summary
// counts as empty.
func (a *Archive) RegenerateAthletes() (string, error) {
	owners, err := a.Owners()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := w.Write(AthleteColumns); err != nil {
		return "", err
	}
	for _, owner := range owners {
		rows, err := a.ReadSummary(owner)
		if err != nil {
			rows = nil
		}
		if err := w.Write(athleteRow(owner, rows)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode athletes: %w", err)
	}

	path := a.AthletesPath()
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, buf.Bytes()) {
		return path, nil
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write athletes: %w", err)
	}
	return path, nil
}

func athleteRow(owner string, rows []map[string]string) []string {
	var (
		first, last string
		distanceM   float64
		movingS     int
		sports      = make(map[string]bool)
	)
	for _, row := range rows {
		if dt := row["datetime"]; dt != "" {
			if first == "" || dt < first {
				first = dt
			}
			if dt > last {
				last = dt
			}
		}
		if v, err := strconv.ParseFloat(row["distance_m"], 64); err == nil {
			distanceM += v
		}
		if v, err := strconv.Atoi(row["moving_time_s"]); err == nil {
			movingS += v
		}
		if sport := row["sport"]; sport != "" {
			sports[sport] = true
		}
	}

	sportList := make([]string, 0, len(sports))
	for sport := range sports {
		sportList = append(sportList, sport)
	}
	sort.Strings(sportList)

	return []string{
		owner,
		strconv.Itoa(len(rows)),
		first,
		last,
		formatTenths(distanceM / 1000),
		formatTenths(float64(movingS) / 3600),
		strings.Join(sportList, ","),
	}
}

func formatTenths(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
}
