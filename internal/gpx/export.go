package gpx

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/mykrok/internal/archive"
)

// ExportOptions select which archived records of one owner are exported.
type ExportOptions struct {
	Owner     string
	OutputDir string
	// Sessions limits the export to these session keys. Empty exports all.
	Sessions []string
	After    *time.Time
	Before   *time.Time
	Options
}

// ExportResult reports an export run.
type ExportResult struct {
	Athlete  string   `json:"athlete"`
	Exported int      `json:"exported"`
	Skipped  int      `json:"skipped"`
	Files    []string `json:"files"`
}

// Exporter writes archived tracks as GPX files.
type Exporter struct {
	archive *archive.Archive
	logger  *slog.Logger
}

// NewExporter creates an Exporter over arc.
func NewExporter(arc *archive.Archive, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{archive: arc, logger: logger.With("component", "gpx")}
}

// Export writes one <session>.gpx per selected record that has a GPS track.
// Records without a track are skipped. Unreadable records are logged and
// skipped.
func (e *Exporter) Export(opts ExportOptions) (*ExportResult, error) {
	keys := opts.Sessions
	if len(keys) == 0 {
		var err error
		if keys, err = e.archive.SessionKeys(opts.Owner); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	result := &ExportResult{Athlete: opts.Owner, Files: []string{}}
	for _, key := range keys {
		act, err := e.archive.Load(opts.Owner, key)
		if err != nil || act == nil {
			e.logger.Warn("skipping unreadable record", "session", key, "error", err)
			result.Skipped++
			continue
		}
		if opts.After != nil && !act.StartDate.After(*opts.After) {
			continue
		}
		if opts.Before != nil && !act.StartDate.Before(*opts.Before) {
			continue
		}

		_, streams, err := e.archive.LoadTracking(opts.Owner, key)
		if err != nil || streams == nil || !streams.HasGPS() {
			e.logger.Debug("no GPS track", "session", key, "error", err)
			result.Skipped++
			continue
		}

		var buf bytes.Buffer
		if err := Encode(&buf, act, streams, opts.Options); err != nil {
			return result, err
		}
		path := filepath.Join(opts.OutputDir, key+".gpx")
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return result, fmt.Errorf("write %s: %w", path, err)
		}
		result.Exported++
		result.Files = append(result.Files, path)
	}

	e.logger.Info("gpx export completed",
		"athlete", opts.Owner,
		"exported", result.Exported,
		"skipped", result.Skipped,
	)
	return result, nil
}
