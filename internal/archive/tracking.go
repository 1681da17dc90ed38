package archive

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/hyperengineering/mykrok/internal/types"
)

// TrackManifest summarizes a persisted stream bundle.
type TrackManifest struct {
	RowCount int      `json:"row_count"`
	HasGPS   bool     `json:"has_gps"`
	Columns  []string `json:"columns"`
}

type trackDocument struct {
	Manifest TrackManifest    `json:"manifest"`
	Streams  *types.StreamSet `json:"streams"`
}

// SaveTracking persists the stream bundle of a record and returns its manifest.
func (a *Archive) SaveTracking(owner, key string, streams *types.StreamSet) (TrackManifest, error) {
	if err := ValidateOwner(owner); err != nil {
		return TrackManifest{}, err
	}
	manifest := TrackManifest{
		RowCount: streams.RowCount(),
		HasGPS:   streams.HasGPS(),
		Columns:  streams.Columns(),
	}
	data, err := json.Marshal(trackDocument{Manifest: manifest, Streams: streams})
	if err != nil {
		return TrackManifest{}, fmt.Errorf("marshal streams: %w", err)
	}
	if err := writeFileAtomic(a.TrackingPath(owner, key), data); err != nil {
		return TrackManifest{}, fmt.Errorf("save streams: %w", err)
	}
	return manifest, nil
}

// LoadTracking reads the stream bundle of a record. It returns (nil, nil, nil)
// when no track file exists.
func (a *Archive) LoadTracking(owner, key string) (*TrackManifest, *types.StreamSet, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(a.TrackingPath(owner, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var doc trackDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: track %s: %v", ErrCorruptRecord, key, err)
	}
	if doc.Streams == nil {
		doc.Streams = &types.StreamSet{}
	}
	return &doc.Manifest, doc.Streams, nil
}

// TrackReadable reports whether the record has a track file that parses and
// carries coordinates.
func (a *Archive) TrackReadable(owner, key string) bool {
	manifest, streams, err := a.LoadTracking(owner, key)
	if err != nil || manifest == nil {
		return false
	}
	return streams.HasGPS()
}
