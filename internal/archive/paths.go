package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	sessionKeyLayout = "20060102T150405"

	infoFile     = "info.json"
	trackingFile = "tracking.json"
	photosDir    = "photos"
	summaryFile  = "sessions.tsv"
	gearFile     = "gear.json"
	ledgerFile   = "sync.db"
	athletesFile = "athletes.tsv"
)

// SessionKey returns the partition key of a start instant: UTC, second precision.
func SessionKey(t time.Time) string {
	return t.UTC().Format(sessionKeyLayout)
}

// ParseSessionKey is the inverse of SessionKey.
func ParseSessionKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(sessionKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSessionKey, key)
	}
	return t, nil
}

// OwnerDir returns the partition directory of an owner.
func (a *Archive) OwnerDir(owner string) string {
	return filepath.Join(a.root, OwnerPrefix+owner)
}

// SessionDir returns the partition directory of one record.
func (a *Archive) SessionDir(owner, key string) string {
	return filepath.Join(a.OwnerDir(owner), SessionPrefix+key)
}

// InfoPath returns the metadata document path of one record.
func (a *Archive) InfoPath(owner, key string) string {
	return filepath.Join(a.SessionDir(owner, key), infoFile)
}

// TrackingPath returns the track file path of one record.
func (a *Archive) TrackingPath(owner, key string) string {
	return filepath.Join(a.SessionDir(owner, key), trackingFile)
}

// PhotosDir returns the photo directory of one record.
func (a *Archive) PhotosDir(owner, key string) string {
	return filepath.Join(a.SessionDir(owner, key), photosDir)
}

// SummaryPath returns the path of the owner's tabular summary.
func (a *Archive) SummaryPath(owner string) string {
	return filepath.Join(a.OwnerDir(owner), summaryFile)
}

// GearPath returns the path of the owner's gear catalog.
func (a *Archive) GearPath(owner string) string {
	return filepath.Join(a.OwnerDir(owner), gearFile)
}

// LedgerPath returns the path of the owner's sync ledger database.
func (a *Archive) LedgerPath(owner string) string {
	return filepath.Join(a.OwnerDir(owner), ledgerFile)
}

// AthletesPath returns the path of the data-directory athlete index.
func (a *Archive) AthletesPath() string {
	return filepath.Join(a.root, athletesFile)
}

// RelPath returns path relative to the archive root using forward slashes.
func (a *Archive) RelPath(path string) (string, error) {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside archive root", path)
	}
	return filepath.ToSlash(rel), nil
}
