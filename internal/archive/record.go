package archive

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperengineering/mykrok/internal/types"
)

// Exists reports whether a metadata document is present for the record
// starting at the given instant.
func (a *Archive) Exists(owner string, start time.Time) bool {
	if ValidateOwner(owner) != nil {
		return false
	}
	info, err := os.Stat(a.InfoPath(owner, SessionKey(start)))
	return err == nil && info.Mode().IsRegular()
}

// Save writes the metadata document of a record, overwriting any previous
// version at the same key. The key is derived from the record's StartDate.
func (a *Archive) Save(owner string, act *types.Activity) (string, error) {
	if err := ValidateOwner(owner); err != nil {
		return "", err
	}
	if act.StartDate.IsZero() {
		return "", fmt.Errorf("save activity %d: missing start date", act.ID)
	}

	data, err := json.MarshalIndent(normalize(act), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal activity %d: %w", act.ID, err)
	}
	data = append(data, '\n')

	path := a.InfoPath(owner, SessionKey(act.StartDate))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("save activity %d: %w", act.ID, err)
	}
	return path, nil
}

// Load reads the record stored under key. It returns (nil, nil) when no
// metadata document exists, and ErrCorruptRecord when one exists but cannot
// be parsed. Missing optional fields take their defaults.
func (a *Archive) Load(owner, key string) (*types.Activity, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.InfoPath(owner, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}

	act := types.Activity{AthleteCount: 1}
	if err := json.Unmarshal(data, &act); err != nil {
		// A field of the wrong type still yields the fields decoded so far.
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || act.ID == 0 {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
		}
	}
	if act.SportType == "" {
		act.SportType = act.Type
	}
	return &act, nil
}

// ListAll loads every persisted record of an owner, newest first.
// Partitions without a metadata document are skipped.
func (a *Archive) ListAll(owner string) ([]*types.Activity, error) {
	keys, err := a.SessionKeys(owner)
	if err != nil {
		return nil, err
	}

	acts := make([]*types.Activity, 0, len(keys))
	for _, key := range keys {
		act, err := a.Load(owner, key)
		if err != nil {
			return nil, err
		}
		if act == nil {
			continue
		}
		acts = append(acts, act)
	}

	sort.SliceStable(acts, func(i, j int) bool {
		if acts[i].StartDate.Equal(acts[j].StartDate) {
			return acts[i].ID > acts[j].ID
		}
		return acts[i].StartDate.After(acts[j].StartDate)
	})
	return acts, nil
}

// normalize returns a copy with nil collections replaced by empty ones so the
// persisted document always carries every key.
func normalize(act *types.Activity) *types.Activity {
	out := *act
	out.StartDate = act.StartDate.UTC()
	if out.Comments == nil {
		out.Comments = []types.Comment{}
	}
	if out.Kudos == nil {
		out.Kudos = []types.Kudo{}
	}
	if out.Laps == nil {
		out.Laps = []types.Lap{}
	}
	if out.SegmentEfforts == nil {
		out.SegmentEfforts = []types.SegmentEffort{}
	}
	if out.Photos == nil {
		out.Photos = []types.Photo{}
	}
	return &out
}
