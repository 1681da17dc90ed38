package archive

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/hyperengineering/mykrok/internal/types"
)

type gearDocument struct {
	Items []types.Gear `json:"items"`
}

// SaveGear replaces the owner's gear catalog. Items are sorted by ID.
func (a *Archive) SaveGear(owner string, gear []types.Gear) (string, error) {
	if err := ValidateOwner(owner); err != nil {
		return "", err
	}
	items := make([]types.Gear, len(gear))
	copy(items, gear)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	data, err := json.MarshalIndent(gearDocument{Items: items}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal gear: %w", err)
	}
	data = append(data, '\n')

	path := a.GearPath(owner)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("save gear: %w", err)
	}
	return path, nil
}

// LoadGear reads the owner's gear catalog; a missing catalog is empty.
func (a *Archive) LoadGear(owner string) ([]types.Gear, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.GearPath(owner))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Gear{}, nil
		}
		return nil, err
	}
	var doc gearDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: gear: %v", ErrCorruptRecord, err)
	}
	if doc.Items == nil {
		doc.Items = []types.Gear{}
	}
	return doc.Items, nil
}
