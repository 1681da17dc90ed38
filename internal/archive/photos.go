package archive

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/mykrok/internal/types"
)

// PhotoFilename returns the on-disk name of a photo: its capture instant
// (falling back to fallback) as a session-style key plus an extension taken
// from the download URL.
func PhotoFilename(p types.Photo, downloadURL string, fallback time.Time) string {
	ts := fallback
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		ts = *p.CreatedAt
	}
	return SessionKey(ts) + photoExt(downloadURL)
}

// PhotoFilenames assigns a distinct file name to every photo of act that has a
// downloadable rendition. When several photos share a capture second, each of
// them gets a suffix derived from its UniqueID, so names do not depend on the
// order the remote lists photos in. The result is keyed by photo index.
func PhotoFilenames(act *types.Activity) map[int]string {
	names := make(map[int]string, len(act.Photos))
	shared := make(map[string]int)
	for i, p := range act.Photos {
		u, ok := p.LargestURL()
		if !ok {
			continue
		}
		name := PhotoFilename(p, u, act.StartDate)
		names[i] = name
		shared[name]++
	}
	for i, name := range names {
		if shared[name] < 2 {
			continue
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		id := photoIDSuffix(act.Photos[i].UniqueID)
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		names[i] = base + "_" + id + ext
	}
	return names
}

// photoIDSuffix reduces a photo UniqueID to a short file-name-safe token.
func photoIDSuffix(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= 36 {
			break
		}
	}
	return b.String()
}

// PhotoExists reports whether a photo file with the given name is present.
func (a *Archive) PhotoExists(owner, key, name string) bool {
	info, err := os.Stat(filepath.Join(a.PhotosDir(owner, key), name))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// WritePhoto stores downloaded photo bytes under the record's photo directory.
func (a *Archive) WritePhoto(owner, key, name string, data []byte) (string, error) {
	if err := ValidateOwner(owner); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid photo name %q", name)
	}
	p := filepath.Join(a.PhotosDir(owner, key), name)
	if err := writeFileAtomic(p, data); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return p, nil
}

// PhotoFiles lists the image files stored for a record, sorted.
func (a *Archive) PhotoFiles(owner, key string) ([]string, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.PhotosDir(owner, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// CountPhotoFiles returns the number of image files stored for a record.
func (a *Archive) CountPhotoFiles(owner, key string) int {
	names, err := a.PhotoFiles(owner, key)
	if err != nil {
		return 0
	}
	return len(names)
}

func photoExt(downloadURL string) string {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return ".jpg"
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".png":
		return ".png"
	default:
		return ".jpg"
	}
}
