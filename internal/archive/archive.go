// Package archive is the file-based record store: one partition per owner,
// one partition per record keyed by start instant, plus derived per-owner files.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Archive is a date-partitioned record store rooted at a data directory.
// Reads and writes are synchronous; there is no caching layer.
type Archive struct {
	root string
}

// New creates an archive rooted at root. The directory is created lazily on
// first write so read-only use never touches the filesystem.
func New(root string) (*Archive, error) {
	if strings.HasPrefix(root, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		root = filepath.Join(home, root[2:])
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	return &Archive{root: abs}, nil
}

// Root returns the absolute data directory.
func (a *Archive) Root() string {
	return a.root
}

// Owners returns the owners that have a partition, sorted.
func (a *Archive) Owners() ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var owners []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), OwnerPrefix) {
			continue
		}
		owner := strings.TrimPrefix(e.Name(), OwnerPrefix)
		if ValidateOwner(owner) != nil {
			continue
		}
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// SessionKeys returns the record keys of an owner, newest first.
// Directories whose name is not a valid key are ignored.
func (a *Archive) SessionKeys(owner string) ([]string, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.OwnerDir(owner))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read owner directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), SessionPrefix) {
			continue
		}
		key := strings.TrimPrefix(e.Name(), SessionPrefix)
		if _, err := ParseSessionKey(key); err != nil {
			continue
		}
		keys = append(keys, key)
	}
	// Keys are fixed-width timestamps, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// EnsureSessionDir creates the partition directory of a record.
func (a *Archive) EnsureSessionDir(owner, key string) (string, error) {
	if err := ValidateOwner(owner); err != nil {
		return "", err
	}
	dir := a.SessionDir(owner, key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	return dir, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
