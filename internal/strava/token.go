package strava

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// TokenFile is the name of the token cache kept in the data directory.
const TokenFile = ".strava-token.json"

// LoadToken reads a cached token. A missing cache yields (nil, nil).
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token cache: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token cache: %w", err)
	}
	return &tok, nil
}

// SaveToken writes the token cache with owner-only permissions.
func SaveToken(path string, tok Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

// Newer returns whichever of a and b expires later. A cached token that was
// refreshed after the configuration was written wins over the configured one.
func Newer(a Token, b *Token) Token {
	if b == nil || b.AccessToken == "" {
		return a
	}
	if a.AccessToken == "" || b.ExpiresAt.After(a.ExpiresAt) {
		return *b
	}
	return a
}
