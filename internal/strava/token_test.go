package strava

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", TokenFile)

	missing, err := LoadToken(path)
	require.NoError(t, err)
	assert.Nil(t, missing)

	tok := Token{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, SaveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tok.RefreshToken, got.RefreshToken)
	assert.True(t, tok.ExpiresAt.Equal(got.ExpiresAt))
}

func TestNewer(t *testing.T) {
	early := Token{AccessToken: "early", ExpiresAt: time.Unix(100, 0)}
	late := Token{AccessToken: "late", ExpiresAt: time.Unix(200, 0)}

	assert.Equal(t, "late", Newer(early, &late).AccessToken)
	assert.Equal(t, "late", Newer(late, &early).AccessToken)
	assert.Equal(t, "early", Newer(early, nil).AccessToken)
	assert.Equal(t, "late", Newer(Token{}, &late).AccessToken)
}
