package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/mykrok/internal/config"
	"github.com/hyperengineering/mykrok/internal/strava"
)

// writeAuthConfig writes a config with application credentials but no token.
func writeAuthConfig(t *testing.T, dataDir, baseURL string) string {
	t.Helper()
	path := writeConfig(t, dataDir, "")
	extra := fmt.Sprintf("strava:\n  client_id: \"123\"\n  client_secret: shh\n  base_url: %q\n  token_url: %q\n",
		baseURL, baseURL+"/oauth/token")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("append config: %v", err)
	}
	return path
}

// approveInBrowser replaces the browser with a client that follows the
// consent redirect carrying code.
func approveInBrowser(t *testing.T, code string) *int {
	t.Helper()
	opened := 0
	prev := openBrowser
	t.Cleanup(func() { openBrowser = prev })
	openBrowser = func(target string) error {
		opened++
		u, err := url.Parse(target)
		if err != nil {
			return err
		}
		q := u.Query()
		if q.Get("client_id") != "123" {
			t.Errorf("client_id = %q", q.Get("client_id"))
		}
		cb := q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&code=" + code
		go func() {
			resp, err := http.Get(cb)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
	return &opened
}

func TestAuth_BrowserFlowCachesToken(t *testing.T) {
	_, baseURL := newFakeStrava(t)
	dataDir := t.TempDir()
	cfg := writeAuthConfig(t, dataDir, baseURL)
	opened := approveInBrowser(t, "good")

	stdout, _, err := executeCmd(t, "auth", "--config", cfg, "--port", "0", "--json")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	var out struct {
		Status    string `json:"status"`
		AthleteID int64  `json:"athlete_id"`
		Username  string `json:"username"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if out.Status != "success" || out.AthleteID != 42 || out.Username != "runner" {
		t.Errorf("unexpected output: %+v", out)
	}
	if *opened != 1 {
		t.Errorf("browser opened %d times, want 1", *opened)
	}

	tok, err := strava.LoadToken(filepath.Join(dataDir, strava.TokenFile))
	if err != nil || tok == nil {
		t.Fatalf("token cache: %v, %v", tok, err)
	}
	if tok.AccessToken != "granted" || tok.RefreshToken != "rt" {
		t.Errorf("cached token = %+v", tok)
	}

	// A valid cached token is kept.
	stdout, _, err = executeCmd(t, "auth", "--config", cfg, "--port", "0")
	if err != nil {
		t.Fatalf("second auth: %v", err)
	}
	if !strings.Contains(stdout, "Already authenticated as runner") {
		t.Errorf("unexpected output: %q", stdout)
	}
	if *opened != 1 {
		t.Errorf("browser reopened without --force")
	}

	// The cached token is enough to sync.
	if _, _, err := executeCmd(t, "sync", "--config", cfg); err != nil {
		t.Fatalf("sync with cached token: %v", err)
	}
}

func TestAuth_ForceReauthorizes(t *testing.T) {
	_, baseURL := newFakeStrava(t)
	dataDir := t.TempDir()
	cfg := writeAuthConfig(t, dataDir, baseURL)
	opened := approveInBrowser(t, "good")

	for i := 0; i < 2; i++ {
		if _, _, err := executeCmd(t, "auth", "--config", cfg, "--port", "0", "--force"); err != nil {
			t.Fatalf("auth %d: %v", i, err)
		}
	}
	if *opened != 2 {
		t.Errorf("browser opened %d times, want 2", *opened)
	}
}

func TestAuth_RejectedCodeFails(t *testing.T) {
	_, baseURL := newFakeStrava(t)
	dataDir := t.TempDir()
	cfg := writeAuthConfig(t, dataDir, baseURL)
	approveInBrowser(t, "bad")

	_, _, err := executeCmd(t, "auth", "--config", cfg, "--port", "0")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit code = %d, want %d", got, exitFailure)
	}
	if _, err := os.Stat(filepath.Join(dataDir, strava.TokenFile)); !os.IsNotExist(err) {
		t.Errorf("token cache written after failed exchange: %v", err)
	}
}

func TestAuth_MissingClientCredentials(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "")

	_, _, err := executeCmd(t, "auth", "--config", cfg, "--port", "0")
	if !errors.Is(err, config.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if got := exitCode(err); got != exitUsage {
		t.Errorf("exit code = %d, want %d", got, exitUsage)
	}
}
