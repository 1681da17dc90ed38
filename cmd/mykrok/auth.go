package main

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/config"
	"github.com/hyperengineering/mykrok/internal/strava"
)

var (
	authClientID     string
	authClientSecret string
	authPort         int
	authForce        bool
)

// authTimeout bounds the wait for the browser redirect.
var authTimeout = 5 * time.Minute

// openBrowser launches the system browser on target.
var openBrowser = func(target string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", target)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		c = exec.Command("xdg-open", target)
	}
	return c.Start()
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize mykrok with Strava",
	Long: `Run the Strava OAuth flow.

Opens the Strava consent page in a browser and waits for the redirect on a
local callback port. The resulting token is cached in the data directory
and renewed automatically afterwards. An already valid token is kept
unless --force is given.`,
	Args: noArgs,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().StringVar(&authClientID, "client-id", "", "Strava API client ID (overrides config)")
	authCmd.Flags().StringVar(&authClientSecret, "client-secret", "", "Strava API client secret (overrides config)")
	authCmd.Flags().IntVar(&authPort, "port", 8000, "Local OAuth callback port")
	authCmd.Flags().BoolVar(&authForce, "force", false, "Re-authorize even if a valid token exists")
}

type authOutput struct {
	Status         string     `json:"status"`
	Message        string     `json:"message,omitempty"`
	AthleteID      int64      `json:"athlete_id"`
	Username       string     `json:"username"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func runAuth(cmd *cobra.Command, args []string) error {
	if authPort < 0 || authPort > 65535 {
		return usageErrorf("invalid arguments: port: must be between 0 and 65535")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if authClientID != "" {
		e.cfg.Strava.ClientID = authClientID
	}
	if authClientSecret != "" {
		e.cfg.Strava.ClientSecret = authClientSecret
	}
	ctx := cmd.Context()

	if !authForce {
		if tok := e.storedToken(); tok.AccessToken != "" {
			athlete, err := e.stravaClient(tok).GetAthlete(ctx)
			if err == nil {
				return printAuth(cmd, authOutput{
					Status:    "success",
					Message:   "Already authenticated",
					AthleteID: athlete.ID,
					Username:  athlete.Username,
				})
			}
			e.logger.Info("stored token not usable, re-authorizing", "error", err)
		}
	}

	if e.cfg.Strava.ClientID == "" || e.cfg.Strava.ClientSecret == "" {
		return &usageError{err: fmt.Errorf("%w: --client-id and --client-secret (or STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET) are required",
			config.ErrMissingCredentials)}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", authPort))
	if err != nil {
		return fmt.Errorf("listen for OAuth callback: %w", err)
	}
	redirect := fmt.Sprintf("http://localhost:%d/", ln.Addr().(*net.TCPAddr).Port)
	state := ulid.Make().String()
	authURL := strava.AuthorizeURL(e.cfg.Strava.AuthorizeURL, e.cfg.Strava.ClientID, redirect, state, authForce)

	fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL to authorize mykrok:\n  %s\n", authURL)
	if err := openBrowser(authURL); err != nil {
		e.logger.Debug("could not open browser", "error", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	code, err := strava.WaitForCode(waitCtx, ln, state)
	cancel()
	if err != nil {
		return fmt.Errorf("wait for authorization: %w", err)
	}

	client := e.stravaClient(strava.Token{})
	tok, err := client.Exchange(ctx, code)
	if err != nil {
		return err
	}
	athlete, err := client.GetAthlete(ctx)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	return printAuth(cmd, authOutput{
		Status:         "success",
		AthleteID:      athlete.ID,
		Username:       athlete.Username,
		TokenExpiresAt: &tok.ExpiresAt,
	})
}

func printAuth(cmd *cobra.Command, out authOutput) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), out)
	}
	w := cmd.OutOrStdout()
	if out.Message != "" {
		fmt.Fprintf(w, "%s as %s (id %d)\n", out.Message, out.Username, out.AthleteID)
		return nil
	}
	fmt.Fprintf(w, "Authenticated as %s (id %d)\n", out.Username, out.AthleteID)
	fmt.Fprintf(w, "Token expires at: %s\n", formatTime(out.TokenExpiresAt))
	return nil
}
