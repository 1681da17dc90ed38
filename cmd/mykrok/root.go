package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/config"
	"github.com/hyperengineering/mykrok/internal/mirror"
	"github.com/hyperengineering/mykrok/internal/strava"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	configPath  string
	dataDirFlag string
	jsonOutput  bool
	verbosity   int
)

var rootCmd = &cobra.Command{
	Use:           "mykrok",
	Short:         "MyKrok - Strava activity backup",
	Long:          "Back up Strava activities, tracks, photos and social data into a local archive and keep it in sync.",
	Args:          noArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (overrides MYKROK_CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Archive directory (overrides config and MYKROK_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase progress output (-v per record, -vv per file)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(refreshSocialCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(retriesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gpxCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration honoring --config and --data-dir.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Data.Directory = dataDirFlag
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr and installs it as default.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// env bundles what every command needs.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	archive *archive.Archive
}

// setup loads configuration, logging and the archive.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	arc, err := archive.New(cfg.DataDir())
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, archive: arc}, nil
}

// tokenPath is the token cache kept in the data directory.
func (e *env) tokenPath() string {
	return filepath.Join(e.cfg.DataDir(), strava.TokenFile)
}

// stravaClient builds a remote client holding token. Refreshed tokens are
// written to the token cache.
func (e *env) stravaClient(token strava.Token) *strava.Client {
	path := e.tokenPath()
	return strava.New(strava.Config{
		BaseURL:      e.cfg.Strava.BaseURL,
		TokenURL:     e.cfg.Strava.TokenURL,
		ClientID:     e.cfg.Strava.ClientID,
		ClientSecret: e.cfg.Strava.ClientSecret,
		Token:        token,
		Timeout:      time.Duration(e.cfg.Strava.Timeout),
		Logger:       e.logger,
		OnTokenRefresh: func(tok strava.Token) {
			if err := strava.SaveToken(path, tok); err != nil {
				e.logger.Warn("failed to cache refreshed token", "error", err)
			}
		},
	})
}

// storedToken merges the configured token with the token cache, preferring
// whichever expires later.
func (e *env) storedToken() strava.Token {
	cached, err := strava.LoadToken(e.tokenPath())
	if err != nil {
		e.logger.Warn("ignoring unreadable token cache", "path", e.tokenPath(), "error", err)
		cached = nil
	}
	return strava.Newer(strava.Token{
		AccessToken:  e.cfg.Strava.AccessToken,
		RefreshToken: e.cfg.Strava.RefreshToken,
		ExpiresAt:    e.cfg.TokenExpiry(),
	}, cached)
}

// newClient returns a remote client from configured or cached credentials.
// It fails when neither holds a usable token.
func (e *env) newClient() (*strava.Client, error) {
	token := e.storedToken()
	if token.AccessToken == "" {
		if err := e.cfg.RequireStrava(); err != nil {
			return nil, err
		}
	}
	return e.stravaClient(token), nil
}

// newService wires the remote client, mirror and archive into a backup
// service. It fails when no Strava credentials are configured.
func (e *env) newService(cmd *cobra.Command) (*backup.Service, error) {
	client, err := e.newClient()
	if err != nil {
		return nil, err
	}

	m, err := mirror.New(e.cfg.Mirror)
	if err != nil {
		return nil, fmt.Errorf("configure mirror: %w", err)
	}

	return backup.New(backup.Deps{
		Remote:   client,
		Archive:  e.archive,
		Mirror:   m,
		Logger:   e.logger,
		Reporter: newReporter(cmd.ErrOrStderr(), verbosity, jsonOutput),
	}, serviceConfig(e.cfg)), nil
}

func serviceConfig(cfg *config.Config) backup.Config {
	return backup.Config{
		Photos:      cfg.Sync.Photos,
		Streams:     cfg.Sync.Streams,
		Comments:    cfg.Sync.Comments,
		PhotoDelay:  time.Duration(cfg.Sync.PhotoDelay),
		SocialDelay: time.Duration(cfg.Sync.SocialDelay),
		Policy:      cfg.Retry.Policy(),
	}
}

// newReporter prints progress up to the requested verbosity. Progress is
// suppressed in JSON mode so stdout stays machine-readable.
func newReporter(w io.Writer, level int, quiet bool) backup.Reporter {
	return backup.ReporterFunc(func(l int, msg string) {
		if quiet || l > level {
			return
		}
		fmt.Fprintln(w, msg)
	})
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "mykrok", Version)
		return nil
	},
}
