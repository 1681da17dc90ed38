// Package config loads mykrok configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/mykrok/internal/retry"
)

// DefaultConfigPath is used when MYKROK_CONFIG_PATH is unset.
const DefaultConfigPath = "~/.config/mykrok/config.yaml"

// ErrMissingCredentials is returned by RequireStrava when no usable Strava
// credentials are configured.
var ErrMissingCredentials = errors.New("strava credentials not configured")

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Strava StravaConfig `yaml:"strava"`
	Data   DataConfig   `yaml:"data"`
	Sync   SyncConfig   `yaml:"sync"`
	Retry  RetryConfig  `yaml:"retry"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Mirror MirrorConfig `yaml:"mirror"`
}

// StravaConfig contains remote API credentials and client settings.
type StravaConfig struct {
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	AccessToken    string   `yaml:"access_token"`
	RefreshToken   string   `yaml:"refresh_token"`
	TokenExpiresAt int64    `yaml:"token_expires_at"`
	BaseURL        string   `yaml:"base_url"`
	TokenURL       string   `yaml:"token_url"`
	AuthorizeURL   string   `yaml:"authorize_url"`
	Timeout        Duration `yaml:"timeout"`
}

// DataConfig contains archive settings.
type DataConfig struct {
	Directory string `yaml:"directory"`
}

// SyncConfig controls the optional steps of the sync pipeline.
type SyncConfig struct {
	Photos      bool     `yaml:"photos"`
	Streams     bool     `yaml:"streams"`
	Comments    bool     `yaml:"comments"`
	PhotoDelay  Duration `yaml:"photo_delay"`
	SocialDelay Duration `yaml:"social_delay"`
}

// RetryConfig contains the retry queue backoff policy.
type RetryConfig struct {
	BaseDelay    Duration `yaml:"base_delay"`
	GrowthFactor float64  `yaml:"growth_factor"`
	MaxDelay     Duration `yaml:"max_delay"`
	MaxRetries   int      `yaml:"max_retries"`
}

// Policy converts the configuration into a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		BaseDelay:    time.Duration(r.BaseDelay),
		GrowthFactor: r.GrowthFactor,
		MaxDelay:     time.Duration(r.MaxDelay),
		MaxRetries:   r.MaxRetries,
	}
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig contains browse server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// SyncInterval schedules incremental syncs while serving; zero disables.
	SyncInterval Duration `yaml:"sync_interval"`
}

// MirrorConfig contains S3-compatible mirror settings.
// An empty Bucket disables mirroring.
type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"-"` // env-only, never in YAML
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := expandHome(getEnv("MYKROK_CONFIG_PATH", DefaultConfigPath))

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireStrava checks that the configuration can authenticate against the
// remote API. Only commands that talk to the remote call it.
func (c *Config) RequireStrava() error {
	s := c.Strava
	if s.AccessToken != "" {
		return nil
	}
	if s.RefreshToken == "" {
		return fmt.Errorf("%w: set STRAVA_ACCESS_TOKEN or STRAVA_REFRESH_TOKEN", ErrMissingCredentials)
	}
	if s.ClientID == "" || s.ClientSecret == "" {
		return fmt.Errorf("%w: STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required to refresh tokens", ErrMissingCredentials)
	}
	return nil
}

// TokenExpiry returns the configured access token expiry, zero when unknown.
func (c *Config) TokenExpiry() time.Time {
	if c.Strava.TokenExpiresAt <= 0 {
		return time.Time{}
	}
	return time.Unix(c.Strava.TokenExpiresAt, 0).UTC()
}

// DataDir returns the archive directory with ~ expanded.
func (c *Config) DataDir() string {
	return expandHome(c.Data.Directory)
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	policy := retry.DefaultPolicy()
	return &Config{
		Strava: StravaConfig{
			Timeout: Duration(30 * time.Second),
		},
		Data: DataConfig{
			Directory: "~/.local/share/mykrok",
		},
		Sync: SyncConfig{
			Photos:      true,
			Streams:     true,
			Comments:    true,
			PhotoDelay:  Duration(100 * time.Millisecond),
			SocialDelay: Duration(200 * time.Millisecond),
		},
		Retry: RetryConfig{
			BaseDelay:    Duration(policy.BaseDelay),
			GrowthFactor: policy.GrowthFactor,
			MaxDelay:     Duration(policy.MaxDelay),
			MaxRetries:   policy.MaxRetries,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Strava (names follow the remote's own conventions)
	if v := os.Getenv("STRAVA_CLIENT_ID"); v != "" {
		cfg.Strava.ClientID = v
	}
	if v := os.Getenv("STRAVA_CLIENT_SECRET"); v != "" {
		cfg.Strava.ClientSecret = v
	}
	if v := os.Getenv("STRAVA_ACCESS_TOKEN"); v != "" {
		cfg.Strava.AccessToken = v
	}
	if v := os.Getenv("STRAVA_REFRESH_TOKEN"); v != "" {
		cfg.Strava.RefreshToken = v
	}

	// Data
	if v := os.Getenv("MYKROK_DATA_DIR"); v != "" {
		cfg.Data.Directory = v
	}

	// Log
	if v := os.Getenv("MYKROK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MYKROK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Server
	if v := os.Getenv("MYKROK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MYKROK_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.SyncInterval = Duration(d)
		}
	}

	// Mirror
	if v := os.Getenv("MYKROK_MIRROR_ENDPOINT"); v != "" {
		cfg.Mirror.Endpoint = v
	}
	if v := os.Getenv("MYKROK_MIRROR_BUCKET"); v != "" {
		cfg.Mirror.Bucket = v
	}
	if v := os.Getenv("MYKROK_MIRROR_PREFIX"); v != "" {
		cfg.Mirror.Prefix = v
	}
	if v := os.Getenv("MYKROK_MIRROR_REGION"); v != "" {
		cfg.Mirror.Region = v
	}
	if v := os.Getenv("MYKROK_MIRROR_ACCESS_KEY"); v != "" {
		cfg.Mirror.AccessKey = v
	}
	if v := os.Getenv("MYKROK_MIRROR_SECRET_KEY"); v != "" {
		cfg.Mirror.SecretKey = v
	}
	if v := os.Getenv("MYKROK_MIRROR_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Mirror.UseSSL = &useSSL
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Data.Directory) == "" {
		return errors.New("data directory is required")
	}
	if err := c.Retry.Policy().Validate(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Sync.PhotoDelay < 0 || c.Sync.SocialDelay < 0 {
		return errors.New("sync delays must not be negative")
	}
	if c.Server.SyncInterval < 0 {
		return errors.New("server sync interval must not be negative")
	}
	if c.Mirror.Bucket != "" && c.Mirror.Endpoint == "" {
		return errors.New("mirror endpoint is required when a mirror bucket is set")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
