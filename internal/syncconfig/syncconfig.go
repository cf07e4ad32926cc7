// Package syncconfig reads the rwalk client configuration from
// ~/.config/rwalk/config.yaml and the stored credentials from auth.json.
// Every getter resolves RWALK_* env > file > default.
package syncconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotLoggedIn means no credentials are stored.
var ErrNotLoggedIn = errors.New("not logged in")

// ServerConfig locates the sync server.
type ServerConfig struct {
	URL string `yaml:"url,omitempty"`
}

// SyncConfig holds sync engine settings.
type SyncConfig struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"` // default 3
	Interval    string `yaml:"interval,omitempty"`     // duration, default "5m"; "0" disables
	HTTPTimeout string `yaml:"http_timeout,omitempty"` // duration, default "30s"
	OnStart     *bool  `yaml:"on_start,omitempty"`     // nil = default true
}

// StoreConfig locates the local store.
type StoreConfig struct {
	Dir string `yaml:"dir,omitempty"` // default: home directory
}

// Config is the client config stored at ~/.config/rwalk/config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Sync   SyncConfig   `yaml:"sync"`
	Store  StoreConfig  `yaml:"store"`
}

// AuthCredentials stores authentication state at ~/.config/rwalk/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ServerURL string `json:"server_url"`
}

const (
	defaultServerURL   = "http://localhost:8080"
	defaultMaxAttempts = 3
	defaultInterval    = 5 * time.Minute
	defaultHTTPTimeout = 30 * time.Second
)

// ConfigDir returns ~/.config/rwalk (or RWALK_CONFIG_DIR), creating it if necessary.
func ConfigDir() (string, error) {
	dir := os.Getenv("RWALK_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "rwalk")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the path of config.yaml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadConfig reads config.yaml. A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveConfig writes config.yaml.
func SaveConfig(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Set updates one dotted key in config.yaml, e.g. "sync.max_attempts".
func Set(key, value string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	switch key {
	case "server.url":
		cfg.Server.URL = strings.TrimRight(value, "/")
	case "sync.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("sync.max_attempts must be a positive integer")
		}
		cfg.Sync.MaxAttempts = n
	case "sync.interval", "sync.http_timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if key == "sync.interval" {
			cfg.Sync.Interval = value
		} else {
			cfg.Sync.HTTPTimeout = value
		}
	case "sync.on_start":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("sync.on_start: %w", err)
		}
		cfg.Sync.OnStart = &b
	case "store.dir":
		cfg.Store.Dir = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return SaveConfig(cfg)
}

// Keys lists the keys Set accepts.
func Keys() []string {
	return []string{"server.url", "sync.max_attempts", "sync.interval", "sync.http_timeout", "sync.on_start", "store.dir"}
}

// LoadAuth reads auth credentials from auth.json. Missing credentials are
// (nil, nil).
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth credentials to auth.json (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the sync server URL.
// Priority: RWALK_SERVER_URL env > config.yaml > auth.json > default.
func GetServerURL() string {
	if v := os.Getenv("RWALK_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Server.URL != "" {
		return cfg.Server.URL
	}
	if creds, err := LoadAuth(); err == nil && creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: RWALK_API_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("RWALK_API_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetMaxAttempts returns the per-item retry ceiling.
// Priority: RWALK_SYNC_MAX_ATTEMPTS env > config.yaml sync.max_attempts > 3.
func GetMaxAttempts() int {
	if v := os.Getenv("RWALK_SYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.MaxAttempts > 0 {
		return cfg.Sync.MaxAttempts
	}
	return defaultMaxAttempts
}

// GetSyncInterval returns the periodic sync interval; zero disables it.
// Priority: RWALK_SYNC_INTERVAL env > config.yaml sync.interval > 5m.
func GetSyncInterval() time.Duration {
	return durationSetting("RWALK_SYNC_INTERVAL", func(c *Config) string { return c.Sync.Interval }, defaultInterval)
}

// GetHTTPTimeout returns the per-request timeout of the sync client.
// Priority: RWALK_SYNC_HTTP_TIMEOUT env > config.yaml sync.http_timeout > 30s.
func GetHTTPTimeout() time.Duration {
	return durationSetting("RWALK_SYNC_HTTP_TIMEOUT", func(c *Config) string { return c.Sync.HTTPTimeout }, defaultHTTPTimeout)
}

func durationSetting(env string, field func(*Config) string, def time.Duration) time.Duration {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	if cfg, err := LoadConfig(); err == nil {
		if v := field(cfg); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				return d
			}
		}
	}
	return def
}

// GetSyncOnStart returns whether commands sync when they start online.
// Priority: RWALK_SYNC_ON_START env > config.yaml sync.on_start > true.
func GetSyncOnStart() bool {
	if v := parseBoolEnv("RWALK_SYNC_ON_START"); v != nil {
		return *v
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.OnStart != nil {
		return *cfg.Sync.OnStart
	}
	return true
}

// GetStoreDir returns the directory holding the local store.
// Priority: RWALK_DATA_DIR env > config.yaml store.dir > home directory.
func GetStoreDir() (string, error) {
	if v := os.Getenv("RWALK_DATA_DIR"); v != "" {
		return v, nil
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Store.Dir != "" {
		return expandHome(cfg.Store.Dir)
	}
	return os.UserHomeDir()
}

func expandHome(p string) (string, error) {
	rest, ok := strings.CutPrefix(p, "~")
	if !ok {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, rest), nil
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	v = strings.ToLower(v)
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

// Session is the signed-in user as recorded by `rwalk login`. It works
// offline: the user id is read from auth.json, never from the server.
type Session struct{}

// UserID implements the sync identity.
// Priority: RWALK_USER_ID env > auth.json.
func (Session) UserID(ctx context.Context) (string, error) {
	if v := os.Getenv("RWALK_USER_ID"); v != "" {
		return v, nil
	}
	creds, err := LoadAuth()
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	if creds == nil || creds.UserID == "" {
		return "", ErrNotLoggedIn
	}
	return creds.UserID, nil
}
