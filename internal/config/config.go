// Package config loads and persists the Mindwtr configuration file
// (~/.config/mindwtr/config.yaml): backend selection, credentials, paths,
// and daemon tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Backend selects where snapshots are synced to.
type Backend string

const (
	BackendOff    Backend = "off"
	BackendFile   Backend = "file"
	BackendWebDAV Backend = "webdav"
	BackendCloud  Backend = "cloud"
)

// CloudProvider picks the concrete transport behind the cloud backend.
type CloudProvider string

const (
	ProviderSelfHosted CloudProvider = "selfhosted"
	ProviderDropbox    CloudProvider = "dropbox"
)

// WebDAV holds basic-auth WebDAV endpoint settings.
type WebDAV struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Cloud holds self-hosted endpoint settings.
type Cloud struct {
	URL      string        `mapstructure:"url"`
	Token    string        `mapstructure:"token"`
	Provider CloudProvider `mapstructure:"provider"`
}

// Dropbox holds OAuth material for the Dropbox backend. AccessToken is
// rewritten in place when a 401 forces a refresh.
type Dropbox struct {
	AppKey       string `mapstructure:"app_key"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	Path         string `mapstructure:"path"`
}

// Sync groups every backend-related setting.
type Sync struct {
	Backend  Backend `mapstructure:"backend"`
	FilePath string  `mapstructure:"file_path"`
	WebDAV   WebDAV  `mapstructure:"webdav"`
	Cloud    Cloud   `mapstructure:"cloud"`
	Dropbox  Dropbox `mapstructure:"dropbox"`

	TombstoneRetentionDays int `mapstructure:"tombstone_retention_days"`
}

// Daemon tunes the background sync loop.
type Daemon struct {
	Interval time.Duration `mapstructure:"interval"`
	LogFile  string        `mapstructure:"log_file"`
}

// Config is the full persisted configuration.
type Config struct {
	DataPath      string `mapstructure:"data_path"`
	Sync          Sync   `mapstructure:"sync"`
	Daemon        Daemon `mapstructure:"daemon"`
	DashboardPort int    `mapstructure:"dashboard_port"`

	v    *viper.Viper
	path string
}

// DefaultDir returns the configuration directory, honoring the
// MINDWTR_CONFIG_DIR override used by tests.
func DefaultDir() string {
	if dir := os.Getenv("MINDWTR_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mindwtr"
	}
	return filepath.Join(home, ".config", "mindwtr")
}

// Load reads the configuration from dir (DefaultDir when empty). A missing
// file is not an error: defaults apply and the file is created on first Save.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	v := viper.New()
	path := filepath.Join(dir, "config.yaml")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("data_path", filepath.Join(dir, "data.json"))
	v.SetDefault("sync.backend", string(BackendOff))
	v.SetDefault("sync.cloud.provider", string(ProviderSelfHosted))
	v.SetDefault("sync.dropbox.path", "/mindwtr/data.json")
	v.SetDefault("sync.tombstone_retention_days", 90)
	v.SetDefault("daemon.interval", "15m")
	v.SetDefault("dashboard_port", 8787)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{v: v, path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Set updates a single key (viper dotted notation) in memory.
// Call Save to persist.
func (c *Config) Set(key string, value any) error {
	c.v.Set(key, value)
	return c.v.Unmarshal(c)
}

// Get returns the raw value for a dotted key.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// Save writes the configuration file, creating its directory if needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("write config %s: %w", c.path, err)
	}
	return nil
}

// Path returns the configuration file location.
func (c *Config) Path() string {
	return c.path
}

// SetDropboxAccessToken persists a refreshed Dropbox access token so the next
// process start does not need another refresh round-trip.
func (c *Config) SetDropboxAccessToken(token string) error {
	if err := c.Set("sync.dropbox.access_token", token); err != nil {
		return err
	}
	return c.Save()
}
