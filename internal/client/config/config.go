// Package config holds the client configuration file: where the data dir
// lives, which server to sync against, and how to reach the local control
// plane.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/savebox/savebox/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".savebox", "config.json")
	DefaultDataDir     = filepath.Join(home, "SaveBox")
	DefaultClientURL   = "http://localhost:8483"
	DefaultLogFilePath = filepath.Join(home, ".savebox", "logs", "savebox.log")
)

type Config struct {
	// DataDir is the root of the savebox workspace.
	DataDir string `json:"data_dir"`

	// ServerURL is the sync backend. Empty means no server is configured
	// and all saves report status accordingly.
	ServerURL string `json:"server_url,omitempty"`

	// ServerToken is the bearer token for the sync backend.
	ServerToken string `json:"server_token,omitempty"`

	// ClientURL is where the local control plane listens.
	ClientURL string `json:"client_url"`

	// ClientToken guards the control plane API. Empty disables auth.
	ClientToken string `json:"client_token,omitempty"`

	// RefreshIntervalSecs is the daemon's periodic refresh cadence.
	// Zero means the built-in default.
	RefreshIntervalSecs int `json:"refresh_interval_secs,omitempty"`

	// PackExcludes are extra glob patterns excluded from every container.
	PackExcludes []string `json:"pack_excludes,omitempty"`

	// WatchEnabled turns the filesystem watcher on in daemon mode.
	WatchEnabled bool `json:"-"`

	// Path is where this config was loaded from or will be saved to.
	Path string `json:"-"`
}

// Validate normalizes paths and checks the URLs. It mutates the config
// in place so a validated config is safe to hand to the daemon.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}

	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !utils.IsDirOrMissing(dataDir) {
		return fmt.Errorf("data dir %q is not a directory", dataDir)
	}
	if utils.DirExists(dataDir) && !utils.IsWritable(dataDir) {
		return fmt.Errorf("data dir %q is not writable", dataDir)
	}
	c.DataDir = dataDir

	if c.Path != "" {
		path, err := utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("config path: %w", err)
		}
		c.Path = path
	}

	if c.ServerURL != "" {
		if err := utils.ValidateURL(c.ServerURL); err != nil {
			return fmt.Errorf("invalid server url %q", c.ServerURL)
		}
		c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	}

	if c.ClientURL == "" {
		c.ClientURL = DefaultClientURL
	}
	u, err := url.Parse(c.ClientURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid client url %q", c.ClientURL)
	}

	return nil
}

// Save writes the config to its Path. The file carries tokens, so it is
// written user-only.
func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}

	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0600)
}

// LoadFromFile reads a config and applies defaults for the fields that do
// not persist.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	cfg.WatchEnabled = true
	if cfg.ClientURL == "" {
		cfg.ClientURL = DefaultClientURL
	}

	return &cfg, nil
}
