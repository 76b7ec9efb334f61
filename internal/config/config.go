// Package config loads userdir settings from a TOML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/steveyegge/userdir/internal/slack"
	"github.com/steveyegge/userdir/internal/user"
)

// EnvVarRoot is the environment variable that overrides the settings root.
const EnvVarRoot = "USERDIR_ROOT"

// Store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// ErrInvalidConfig indicates a config value that failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds userdir settings.
type Config struct {
	// Store selects the snapshot backend: json, sqlite or memory.
	Store string `toml:"store" env:"USERDIR_STORE"`

	// Path overrides the snapshot location. Empty means the backend default
	// under the settings root.
	Path string `toml:"path,omitempty" env:"USERDIR_STORE_PATH"`

	// UpdatePolicy is "strict" or "upsert".
	UpdatePolicy string `toml:"update_policy" env:"USERDIR_UPDATE_POLICY"`

	// Seed replaces the built-in seed records for new directories.
	Seed []SeedRecord `toml:"seed,omitempty" envPrefix:"USERDIR_SEED_"`

	// Slack controls webhook notifications for directory events.
	Slack slack.Config `toml:"slack"`

	seedDefined bool
}

// SeedRecord is one seed entry in the config file.
type SeedRecord struct {
	ID   int    `toml:"id" env:"ID"`
	Name string `toml:"name" env:"NAME"`
}

// DefaultConfig returns a config with the json store and strict updates.
func DefaultConfig() *Config {
	return &Config{
		Store:        StoreJSON,
		UpdatePolicy: string(user.UpdatePolicyStrict),
		Slack:        slack.DefaultConfig(),
	}
}

// DefaultRoot returns the settings root: $USERDIR_ROOT, else ~/.userdir.
func DefaultRoot() (string, error) {
	if root := os.Getenv(EnvVarRoot); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".userdir"), nil
}

// ConfigPath returns the path to the config file under root.
func ConfigPath(root string) string {
	return filepath.Join(root, "settings", "userdir.toml")
}

// Load reads the config file under root, applies environment overrides
// and validates the result. A missing file yields the defaults.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath(root)
	md, err := toml.DecodeFile(path, cfg)
	switch {
	case err == nil:
		cfg.seedDefined = md.IsDefined("seed")
	case errors.Is(err, os.ErrNotExist):
		// No config file = defaults
	default:
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.Seed) > 0 {
		cfg.seedDefined = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as TOML to the config path under root.
func Save(root string, cfg *Config) error {
	path := ConfigPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.Create(path) //nolint:gosec // G304: path from settings root
	if err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return f.Close()
}

// Validate checks the store backend, update policy, Slack settings and
// seed ids.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreJSON, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if _, err := user.ParseUpdatePolicy(c.UpdatePolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return fmt.Errorf("%w: slack enabled without webhook_url", ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(c.Seed))
	for _, r := range c.Seed {
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate seed id %d", ErrInvalidConfig, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// StorePath returns the snapshot location for the configured backend.
func (c *Config) StorePath(root string) string {
	if c.Path != "" {
		return c.Path
	}
	if c.Store == StoreSQLite {
		return filepath.Join(root, "settings", "users.db")
	}
	return filepath.Join(root, "settings", "users.json")
}

// Policy returns the configured update policy. Call Validate first.
func (c *Config) Policy() user.UpdatePolicy {
	policy, _ := user.ParseUpdatePolicy(c.UpdatePolicy)
	return policy
}

// NewDirectory builds a fresh directory from this config, using the seed
// records from the file when it defines any (even an empty list).
func (c *Config) NewDirectory() *user.Directory {
	opts := []user.Option{user.WithUpdatePolicy(c.Policy())}
	if c.seedDefined {
		records := make([]user.Record, 0, len(c.Seed))
		for _, s := range c.Seed {
			records = append(records, user.Record{ID: s.ID, Name: s.Name})
		}
		opts = append(opts, user.WithSeed(records))
	}
	return user.New(opts...)
}
