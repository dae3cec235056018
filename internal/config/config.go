// Package config loads process configuration by layering defaults,
// the config file, environment variables, and CLI flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Host          string `env:"KAIRON_HOST" json:"host"`
	Port          int    `env:"KAIRON_PORT" json:"port"`
	DataDir       string `env:"KAIRON_DATA_DIR" json:"data_dir"`
	AuthToken     string `env:"KAIRON_AUTH_TOKEN" json:"auth_token,omitempty"`
	DefaultTenant string `env:"KAIRON_DEFAULT_TENANT" json:"default_tenant"`

	// Derived from DataDir after all layers apply.
	DBPath       string        `json:"-"`
	TenantsPath  string        `json:"-"`
	TrainingPath string        `json:"-"`
	WriteTimeout time.Duration `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("determining home directory: %w", err)
	}
	return Config{
		Host:          "127.0.0.1",
		Port:          8080,
		DataDir:       filepath.Join(home, ".kairon"),
		DefaultTenant: "default",
		WriteTimeout:  30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env <
// flags. The provided FlagSet must already be parsed by the caller;
// only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	applyFlags(&cfg, fs)
	cfg.derivePaths()
	return cfg, nil
}

// derivePaths fills the DataDir-relative paths.
func (c *Config) derivePaths() {
	c.DBPath = filepath.Join(c.DataDir, "sessions.db")
	c.TenantsPath = filepath.Join(c.DataDir, "tenants.json")
	c.TrainingPath = filepath.Join(c.DataDir, "training_examples.json")
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	// An env-supplied data dir must win for locating the config
	// file itself, before the layered merge runs. A -data-dir flag
	// applies after this layer and does not relocate config.json.
	dir := c.DataDir
	if v := os.Getenv("KAIRON_DATA_DIR"); v != "" {
		dir = v
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host          string `json:"host"`
		Port          int    `json:"port"`
		AuthToken     string `json:"auth_token"`
		DefaultTenant string `json:"default_tenant"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.AuthToken != "" {
		c.AuthToken = file.AuthToken
	}
	if file.DefaultTenant != "" {
		c.DefaultTenant = file.DefaultTenant
	}
	return nil
}

// SaveAuthToken persists the peer auth token to the config file,
// preserving unrelated keys.
func (c *Config) SaveAuthToken(token string) error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	existing := make(map[string]any)
	data, err := os.ReadFile(c.configPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("existing config is invalid, cannot update: %w", err)
		}
	}

	existing["auth_token"] = token
	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(c.configPath(), out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	c.AuthToken = token
	return nil
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
	fs.String("data-dir", "", "Data directory (database, config)")
	fs.String("auth-token", "", "Expected bearer token (empty = open)")
	fs.String("tenant", "", "Default tenant id")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "data-dir":
			cfg.DataDir = f.Value.String()
		case "auth-token":
			cfg.AuthToken = f.Value.String()
		case "tenant":
			cfg.DefaultTenant = f.Value.String()
		}
	})
}
