package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for sigbridge.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Signal  SignalConfig  `yaml:"signal"`
	Hass    HassConfig    `yaml:"hass"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
}

// SignalConfig configures the chat side of the bridge.
type SignalConfig struct {
	Mode    string `yaml:"mode"` // "rest" | "socket"
	URL     string `yaml:"url"`
	Account string `yaml:"account"`

	// AllowFrom lists sender identifiers permitted to issue commands
	// in one-to-one chats. Group messages bypass the list entirely.
	AllowFrom []string `yaml:"allowFrom"`

	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`

	// Broadcast is the optional target for backend event
	// notifications and scheduled status reports.
	Broadcast BroadcastConfig `yaml:"broadcast,omitempty"`

	// StatusSchedule is an optional cron expression; each firing
	// sends a full status summary to the broadcast target.
	StatusSchedule string `yaml:"statusSchedule,omitempty"`
}

type BroadcastConfig struct {
	GroupID string `yaml:"groupId,omitempty"`
	Name    string `yaml:"name,omitempty"`
}

// HassConfig configures the home-automation backend connection.
type HassConfig struct {
	URL              string `yaml:"url"`
	Token            string `yaml:"token"`
	EntityTTLSeconds int    `yaml:"entityTtlSeconds"`
	SubscribeEvents  bool   `yaml:"subscribeEvents"`
}

type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfigDir returns ~/.sigbridge.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigbridge"
	}
	return filepath.Join(home, ".sigbridge")
}

// DefaultConfigPath returns ~/.sigbridge/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads and parses the config file, overlaying it on defaults so
// omitted sections keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields without which the bridge cannot start.
func (c *Config) Validate() error {
	var missing []string
	if c.Signal.URL == "" {
		missing = append(missing, "signal.url")
	}
	if c.Signal.Account == "" {
		missing = append(missing, "signal.account")
	}
	if c.Hass.URL == "" {
		missing = append(missing, "hass.url")
	}
	if c.Hass.Token == "" {
		missing = append(missing, "hass.token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	switch c.Signal.Mode {
	case "rest", "socket":
	default:
		return fmt.Errorf("invalid signal.mode %q (expected \"rest\" or \"socket\")", c.Signal.Mode)
	}
	return nil
}
