// Package config loads the bot's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Session  SessionConfig  `yaml:"session"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DiscordConfig struct {
	// Token is the bot token. ${DISCORD_BOT_TOKEN} expands from the
	// environment.
	Token string `yaml:"token"`

	// GuildID optionally scopes command registration to one guild for
	// faster rollout during development. Empty registers globally.
	GuildID string `yaml:"guild_id"`

	// OwnerID is the bot owner's user ID; the owner bypasses the modify
	// permission check.
	OwnerID string `yaml:"owner_id"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" for ephemeral.
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// GuildLogCapacity bounds the per-guild activity ring.
	GuildLogCapacity int `yaml:"guild_log_capacity"`
}

type SessionConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	CreateQuota     int           `yaml:"create_quota"`
	CreateCooldown  time.Duration `yaml:"create_cooldown"`
	CommandCooldown time.Duration `yaml:"command_cooldown"`
}

type MirrorConfig struct {
	// ReconcileSchedule is a cron expression for the periodic full
	// re-render of configured facility lists.
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

type MetricsConfig struct {
	// Addr is the Prometheus listen address. Empty disables the listener.
	Addr string `yaml:"addr"`
}

// Load reads, env-expands and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		c.Discord.Token = os.Getenv("DISCORD_BOT_TOKEN")
	}
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	if c.Database.Path == "" {
		c.Database.Path = "facilities.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.GuildLogCapacity <= 0 {
		c.Logging.GuildLogCapacity = 50
	}
	if c.Session.Timeout <= 0 {
		c.Session.Timeout = 3 * time.Minute
	}
	if c.Session.CreateQuota <= 0 {
		c.Session.CreateQuota = 5
	}
	if c.Session.CreateCooldown <= 0 {
		c.Session.CreateCooldown = 20 * time.Second
	}
	if c.Session.CommandCooldown <= 0 {
		c.Session.CommandCooldown = 4 * time.Second
	}
	if c.Mirror.ReconcileSchedule == "" {
		c.Mirror.ReconcileSchedule = "@hourly"
	}
	return nil
}
