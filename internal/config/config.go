// Package config provides configuration loading and defaults for the guildview server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds network and operator authentication settings for the
// HTTP facade.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
	// ReadHeaderTimeoutSec bounds how long a client may take to send headers.
	ReadHeaderTimeoutSec int `yaml:"read_header_timeout_sec"`
	// ShutdownTimeoutSec bounds graceful shutdown of in-flight requests.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

// DiscordConfig controls how connections to Discord are established.
type DiscordConfig struct {
	// Token is the bot credential used by the MCP surface. The HTTP facade
	// takes credentials per request and ignores it.
	Token string `yaml:"token"`
	// Gateway opens the websocket gateway after the REST handshake.
	Gateway bool `yaml:"gateway"`
	// DialTimeoutSec bounds a single connect handshake.
	DialTimeoutSec int `yaml:"dial_timeout_sec"`
}

// SyncConfig controls message history loading and polling.
type SyncConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	MaxLimit       int `yaml:"max_limit"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
	// MaxLogSize caps the number of messages held per selection.
	MaxLogSize int `yaml:"max_log_size"`
}

// AMQPConfig enables publishing audit events to a RabbitMQ topic exchange.
// Publishing is disabled when URL is empty.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool       `yaml:"enabled"`
	LogPath string     `yaml:"log_path"`
	AMQP    AMQPConfig `yaml:"amqp"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration structure for the guildview server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Discord DiscordConfig `yaml:"discord"`
	Sync    SyncConfig    `yaml:"sync"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Keys absent from the file keep their DefaultConfig values. On error, nil is
// returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
//
// Defaults:
//   - Server.Port = 8080
//   - Server.ReadHeaderTimeoutSec = 10, ShutdownTimeoutSec = 15
//   - Discord.Gateway = true, DialTimeoutSec = 30
//   - Sync.DefaultLimit = 50, MaxLimit = 100, PollIntervalMS = 1000, MaxLogSize = 1000
//   - Audit.Enabled = true, LogPath = "audit.log", AMQP.Exchange = "guildview.audit"
//   - Logging.Level = "info", Format = "text"
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                 8080,
			ReadHeaderTimeoutSec: 10,
			ShutdownTimeoutSec:   15,
		},
		Discord: DiscordConfig{
			Gateway:        true,
			DialTimeoutSec: 30,
		},
		Sync: SyncConfig{
			DefaultLimit:   50,
			MaxLimit:       100,
			PollIntervalMS: 1000,
			MaxLogSize:     1000,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "audit.log",
			AMQP: AMQPConfig{
				Exchange: "guildview.audit",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Only non-empty environment variable values override existing config values.
//
// Recognized variables:
//   - GUILDVIEW_DISCORD_TOKEN -> cfg.Discord.Token
//   - GUILDVIEW_AUTH_TOKEN    -> cfg.Server.AuthToken
//   - GUILDVIEW_PORT          -> cfg.Server.Port (ignored unless numeric)
//   - GUILDVIEW_AMQP_URL      -> cfg.Audit.AMQP.URL
//   - GUILDVIEW_LOG_LEVEL     -> cfg.Logging.Level
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GUILDVIEW_DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if authToken := os.Getenv("GUILDVIEW_AUTH_TOKEN"); authToken != "" {
		cfg.Server.AuthToken = authToken
	}
	if port := os.Getenv("GUILDVIEW_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = n
		}
	}
	if url := os.Getenv("GUILDVIEW_AMQP_URL"); url != "" {
		cfg.Audit.AMQP.URL = url
	}
	if level := os.Getenv("GUILDVIEW_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate reports every setting that would make the server misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Sync.MaxLimit <= 0 || c.Sync.MaxLimit > 100 {
		errs = append(errs, fmt.Errorf("sync.max_limit must be in 1..100, got %d", c.Sync.MaxLimit))
	}
	if c.Sync.DefaultLimit <= 0 || c.Sync.DefaultLimit > c.Sync.MaxLimit {
		errs = append(errs, fmt.Errorf("sync.default_limit must be in 1..max_limit, got %d", c.Sync.DefaultLimit))
	}
	if c.Sync.PollIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_interval_ms must be positive, got %d", c.Sync.PollIntervalMS))
	}
	if c.Sync.MaxLogSize < 0 {
		errs = append(errs, fmt.Errorf("sync.max_log_size must not be negative, got %d", c.Sync.MaxLogSize))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// PollInterval returns the message poll cadence.
func (s SyncConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// DialTimeout returns the connect handshake bound.
func (d DiscordConfig) DialTimeout() time.Duration {
	return time.Duration(d.DialTimeoutSec) * time.Second
}
