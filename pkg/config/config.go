package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPollTimeout       = 30 * time.Second
	defaultRequestTimeout    = 15 * time.Second
	defaultStorageBackend    = "json"
	defaultDataDir           = "./data"
	defaultMaxImportSize     = 20 * 1024 * 1024 // bot API download cap
	defaultStructurerMode    = "rules"
	defaultStructurerTimeout = 15 * time.Second
	defaultHealthAddress     = "0.0.0.0"
	defaultHealthPort        = 8080
	defaultDigestCron        = "0 6 * * 1" // Mondays at 06:00
	defaultDigestTitle       = "Submissions digest"
	defaultSubmissionsPerMin = 6
	defaultSubmissionBurst   = 3
	defaultBroadcastRPS      = 20
	defaultLogLevel          = "info"
)

// HealthAddr returns the health listener address as host:port.
func (c *Config) HealthAddr() string {
	addr := c.Health.Address
	if addr == "" {
		addr = defaultHealthAddress
	}
	port := c.Health.Port
	if port == 0 {
		port = defaultHealthPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Telegram.PollTimeout.Duration() <= 0 {
		c.Telegram.PollTimeout = Duration(defaultPollTimeout)
	}
	if c.Telegram.RequestTimeout.Duration() <= 0 {
		c.Telegram.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaultDataDir
	}
	if c.Storage.MaxImportSize <= 0 {
		c.Storage.MaxImportSize = SizeBytes(defaultMaxImportSize)
	}
	if c.Structurer.Mode == "" {
		c.Structurer.Mode = defaultStructurerMode
	}
	if c.Structurer.Timeout.Duration() <= 0 {
		c.Structurer.Timeout = Duration(defaultStructurerTimeout)
	}
	if c.Health.Address == "" {
		c.Health.Address = defaultHealthAddress
	}
	if c.Health.Port == 0 {
		c.Health.Port = defaultHealthPort
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = defaultDigestCron
	}
	if c.Digest.Title == "" {
		c.Digest.Title = defaultDigestTitle
	}
	if c.Limits.SubmissionsPerMinute == 0 {
		c.Limits.SubmissionsPerMinute = defaultSubmissionsPerMin
	}
	if c.Limits.Burst == 0 {
		c.Limits.Burst = defaultSubmissionBurst
	}
	if c.Limits.BroadcastRPS == 0 {
		c.Limits.BroadcastRPS = defaultBroadcastRPS
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("RELAYBOT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
