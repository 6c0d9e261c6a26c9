package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Routing    RoutingConfig    `yaml:"routing"`
	Storage    StorageConfig    `yaml:"storage"`
	Structurer StructurerConfig `yaml:"structurer"`
	Health     HealthConfig     `yaml:"health"`
	Digest     DigestConfig     `yaml:"digest"`
	Limits     LimitsConfig     `yaml:"limits"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TelegramConfig holds bot credentials and the staff group.
type TelegramConfig struct {
	Token          string   `yaml:"token" validate:"required"`
	BaseURL        string   `yaml:"base_url" validate:"omitempty,url"`
	PollTimeout    Duration `yaml:"poll_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
	StaffGroupID   int64    `yaml:"staff_group_id" validate:"required,ne=0"`
}

// RoutingConfig maps submission categories onto staff chats and topics.
type RoutingConfig struct {
	Categories map[int]CategoryConfig `yaml:"categories" validate:"dive"`
}

type CategoryConfig struct {
	ChatID  int64  `yaml:"chat_id" validate:"required,ne=0"`
	TopicID int64  `yaml:"topic_id" validate:"gte=0"`
	Label   string `yaml:"label" validate:"max=64"`
}

// StorageConfig selects the table backend.
type StorageConfig struct {
	Backend       string    `yaml:"backend" validate:"oneof=json pebble memory"`
	DataDir       string    `yaml:"data_dir" validate:"required"`
	MaxImportSize SizeBytes `yaml:"max_import_size"`
}

// StructurerConfig selects how submissions are split into stem and options.
type StructurerConfig struct {
	Mode    string   `yaml:"mode" validate:"oneof=rules gemini openai"`
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	BaseURL string   `yaml:"base_url" validate:"omitempty,url"`
	Timeout Duration `yaml:"timeout"`
	Fillers []string `yaml:"fillers"`
}

// HealthConfig holds the health/metrics listener.
type HealthConfig struct {
	Disabled bool   `yaml:"disabled"`
	Address  string `yaml:"address"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// DigestConfig controls the scheduled PDF digest.
type DigestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Cron     string `yaml:"cron"`
	FontFile string `yaml:"font_file"`
	Title    string `yaml:"title"`
	// ChatID receives scheduled digests; zero means the staff group.
	ChatID int64 `yaml:"chat_id"`
}

// LimitsConfig holds flood control settings.
type LimitsConfig struct {
	SubmissionsPerMinute float64 `yaml:"submissions_per_minute" validate:"gte=0"`
	Burst                int     `yaml:"burst" validate:"gte=0"`
	BroadcastRPS         float64 `yaml:"broadcast_rps" validate:"gte=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "20MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
