package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envNames = []string{
	"RELAYBOT_CONFIG", "RELAYBOT_TOKEN", "RELAYBOT_API_BASE_URL", "RELAYBOT_POLL_TIMEOUT",
	"RELAYBOT_REQUEST_TIMEOUT", "RELAYBOT_STAFF_GROUP_ID", "RELAYBOT_ROUTING",
	"RELAYBOT_STORAGE_BACKEND", "RELAYBOT_DATA_DIR", "RELAYBOT_MAX_IMPORT_SIZE",
	"RELAYBOT_STRUCTURER_MODE", "RELAYBOT_STRUCTURER_API_KEY", "RELAYBOT_STRUCTURER_MODEL",
	"RELAYBOT_STRUCTURER_BASE_URL", "RELAYBOT_STRUCTURER_TIMEOUT", "RELAYBOT_STRUCTURER_FILLERS",
	"RELAYBOT_HEALTH_ADDR", "RELAYBOT_HEALTH_DISABLED", "RELAYBOT_DIGEST_ENABLED",
	"RELAYBOT_DIGEST_CRON", "RELAYBOT_DIGEST_FONT_FILE", "RELAYBOT_DIGEST_TITLE",
	"RELAYBOT_DIGEST_CHAT_ID", "RELAYBOT_SUBMISSIONS_PER_MINUTE", "RELAYBOT_SUBMISSION_BURST",
	"RELAYBOT_BROADCAST_RPS", "RELAYBOT_LOG_LEVEL",
	"BOT_TOKEN", "ADMIN_GROUP_ID", "GEMINI_API_KEY", "OPENAI_API_KEY", "PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envNames {
		t.Setenv(k, "")
	}
}

const sampleYAML = `
telegram:
  token: "123:abc"
  staff_group_id: -100
  poll_timeout: 45
  request_timeout: 2s
routing:
  categories:
    3: {chat_id: -300, topic_id: 33, label: Physics}
storage:
  backend: pebble
  data_dir: /var/lib/relaybot
  max_import_size: 5MB
digest:
  enabled: true
  cron: "0 7 * * *"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(-100), cfg.Telegram.StaffGroupID)
	assert.Equal(t, 45*time.Second, cfg.Telegram.PollTimeout.Duration())
	assert.Equal(t, 2*time.Second, cfg.Telegram.RequestTimeout.Duration())
	assert.Equal(t, CategoryConfig{ChatID: -300, TopicID: 33, Label: "Physics"}, cfg.Routing.Categories[3])
	assert.Equal(t, int64(5_000_000), cfg.Storage.MaxImportSize.Int64())
	assert.True(t, cfg.Digest.Enabled)
}

func TestLoadConfigFileBadDuration(t *testing.T) {
	_, err := LoadConfigFile(writeConfig(t, "telegram:\n  poll_timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestParseConfigEnvsAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("ADMIN_GROUP_ID", "-1001")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("PORT", "9090")
	t.Setenv("RELAYBOT_ROUTING", "3=-300:33:Physics, 4=-400, bad, x=-1")

	cfg, res := ParseConfigEnvs()
	assert.True(t, res.EnvUsed)
	assert.Equal(t, []string{"BOT_TOKEN", "ADMIN_GROUP_ID", "GEMINI_API_KEY", "PORT"}, res.Aliases)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, int64(-1001), cfg.Telegram.StaffGroupID)
	assert.Equal(t, "gemini", cfg.Structurer.Mode)
	assert.Equal(t, "gk", cfg.Structurer.APIKey)
	assert.Equal(t, 9090, cfg.Health.Port)
	assert.Equal(t, map[int]CategoryConfig{
		3: {ChatID: -300, TopicID: 33, Label: "Physics"},
		4: {ChatID: -400},
	}, cfg.Routing.Categories)
}

func TestParseConfigEnvsPrefixedWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "old")
	t.Setenv("RELAYBOT_TOKEN", "new")
	t.Setenv("RELAYBOT_STRUCTURER_MODE", "openai")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("OPENAI_API_KEY", "ok")
	t.Setenv("RELAYBOT_MAX_IMPORT_SIZE", "1MiB")
	t.Setenv("RELAYBOT_HEALTH_ADDR", "127.0.0.1:7000")

	cfg, _ := ParseConfigEnvs()
	assert.Equal(t, "new", cfg.Telegram.Token)
	assert.Equal(t, "openai", cfg.Structurer.Mode)
	assert.Equal(t, "ok", cfg.Structurer.APIKey)
	assert.Equal(t, int64(1<<20), cfg.Storage.MaxImportSize.Int64())
	assert.Equal(t, "127.0.0.1", cfg.Health.Address)
	assert.Equal(t, 7000, cfg.Health.Port)
}

func TestLoadEffectiveConfigLayers(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleYAML)
	t.Setenv("RELAYBOT_STORAGE_BACKEND", "json")
	t.Setenv("RELAYBOT_LOG_LEVEL", "DEBUG")

	flags, err := ParseConfigFlags([]string{"--config", path, "--health-addr", ":9999"})
	require.NoError(t, err)
	fileCfg, found, err := ParseConfigFile(flags)
	require.NoError(t, err)
	require.True(t, found)
	envCfg, envRes := ParseConfigEnvs()

	eff, err := LoadEffectiveConfig(flags, fileCfg, found, envCfg, envRes)
	require.NoError(t, err)
	assert.Equal(t, []string{"config", "env", "flags"}, eff.Sources)

	cfg := eff.Config
	assert.Equal(t, "123:abc", cfg.Telegram.Token, "from file")
	assert.Equal(t, "json", cfg.Storage.Backend, "env over file")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/relaybot", eff.DataDir)
	assert.Equal(t, "0.0.0.0:9999", eff.HealthAddr)
	assert.Equal(t, "rules", cfg.Structurer.Mode, "default applied")
	require.NoError(t, ValidateConfig(eff))
}

func TestLoadEffectiveConfigMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	flags, err := ParseConfigFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	require.NoError(t, err)
	fileCfg, found, err := ParseConfigFile(flags)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = LoadEffectiveConfig(flags, fileCfg, found, &Config{}, EnvResult{})
	require.Error(t, err)
}

func TestLoadEffectiveConfigDefaults(t *testing.T) {
	clearEnv(t)
	flags, err := ParseConfigFlags([]string{"--data", "/tmp/rb"})
	require.NoError(t, err)
	eff, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{}, EnvResult{})
	require.NoError(t, err)

	cfg := eff.Config
	assert.Equal(t, "/tmp/rb", eff.DataDir)
	assert.Equal(t, "0.0.0.0:8080", eff.HealthAddr)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout.Duration())
	assert.Equal(t, "0 6 * * 1", cfg.Digest.Cron)
	assert.Equal(t, int64(20*1024*1024), cfg.Storage.MaxImportSize.Int64())
	assert.Equal(t, []string{"flags"}, eff.Sources)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		c := &Config{Telegram: TelegramConfig{Token: "t", StaffGroupID: -1}}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token (required)"},
		{"missing staff group", func(c *Config) { c.Telegram.StaffGroupID = 0 }, "telegram.staffgroupid"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend (oneof)"},
		{"bad category", func(c *Config) { c.Routing.Categories = map[int]CategoryConfig{1: {}} }, "chatid"},
		{"model without key runs rules", func(c *Config) { c.Structurer.Mode = "gemini" }, ""},
		{"bad cron", func(c *Config) { c.Digest.Enabled = true; c.Digest.Cron = "every day" }, "digest.cron"},
		{"missing font", func(c *Config) { c.Digest.FontFile = "/nonexistent/font.ttf" }, "font file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := ValidateConfig(EffectiveConfigResult{Config: c})
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRouter(t *testing.T) {
	c := &Config{Telegram: TelegramConfig{StaffGroupID: -100}}
	c.Routing.Categories = map[int]CategoryConfig{3: {ChatID: -300, TopicID: 33, Label: "Physics"}}
	r := c.Router()

	assert.Equal(t, int64(-100), r.Route(0).ChatID)
	assert.Equal(t, int64(-300), r.Route(3).ChatID)
	assert.Equal(t, int64(33), r.Route(3).TopicID)
	assert.True(t, r.IsStaffChat(-300))
}

func TestWatchCollapsesWrites(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func() { calls.Add(1) }) }()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2 * watchDebounce)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	require.NoError(t, <-done)
}
