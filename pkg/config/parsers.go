package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Config     string
	DataDir    string
	HealthAddr string
	Set        map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	EnvUsed bool
	// Aliases lists the unprefixed legacy variable names that were read.
	Aliases []string
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config     *Config
	HealthAddr string
	DataDir    string
	Sources    []string // any of "config", "env", "flags"
}

// parses command-line flags and returns them as a Flags struct
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("relaybot", flag.ContinueOnError)
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	dataPtr := fs.String("data", defaultDataDir, "Data directory")
	healthPtr := fs.String("health-addr", "", "Health/metrics listen address")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Config: *cfgPtr, DataDir: *dataPtr, HealthAddr: *healthPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads environment variables into a new Config and returns it with EnvResult; caller config is unchanged
func ParseConfigEnvs() (*Config, EnvResult) {
	envs := map[string]string{
		"TOKEN":           os.Getenv("RELAYBOT_TOKEN"),
		"API_BASE_URL":    os.Getenv("RELAYBOT_API_BASE_URL"),
		"POLL_TIMEOUT":    os.Getenv("RELAYBOT_POLL_TIMEOUT"),
		"REQUEST_TIMEOUT": os.Getenv("RELAYBOT_REQUEST_TIMEOUT"),
		"STAFF_GROUP_ID":  os.Getenv("RELAYBOT_STAFF_GROUP_ID"),
		"ROUTING":         os.Getenv("RELAYBOT_ROUTING"),

		"STORAGE_BACKEND": os.Getenv("RELAYBOT_STORAGE_BACKEND"),
		"DATA_DIR":        os.Getenv("RELAYBOT_DATA_DIR"),
		"MAX_IMPORT_SIZE": os.Getenv("RELAYBOT_MAX_IMPORT_SIZE"),

		"STRUCTURER_MODE":     os.Getenv("RELAYBOT_STRUCTURER_MODE"),
		"STRUCTURER_API_KEY":  os.Getenv("RELAYBOT_STRUCTURER_API_KEY"),
		"STRUCTURER_MODEL":    os.Getenv("RELAYBOT_STRUCTURER_MODEL"),
		"STRUCTURER_BASE_URL": os.Getenv("RELAYBOT_STRUCTURER_BASE_URL"),
		"STRUCTURER_TIMEOUT":  os.Getenv("RELAYBOT_STRUCTURER_TIMEOUT"),
		"STRUCTURER_FILLERS":  os.Getenv("RELAYBOT_STRUCTURER_FILLERS"),

		"HEALTH_ADDR":     os.Getenv("RELAYBOT_HEALTH_ADDR"),
		"HEALTH_DISABLED": os.Getenv("RELAYBOT_HEALTH_DISABLED"),

		"DIGEST_ENABLED":   os.Getenv("RELAYBOT_DIGEST_ENABLED"),
		"DIGEST_CRON":      os.Getenv("RELAYBOT_DIGEST_CRON"),
		"DIGEST_FONT_FILE": os.Getenv("RELAYBOT_DIGEST_FONT_FILE"),
		"DIGEST_TITLE":     os.Getenv("RELAYBOT_DIGEST_TITLE"),
		"DIGEST_CHAT_ID":   os.Getenv("RELAYBOT_DIGEST_CHAT_ID"),

		"SUBMISSIONS_PER_MINUTE": os.Getenv("RELAYBOT_SUBMISSIONS_PER_MINUTE"),
		"SUBMISSION_BURST":       os.Getenv("RELAYBOT_SUBMISSION_BURST"),
		"BROADCAST_RPS":          os.Getenv("RELAYBOT_BROADCAST_RPS"),

		"LOG_LEVEL": os.Getenv("RELAYBOT_LOG_LEVEL"),
	}

	// unprefixed names kept from earlier deployments
	aliases := map[string]string{
		"BOT_TOKEN":      os.Getenv("BOT_TOKEN"),
		"ADMIN_GROUP_ID": os.Getenv("ADMIN_GROUP_ID"),
		"GEMINI_API_KEY": os.Getenv("GEMINI_API_KEY"),
		"OPENAI_API_KEY": os.Getenv("OPENAI_API_KEY"),
		"PORT":           os.Getenv("PORT"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	var used []string
	for _, k := range []string{"BOT_TOKEN", "ADMIN_GROUP_ID", "GEMINI_API_KEY", "OPENAI_API_KEY", "PORT"} {
		if aliases[k] != "" {
			used = append(used, k)
			envUsed = true
		}
	}
	envCfg := &Config{}

	// parse helpers
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	parseBool := func(v string, def bool) bool {
		if v == "" {
			return def
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	parseInt64 := func(v string, def int64) int64 {
		if v == "" {
			return def
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
		return def
	}

	parseFloat := func(v string, def float64) float64 {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
		return def
	}

	parseSizeBytes := func(v string) SizeBytes {
		s, err := parseSize(v)
		if err != nil {
			return 0
		}
		return s
	}

	parseDur := func(v string) Duration {
		d, err := parseDuration(v)
		if err != nil {
			return 0
		}
		return d
	}

	// telegram, prefixed names win over aliases
	if v := envs["TOKEN"]; v != "" {
		envCfg.Telegram.Token = strings.TrimSpace(v)
	} else if v := aliases["BOT_TOKEN"]; v != "" {
		envCfg.Telegram.Token = strings.TrimSpace(v)
	}
	if v := envs["STAFF_GROUP_ID"]; v != "" {
		envCfg.Telegram.StaffGroupID = parseInt64(v, 0)
	} else if v := aliases["ADMIN_GROUP_ID"]; v != "" {
		envCfg.Telegram.StaffGroupID = parseInt64(v, 0)
	}
	if v := envs["API_BASE_URL"]; v != "" {
		envCfg.Telegram.BaseURL = strings.TrimSpace(v)
	}
	if v := envs["POLL_TIMEOUT"]; v != "" {
		envCfg.Telegram.PollTimeout = parseDur(v)
	}
	if v := envs["REQUEST_TIMEOUT"]; v != "" {
		envCfg.Telegram.RequestTimeout = parseDur(v)
	}
	if v := envs["ROUTING"]; v != "" {
		envCfg.Routing.Categories = parseRouting(v)
	}

	// storage
	if v := envs["STORAGE_BACKEND"]; v != "" {
		envCfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := envs["DATA_DIR"]; v != "" {
		envCfg.Storage.DataDir = v
	}
	if v := envs["MAX_IMPORT_SIZE"]; v != "" {
		envCfg.Storage.MaxImportSize = parseSizeBytes(v)
	}

	// structurer
	if v := envs["STRUCTURER_MODE"]; v != "" {
		envCfg.Structurer.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := envs["STRUCTURER_API_KEY"]; v != "" {
		envCfg.Structurer.APIKey = strings.TrimSpace(v)
	}
	if envCfg.Structurer.APIKey == "" {
		switch {
		case aliases["GEMINI_API_KEY"] != "" && envCfg.Structurer.Mode != "openai":
			envCfg.Structurer.APIKey = strings.TrimSpace(aliases["GEMINI_API_KEY"])
			if envCfg.Structurer.Mode == "" {
				envCfg.Structurer.Mode = "gemini"
			}
		case aliases["OPENAI_API_KEY"] != "" && envCfg.Structurer.Mode != "gemini":
			envCfg.Structurer.APIKey = strings.TrimSpace(aliases["OPENAI_API_KEY"])
			if envCfg.Structurer.Mode == "" {
				envCfg.Structurer.Mode = "openai"
			}
		}
	}
	if v := envs["STRUCTURER_MODEL"]; v != "" {
		envCfg.Structurer.Model = strings.TrimSpace(v)
	}
	if v := envs["STRUCTURER_BASE_URL"]; v != "" {
		envCfg.Structurer.BaseURL = strings.TrimSpace(v)
	}
	if v := envs["STRUCTURER_TIMEOUT"]; v != "" {
		envCfg.Structurer.Timeout = parseDur(v)
	}
	if v := envs["STRUCTURER_FILLERS"]; v != "" {
		envCfg.Structurer.Fillers = parseList(v)
	}

	// health address, PORT is honoured for PaaS deployments
	if v := envs["HEALTH_ADDR"]; v != "" {
		envCfg.Health.Address, envCfg.Health.Port = splitAddr(v)
	} else if v := aliases["PORT"]; v != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Health.Port = p
		}
	}
	if v := envs["HEALTH_DISABLED"]; v != "" {
		envCfg.Health.Disabled = parseBool(v, false)
	}

	// digest
	if v := envs["DIGEST_ENABLED"]; v != "" {
		envCfg.Digest.Enabled = parseBool(v, false)
	}
	if v := envs["DIGEST_CRON"]; v != "" {
		envCfg.Digest.Cron = strings.TrimSpace(v)
	}
	if v := envs["DIGEST_FONT_FILE"]; v != "" {
		envCfg.Digest.FontFile = v
	}
	if v := envs["DIGEST_TITLE"]; v != "" {
		envCfg.Digest.Title = v
	}
	if v := envs["DIGEST_CHAT_ID"]; v != "" {
		envCfg.Digest.ChatID = parseInt64(v, 0)
	}

	// limits
	if v := envs["SUBMISSIONS_PER_MINUTE"]; v != "" {
		envCfg.Limits.SubmissionsPerMinute = parseFloat(v, 0)
	}
	if v := envs["SUBMISSION_BURST"]; v != "" {
		envCfg.Limits.Burst = int(parseInt64(v, 0))
	}
	if v := envs["BROADCAST_RPS"]; v != "" {
		envCfg.Limits.BroadcastRPS = parseFloat(v, 0)
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return envCfg, EnvResult{EnvUsed: envUsed, Aliases: used}
}

// parseRouting reads "3=-300:33:Physics,4=-400" into category targets.
// Malformed entries are skipped.
func parseRouting(v string) map[int]CategoryConfig {
	out := make(map[int]CategoryConfig)
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		num, target, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil {
			continue
		}
		parts := strings.SplitN(target, ":", 3)
		chatID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			continue
		}
		cc := CategoryConfig{ChatID: chatID}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			if t, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64); err == nil {
				cc.TopicID = t
			}
		}
		if len(parts) > 2 {
			cc.Label = strings.TrimSpace(parts[2])
		}
		out[n] = cc
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func splitAddr(v string) (string, int) {
	h, p, err := net.SplitHostPort(v)
	if err != nil {
		return v, 0
	}
	pi, _ := strconv.Atoi(p)
	return h, pi
}

// LoadEffectiveConfig layers the sources: the config file is the base,
// environment values override it and explicit flags override both. When
// --config is set explicitly the file must exist.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	out := &Config{}
	if fileExists && fileCfg != nil {
		*out = *fileCfg
		res.Sources = append(res.Sources, "config")
	}
	if envCfg != nil && envRes.EnvUsed {
		merge(out, envCfg)
		res.Sources = append(res.Sources, "env")
	}
	if flags.Set["data"] || flags.Set["health-addr"] {
		res.Sources = append(res.Sources, "flags")
	}
	if flags.Set["data"] {
		out.Storage.DataDir = flags.DataDir
	}
	if flags.Set["health-addr"] {
		out.Health.Address, out.Health.Port = splitAddr(flags.HealthAddr)
	}

	out.ApplyDefaults()
	res.Config = out
	res.HealthAddr = out.HealthAddr()
	res.DataDir = out.Storage.DataDir
	return res, nil
}

// merge copies every non-zero field of src over dst.
func merge(dst, src *Config) {
	setStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	setDur := func(d *Duration, s Duration) {
		if s != 0 {
			*d = s
		}
	}

	setStr(&dst.Telegram.Token, src.Telegram.Token)
	setStr(&dst.Telegram.BaseURL, src.Telegram.BaseURL)
	setDur(&dst.Telegram.PollTimeout, src.Telegram.PollTimeout)
	setDur(&dst.Telegram.RequestTimeout, src.Telegram.RequestTimeout)
	if src.Telegram.StaffGroupID != 0 {
		dst.Telegram.StaffGroupID = src.Telegram.StaffGroupID
	}
	if len(src.Routing.Categories) > 0 {
		dst.Routing.Categories = src.Routing.Categories
	}

	setStr(&dst.Storage.Backend, src.Storage.Backend)
	setStr(&dst.Storage.DataDir, src.Storage.DataDir)
	if src.Storage.MaxImportSize != 0 {
		dst.Storage.MaxImportSize = src.Storage.MaxImportSize
	}

	setStr(&dst.Structurer.Mode, src.Structurer.Mode)
	setStr(&dst.Structurer.APIKey, src.Structurer.APIKey)
	setStr(&dst.Structurer.Model, src.Structurer.Model)
	setStr(&dst.Structurer.BaseURL, src.Structurer.BaseURL)
	setDur(&dst.Structurer.Timeout, src.Structurer.Timeout)
	if len(src.Structurer.Fillers) > 0 {
		dst.Structurer.Fillers = src.Structurer.Fillers
	}

	setStr(&dst.Health.Address, src.Health.Address)
	if src.Health.Port != 0 {
		dst.Health.Port = src.Health.Port
	}
	if src.Health.Disabled {
		dst.Health.Disabled = true
	}

	if src.Digest.Enabled {
		dst.Digest.Enabled = true
	}
	setStr(&dst.Digest.Cron, src.Digest.Cron)
	setStr(&dst.Digest.FontFile, src.Digest.FontFile)
	setStr(&dst.Digest.Title, src.Digest.Title)
	if src.Digest.ChatID != 0 {
		dst.Digest.ChatID = src.Digest.ChatID
	}

	if src.Limits.SubmissionsPerMinute != 0 {
		dst.Limits.SubmissionsPerMinute = src.Limits.SubmissionsPerMinute
	}
	if src.Limits.Burst != 0 {
		dst.Limits.Burst = src.Limits.Burst
	}
	if src.Limits.BroadcastRPS != 0 {
		dst.Limits.BroadcastRPS = src.Limits.BroadcastRPS
	}
	setStr(&dst.Logging.Level, src.Logging.Level)
}
