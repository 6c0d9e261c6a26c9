package banner

import (
	"fmt"
	"strings"

	"relaybot/pkg/config"
)

const banner = `
 ____      _             _           _
|  _ \ ___| | __ _ _   _| |__   ___ | |_
| |_) / _ \ |/ _` + "`" + ` | | | | '_ \ / _ \| __|
|  _ <  __/ | (_| | |_| | |_) | (_) | |_
|_| \_\___|_|\__,_|\__, |_.__/ \___/ \__|
                   |___/
`

// PrintWithEff prints the banner and a summary of the effective config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	src := strings.Join(eff.Sources, "+")
	if src == "" {
		src = "defaults"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	if cfg.Health.Disabled {
		fmt.Println("Health:   disabled")
	} else {
		fmt.Printf("Health:   %s\n", eff.HealthAddr)
	}
	fmt.Printf("Data:     %s (%s)\n", eff.DataDir, cfg.Storage.Backend)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Production? =================================================")
	if cfg.Telegram.Token != "" {
		fmt.Println("- Bot token: OK")
	} else {
		fmt.Println("- Bot token: MISSING (set telegram.token or BOT_TOKEN)")
	}
	if cfg.Telegram.StaffGroupID != 0 {
		fmt.Printf("- Staff group: %d\n", cfg.Telegram.StaffGroupID)
	} else {
		fmt.Println("- Staff group: MISSING (set telegram.staff_group_id or ADMIN_GROUP_ID)")
	}
	if n := len(cfg.Routing.Categories); n > 0 {
		fmt.Printf("- Category routing: %d categories\n", n)
	} else {
		fmt.Println("- Category routing: none (everything goes to the staff group)")
	}

	switch cfg.Structurer.Mode {
	case "gemini", "openai":
		if strings.TrimSpace(cfg.Structurer.APIKey) != "" {
			fmt.Printf("- Structurer: %s (rules fallback)\n", cfg.Structurer.Mode)
		} else {
			fmt.Printf("- Structurer: %s requested, no api key (rules only)\n", cfg.Structurer.Mode)
		}
	default:
		fmt.Println("- Structurer: rules")
	}

	if cfg.Storage.Backend == "memory" {
		fmt.Println("- Storage: memory (nothing survives a restart)")
	}

	if cfg.Digest.Enabled {
		fmt.Printf("- Digest: enabled (cron=%s)\n", cfg.Digest.Cron)
	} else {
		fmt.Println("- Digest: disabled")
	}
}
