package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"relaybot/internal/app"
	"relaybot/pkg/config"
	"relaybot/pkg/logger"
	"relaybot/pkg/state"
	"relaybot/pkg/state/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.DataDir)
	}
	envCfg, envRes := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, flags.DataDir)
	}
	if err := config.ValidateConfig(eff); err != nil {
		shutdown.Abort("invalid configuration", err, eff.DataDir)
	}

	// initialize logger after config is fully loaded
	logger.InitWithLevel(eff.Config.Logging.Level)
	defer logger.Sync()
	logger.Info("effective_config_loaded", "sources", eff.Sources, "health_addr", eff.HealthAddr, "data_dir", eff.DataDir)
	if len(envRes.Aliases) > 0 {
		logger.Info("env_aliases_used", "names", envRes.Aliases)
	}

	if err := state.Init(eff.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "state_dirs_setup_failed: %v\n", err)
		shutdown.Abort(fmt.Sprintf("failed to ensure state directories under %s", eff.DataDir), err, eff.DataDir)
	}
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	cfgPath := ""
	if fileExists {
		cfgPath = config.ResolveConfigPath(flags.Config, flags.Set["config"])
	}
	a, err := app.New(ctx, eff, cfgPath, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, eff.DataDir)
	}

	if err := a.Run(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		shutdown.Abort("app run failed", err, eff.DataDir)
	}

	// bounded teardown so shutdown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
}
