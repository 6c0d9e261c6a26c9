package app

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"relaybot/internal/digestjob"
	"relaybot/pkg/bans"
	"relaybot/pkg/bot"
	"relaybot/pkg/config"
	"relaybot/pkg/config/banner"
	"relaybot/pkg/correlation"
	"relaybot/pkg/logger"
	"relaybot/pkg/relay"
	"relaybot/pkg/state"
	"relaybot/pkg/store"
	"relaybot/pkg/structure"
	"relaybot/pkg/submissions"
	"relaybot/pkg/telegram"
	"relaybot/pkg/users"
)

// App groups the bot process state and components.
type App struct {
	eff       config.EffectiveConfigResult
	cfgPath   string
	version   string
	commit    string
	buildDate string
	paths     state.Paths

	st      *store.Store
	client  *telegram.Client
	router  *relay.SwapRouter
	archive *submissions.Archive
	bot     *bot.Bot

	srvFast      *fasthttp.Server
	digestCancel context.CancelFunc
	watchCancel  context.CancelFunc

	state atomic.Value // string
}

// New opens the store, loads every cache and builds the bot. It does not
// touch the network; Run does.
func New(ctx context.Context, eff config.EffectiveConfigResult, cfgPath, version, commit, buildDate string) (*App, error) {
	if state.PathsVar.Tables == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}
	cfg := eff.Config
	a := &App{eff: eff, cfgPath: cfgPath, version: version, commit: commit, buildDate: buildDate, paths: state.PathsVar}
	a.state.Store("starting")

	st, err := store.Open(cfg.Storage.Backend, a.paths.Tables, a.paths.Store)
	if err != nil {
		return nil, err
	}
	a.st = st

	a.archive = submissions.NewArchive(st)
	engine := correlation.New(st, cfg.Telegram.StaffGroupID)
	registry := bans.NewRegistry(st)
	tracker := users.NewTracker(st)

	structurer, err := structure.New(ctx, structure.Options{
		Mode:    cfg.Structurer.Mode,
		APIKey:  cfg.Structurer.APIKey,
		Model:   cfg.Structurer.Model,
		BaseURL: cfg.Structurer.BaseURL,
		Timeout: cfg.Structurer.Timeout.Duration(),
		Fillers: cfg.Structurer.Fillers,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("structurer: %w", err)
	}

	client, err := telegram.New(telegram.Options{
		Token:   cfg.Telegram.Token,
		BaseURL: cfg.Telegram.BaseURL,
		Timeout: cfg.Telegram.RequestTimeout.Duration(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.client = client
	a.router = relay.NewSwapRouter(cfg.Router())

	a.bot = bot.New(bot.Deps{
		API:        client,
		Store:      st,
		Archive:    a.archive,
		Engine:     engine,
		Bans:       registry,
		Users:      tracker,
		Structurer: structurer,
		Router:     a.router,
	}, bot.Settings{
		StaffGroupID:         cfg.Telegram.StaffGroupID,
		MaxImportSize:        cfg.Storage.MaxImportSize.Int64(),
		SubmissionsPerMinute: cfg.Limits.SubmissionsPerMinute,
		SubmissionBurst:      cfg.Limits.Burst,
		BroadcastRPS:         cfg.Limits.BroadcastRPS,
		DigestTitle:          cfg.Digest.Title,
		DigestFontFile:       cfg.Digest.FontFile,
	})
	if err := a.bot.Reload(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load tables: %w", err)
	}

	logger.LogConfigSummary("tables_loaded", []string{
		fmt.Sprintf("backend: %s", cfg.Storage.Backend),
		fmt.Sprintf("submissions: %s", humanize.Comma(int64(a.archive.Count()))),
		fmt.Sprintf("threads: %s", humanize.Comma(int64(engine.Count()))),
		fmt.Sprintf("users: %s", humanize.Comma(int64(tracker.Count()))),
		fmt.Sprintf("banned: %s", humanize.Comma(int64(registry.Count()))),
	})
	return a, nil
}

// Run starts the health server, the digest schedule and the config
// watcher, then long-polls until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	me, err := a.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("telegram_bot_identity", "id", me.ID, "username", me.Username)

	if err := a.bot.Setup(ctx); err != nil {
		logger.Warn("bot_command_menu_failed", "error", err)
	}

	httpErr := a.startHTTP()
	a.startDigest(ctx)
	a.startWatch(ctx)

	cfg := a.eff.Config
	poller := &telegram.Poller{
		Client:     a.client,
		OffsetFile: a.paths.Offset,
		Timeout:    int(cfg.Telegram.PollTimeout.Duration().Seconds()),
	}
	pollErr := make(chan error, 1)
	go func() { pollErr <- poller.Run(ctx, a.bot.Handle) }()

	a.state.Store("running")
	select {
	case <-ctx.Done():
		<-pollErr
		return nil
	case err := <-httpErr:
		return fmt.Errorf("health server: %w", err)
	case err := <-pollErr:
		return err
	}
}

func (a *App) startDigest(ctx context.Context) {
	d := a.eff.Config.Digest
	if !d.Enabled {
		logger.Info("digest_schedule_disabled")
		return
	}
	chatID := d.ChatID
	if chatID == 0 {
		chatID = a.eff.Config.Telegram.StaffGroupID
	}
	a.digestCancel = digestjob.New(d.Cron, chatID, a.archive, a.bot).Start(ctx)
}

// startWatch reloads category routing when the config file changes.
func (a *App) startWatch(ctx context.Context) {
	if a.cfgPath == "" {
		return
	}
	if _, err := os.Stat(a.cfgPath); err != nil {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	go func() {
		err := config.Watch(wctx, a.cfgPath, func() { a.reloadRouting(a.cfgPath) })
		if err != nil {
			logger.Warn("config_watch_stopped", "error", err)
		}
	}()
}

func (a *App) reloadRouting(path string) {
	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		logger.Error("config_reload_failed", "path", path, "error", err)
		return
	}
	if err := config.ValidateRouting(cfg); err != nil {
		logger.Error("config_reload_invalid", "path", path, "error", err)
		return
	}
	// the staff group is fixed for the process lifetime
	r := a.router.Load()
	r.Categories = cfg.Router().Categories
	a.router.Store(r)
	logger.Info("routing_reloaded", "categories", len(cfg.Routing.Categories))
}

func (a *App) printBanner() {
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, ver)
}

// Shutdown stops background work and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state.Store("shutting_down")
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.digestCancel != nil {
		a.digestCancel()
	}
	var firstErr error
	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			firstErr = err
		case <-ctx.Done():
			firstErr = ctx.Err()
		}
	}
	a.bot.Close()
	if err := a.st.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	logger.Sync()
	if firstErr == nil {
		a.state.Store("stopped")
	}
	return firstErr
}
