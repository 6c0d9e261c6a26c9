package app

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"relaybot/pkg/logger"
	"relaybot/pkg/metrics"
)

var startedAt = time.Now()

type status struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// statusHandlerFast answers / and /ping with a small JSON status.
func (a *App) statusHandlerFast(ctx *fasthttp.RequestCtx) {
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	st, _ := a.state.Load().(string)
	body, _ := json.Marshal(status{
		Status:  "ok",
		State:   st,
		Version: ver,
		Uptime:  time.Since(startedAt).Truncate(time.Second).String(),
	})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.Write(body)
}

// handler routes the health endpoints.
func (a *App) handler() fasthttp.RequestHandler {
	metricsHandler := metrics.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)
		if !ctx.IsGet() && !ctx.IsHead() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
		switch string(ctx.Path()) {
		case "/", "/ping":
			a.statusHandlerFast(ctx)
		case "/metrics":
			metricsHandler(ctx)
		default:
			ctx.SetContentType("application/json")
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			_, _ = ctx.WriteString(`{"error":"not found"}`)
		}
	}
}

// startHTTP starts the health listener unless disabled and returns a
// channel that delivers its fatal error.
func (a *App) startHTTP() <-chan error {
	cfg := a.eff.Config
	if cfg.Health.Disabled {
		logger.Info("health_server_disabled")
		return nil
	}

	const (
		readTimeout  = 10 * time.Second
		writeTimeout = 10 * time.Second
		idleTimeout  = 30 * time.Second
	)
	a.srvFast = &fasthttp.Server{
		Handler:            a.handler(),
		Name:               "relaybot",
		MaxRequestBodySize: 64 * 1024,
		ReduceMemoryUsage:  true,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
	}

	addr := a.eff.HealthAddr
	errCh := make(chan error, 1)
	go func() {
		logger.Info("health_server_listening", "addr", addr)
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}
