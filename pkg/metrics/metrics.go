package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var startedAt = time.Now()

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_submissions_total",
			Help: "Submissions accepted from users, by content kind.",
		},
		[]string{"kind"},
	)

	Relays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_relays_total",
			Help: "Messages relayed successfully, by direction.",
		},
		[]string{"direction"},
	)

	DispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_dispatch_failures_total",
			Help: "Relay sends that failed, by direction and reason.",
		},
		[]string{"direction", "reason"},
	)

	ResolutionMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_resolution_misses_total",
			Help: "Replies whose target message belongs to no thread.",
		},
		[]string{"side"},
	)

	InvariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_invariant_violations_total",
			Help: "Correlation invariant violations seen while handling updates.",
		},
	)

	Structured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_structured_total",
			Help: "Structuring results, by producing source.",
		},
		[]string{"source"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_rate_limited_total",
			Help: "Submissions rejected by the per-user flood limiter.",
		},
	)

	TableRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relaybot_table_rows",
			Help: "Rows currently held per table.",
		},
		[]string{"table"},
	)

	uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "relaybot_uptime_seconds",
			Help: "Seconds since the process started.",
		},
		func() float64 { return time.Since(startedAt).Seconds() },
	)
)

func init() {
	prometheus.MustRegister(Submissions)
	prometheus.MustRegister(Relays)
	prometheus.MustRegister(DispatchFailures)
	prometheus.MustRegister(ResolutionMisses)
	prometheus.MustRegister(InvariantViolations)
	prometheus.MustRegister(Structured)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(TableRows)
	prometheus.MustRegister(uptime)
}

// SetTableRows records the current size of a table.
func SetTableRows(table string, n int) {
	TableRows.WithLabelValues(table).Set(float64(n))
}

// Handler serves the default registry in Prometheus text format.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}
