package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	TasksScheduled  = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_tasks_scheduled_total", Help: "Tasks created via the API"})
	ClaimsWon       = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_claims_won_total", Help: "Claims confirmed by the executor"})
	ClaimsLost      = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_claims_lost_total", Help: "Claims lost to a concurrent executor or ineligible task"})
	CallsPlaced     = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_placed_total", Help: "Outbound calls accepted by the platform"})
	CallsFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_failed_total", Help: "Tasks transitioned to failed"})
	RateLimited     = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_rate_limited_total", Help: "Placements deferred by the per-agent rate limiter"})
	WebhooksRelayed = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_webhooks_relayed_total", Help: "Completion webhooks matched and delivered to chat"})
	WebhooksDropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "calls_webhooks_dropped_total", Help: "Completion webhooks with no matching correlation record"})
	TasksDueGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "calls_tasks_due", Help: "Due tasks seen in the last scheduler tick"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			TasksScheduled,
			ClaimsWon,
			ClaimsLost,
			CallsPlaced,
			CallsFailed,
			RateLimited,
			WebhooksRelayed,
			WebhooksDropped,
			TasksDueGauge,
		)
	})
	return promhttp.Handler()
}
