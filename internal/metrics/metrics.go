// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smsrelay_dispatch_total",
		Help: "Dispatch attempts by terminal state",
	}, []string{"state"})

	DispatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smsrelay_dispatch_seconds",
		Help:    "Time from receipt to terminal state for a single dispatch",
		Buckets: prometheus.DefBuckets,
	})

	WebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smsrelay_webhook_total",
		Help: "Webhook callouts by kind (notify/validate) and result",
	}, []string{"kind", "result"})

	PollCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smsrelay_poll_cycles_total",
		Help: "Poll cycles by result",
	}, []string{"result"})

	LedgerEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smsrelay_ledger_entries",
		Help: "Entries currently held by the history ledger",
	})

	ForwardTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smsrelay_forward_total",
		Help: "Inbound message forwards by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		DispatchTotal,
		DispatchSeconds,
		WebhookTotal,
		PollCycles,
		LedgerEntries,
		ForwardTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
