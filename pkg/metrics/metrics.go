package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igmonitor_fetches_total",
		Help: "Page fetch attempts by outcome",
	}, []string{"outcome"})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "igmonitor_fetch_duration_seconds",
		Help:    "Page fetch duration seconds, excluding pacing delays",
		Buckets: prometheus.DefBuckets,
	})
	Cooldowns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igmonitor_cooldowns_total",
		Help: "Mandatory pauses by reason",
	}, []string{"reason"})
	Extractions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igmonitor_extractions_total",
		Help: "Extraction results by winning strategy (none when exhausted)",
	}, []string{"strategy"})
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igmonitor_events_total",
		Help: "Events emitted by type",
	}, []string{"type"})
	Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igmonitor_cycles_total",
		Help: "Completed poll cycles by result",
	}, []string{"result"})
	Probes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igmonitor_probes_total",
		Help: "Advanced-mode probes by kind and result",
	}, []string{"kind", "result"})
)

func init() {
	prometheus.MustRegister(Fetches, FetchDuration, Cooldowns, Extractions, Events, Cycles, Probes)
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch outcome and its duration
func ObserveFetch(outcome string, start time.Time) {
	Fetches.WithLabelValues(outcome).Inc()
	FetchDuration.Observe(time.Since(start).Seconds())
}

// IncCooldown counts a mandatory pause
func IncCooldown(reason string) { Cooldowns.WithLabelValues(reason).Inc() }

// IncExtraction counts which strategy produced a snapshot
func IncExtraction(strategy string) { Extractions.WithLabelValues(strategy).Inc() }

// IncEvent counts an emitted event
func IncEvent(eventType string) { Events.WithLabelValues(eventType).Inc() }

// IncCycle counts a poll cycle
func IncCycle(success bool) {
	if success {
		Cycles.WithLabelValues("success").Inc()
		return
	}
	Cycles.WithLabelValues("failure").Inc()
}

// IncProbe counts an advanced-mode probe
func IncProbe(kind, result string) { Probes.WithLabelValues(kind, result).Inc() }
