// Package metrics holds the radar's Prometheus instruments and the
// optional localhost debug server. Cardinality is bounded: no per-entity
// labels.
package metrics

import (
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_tick_duration_seconds",
		Help:    "Time spent in one radar tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	entitiesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_entities_tracked",
		Help: "Current tracked entity population",
	})

	entitiesInRadius = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_entities_in_radius",
		Help: "Entities inside the configured radius at the last tick",
	})

	snapshotWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_snapshot_writes_total",
		Help: "Snapshots successfully persisted",
	})

	snapshotRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_snapshot_retries_total",
		Help: "Snapshot write retry attempts",
	})

	snapshotDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_snapshot_dropped_total",
		Help: "Snapshots dropped after exhausting the retry ceiling",
	})

	snapshotCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_snapshot_coalesced_total",
		Help: "Pending snapshots replaced before being written",
	})

	writesOverBudget = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_snapshot_over_budget_total",
		Help: "Snapshot writes slower than the latency budget",
	})

	writeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_snapshot_write_seconds",
		Help:    "Snapshot write latency (temp write + rename)",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	feedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_feed_events_total",
		Help: "Feed events applied to the store",
	}, []string{"type"}) // bounded: spawn, move, health, despawn, observer

	feedMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_feed_malformed_total",
		Help: "Feed lines rejected during decode",
	})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_publish_clients",
		Help: "Currently connected snapshot subscribers",
	})
)

func RecordTick(d time.Duration)       { tickDuration.Observe(d.Seconds()) }
func UpdateTracked(n int)              { entitiesTracked.Set(float64(n)) }
func UpdateInRadius(n int)             { entitiesInRadius.Set(float64(n)) }
func RecordWrite(d time.Duration)      { snapshotWrites.Inc(); writeLatency.Observe(d.Seconds()) }
func RecordRetry()                     { snapshotRetries.Inc() }
func RecordDrop()                      { snapshotDropped.Inc() }
func RecordCoalesced()                 { snapshotCoalesced.Inc() }
func RecordOverBudget()                { writesOverBudget.Inc() }
func RecordFeedEvent(eventType string) { feedEvents.WithLabelValues(eventType).Inc() }
func RecordFeedMalformed()             { feedMalformed.Inc() }
func UpdateSubscribers(n int)          { wsClients.Set(float64(n)) }

// StartDebugServer serves /metrics, /health and pprof on addr. Intended
// for localhost binds only.
func StartDebugServer(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("debug server stopped", zap.Error(err))
		}
	}()
}
