// Package metrics provides Prometheus metrics for the hexwatch service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hexwatch"

// Label values used by the scanner.
const (
	CycleIdle       = "idle"
	CycleProcessed  = "processed"
	CycleMalformed  = "malformed"
	CycleStoreError = "store_error"

	FetchTransient = "transient"
	FetchMalformed = "malformed"

	SkipDecode    = "decode"
	SkipUnwatched = "unwatched"
	SkipNoColor   = "no_color"
	SkipOwner     = "owner"
)

var (
	scanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "cycles_total",
		Help:      "Poll cycles by outcome.",
	}, []string{"outcome"})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "fetch_errors_total",
		Help:      "Failed auction page fetches by kind.",
	}, []string{"kind"})

	entriesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "entries_processed_total",
		Help:      "Auction entries recorded in the ledger.",
	})

	entriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "entries_skipped_total",
		Help:      "New auction entries dropped during classification, by reason.",
	}, []string{"reason"})

	cursorValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "cursor_ms",
		Help:      "Current scan cursor (auction lastUpdated, epoch ms).",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "fetch_duration_seconds",
		Help:      "Auction page download time.",
		Buckets:   prometheus.DefBuckets,
	})

	alertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "alerts_total",
		Help:      "Alerts delivered per channel and result.",
	}, []string{"channel", "result"})

	webhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "webhook_duration_seconds",
		Help:      "Webhook POST latency.",
		Buckets:   prometheus.DefBuckets,
	})
)

// ObserveCycle counts one poll cycle.
func ObserveCycle(outcome string) { scanCycles.WithLabelValues(outcome).Inc() }

// ObserveFetchError counts a failed fetch.
func ObserveFetchError(kind string) { fetchErrors.WithLabelValues(kind).Inc() }

// ObserveFetch records how long a page download took.
func ObserveFetch(d time.Duration) { fetchDuration.Observe(d.Seconds()) }

// AddProcessed adds n recorded entries.
func AddProcessed(n int) { entriesProcessed.Add(float64(n)) }

// ObserveSkip counts a dropped entry.
func ObserveSkip(reason string) { entriesSkipped.WithLabelValues(reason).Inc() }

// SetCursor publishes the current scan cursor.
func SetCursor(v int64) { cursorValue.Set(float64(v)) }

// ObserveAlert counts a delivered or failed alert.
func ObserveAlert(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	alertsSent.WithLabelValues(channel, result).Inc()
}

// ObserveWebhook records webhook latency.
func ObserveWebhook(d time.Duration) { webhookDuration.Observe(d.Seconds()) }

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
