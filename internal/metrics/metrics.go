// Package metrics exposes pipeline counters to Prometheus and keeps the health
// snapshot served on /health.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "albumnews"

// Item outcomes.
const (
	OutcomeSkipped      = "skip"
	OutcomeNoMedia      = "dropped_no_media"
	OutcomeCacheFailed  = "dropped_cache_failed"
	OutcomeMarked       = "marked"
	OutcomeUnmarked     = "unmarked"
	OutcomeLedgerFailed = "ledger_failed"
)

var (
	// ItemsTotal counts items by category and what happened to them.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items seen per category by outcome",
		},
		[]string{"category", "outcome"},
	)

	// OGScrapesTotal counts publisher page scrapes.
	OGScrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "og_scrapes_total",
			Help:      "Publisher metadata scrapes by result",
		},
		[]string{"result"},
	)

	// CacheRequestsTotal counts media cache requests.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Media cache requests by result",
		},
		[]string{"result"},
	)

	// DeliveriesTotal counts delivery calls.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery calls by kind and status",
		},
		[]string{"kind", "status"},
	)

	SweepRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Cached media files removed by retention sweeps",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of ingestion passes in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// RecordItem records one item outcome.
func RecordItem(category, outcome string) {
	ItemsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordScrape records one publisher page scrape.
func RecordScrape(result string) {
	OGScrapesTotal.WithLabelValues(result).Inc()
}

// RecordCache records one media cache request.
func RecordCache(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery records one delivery call.
func RecordDelivery(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DeliveriesTotal.WithLabelValues(kind, status).Inc()
}

// Health is the pass-level status.
type Health struct {
	mu sync.RWMutex

	LastRunTime   time.Time
	LastDuration  time.Duration
	LastDelivered int
	LastErrorTime time.Time
	LastError     string
	Passes        int64
	IsHealthy     bool

	passFailed bool
}

var Global = &Health{IsHealthy: true}

// StartPass clears the failure flag carried by the previous pass.
func (h *Health) StartPass() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passFailed = false
}

// RecordPass stores the result of a finished pass. The pass counts as healthy
// only when SetError was not called since StartPass.
func (h *Health) RecordPass(duration time.Duration, delivered int) {
	PassDuration.Observe(duration.Seconds())

	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastRunTime = time.Now()
	h.LastDuration = duration
	h.LastDelivered = delivered
	h.Passes++
	h.IsHealthy = !h.passFailed
}

func (h *Health) SetError(err string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastError = err
	h.LastErrorTime = time.Now()
	h.IsHealthy = false
	h.passFailed = true
}

func (h *Health) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"passes":           h.Passes,
		"last_run_time":    h.LastRunTime.Format(time.RFC3339),
		"last_duration_ms": h.LastDuration.Milliseconds(),
		"last_delivered":   h.LastDelivered,
		"last_error_time":  h.LastErrorTime.Format(time.RFC3339),
		"last_error":       h.LastError,
		"is_healthy":       h.IsHealthy,
	}
}

// HealthHandler serves the snapshot as JSON, answering 503 after a failed pass.
func (h *Health) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	stats := h.GetStats()

	status := "ok"
	w.Header().Set("Content-Type", "application/json")
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	stats["status"] = status
	json.NewEncoder(w).Encode(stats)
}
