// Package metrics provides Prometheus instrumentation for the settlement
// core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerPostings counts journal batches posted, partitioned by
	// reference type.
	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_ledger_postings_total",
		Help: "Total journal batches posted",
	}, []string{"ref_type"})

	// PositionsClosed counts full closes by the account mode that routed
	// settlement.
	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_positions_closed_total",
		Help: "Total positions fully closed",
	}, []string{"mode"})

	// DistributionsTotal counts fund trades distributed to participants.
	DistributionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_pamm_distributions_total",
		Help: "Total fund trades distributed",
	})

	// CommissionsTotal counts IB commission rows created.
	CommissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_ib_commissions_total",
		Help: "Total IB commissions calculated",
	})

	// OutboxRetries counts outbox items that needed the background worker.
	OutboxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_outbox_retries_total",
		Help: "Outbox items retried by the worker",
	}, []string{"kind"})

	// WebSocketClients tracks connected notification clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// ReconDiscrepancies counts wallets flagged out of line with the
	// journal.
	ReconDiscrepancies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_recon_discrepancies_total",
		Help: "Wallets flagged by reconciliation",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality is not a concern.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
