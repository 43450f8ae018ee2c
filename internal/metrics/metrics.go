package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mystic_bot"

var (
	// Registry holds the bot's collectors; served from the admin server.
	Registry = prometheus.NewRegistry()

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "outcomes_total",
			Help:      "Generation requests by final outcome.",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Time from debit to outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to ~2m
		},
		[]string{"outcome"},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "refunds_total",
			Help:      "Credits returned to users, by reason and result.",
		},
		[]string{"reason", "result"},
	)

	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "purchases_total",
			Help:      "Telegram Stars payments processed.",
		},
		[]string{"result"},
	)

	reconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "records_total",
			Help:      "Unresolved generation records handled by the sweep.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route.",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		generations,
		generationDuration,
		refunds,
		purchases,
		reconciled,
		httpRequests,
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordGeneration(outcome string, duration time.Duration) {
	generations.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordRefund(reason string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	refunds.WithLabelValues(reason, result).Inc()
}

func RecordPurchase(result string) {
	purchases.WithLabelValues(result).Inc()
}

func RecordReconciled(outcome string) {
	reconciled.WithLabelValues(outcome).Inc()
}

// InstrumentHandler counts requests by chi route pattern so ids never become labels.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
