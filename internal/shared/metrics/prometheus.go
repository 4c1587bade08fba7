package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "triage_sessions_active",
			Help: "Number of dialogue sessions currently registered",
		},
	)

	consultsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_consults_completed_total",
			Help: "Total number of completed consults by final urgency",
		},
		[]string{"urgency"},
	)

	escalationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_escalations_applied_total",
			Help: "Total number of escalation rule matches by kind",
		},
		[]string{"kind"}, // literal, semantic
	)

	gatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_gateway_calls_total",
			Help: "Total number of text-generation gateway calls",
		},
		[]string{"operation", "outcome"}, // outcome: ok, error, fallback
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_gateway_call_duration_seconds",
			Help:    "Text-generation gateway call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_handoffs_total",
			Help: "Total number of doctor hand-off attempts by result",
		},
		[]string{"result"}, // scheduled, needs_manual_schedule, failed
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so WebSocket upgrades work
// behind the metrics middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordSessionOpened records a new dialogue session
func RecordSessionOpened() {
	sessionsActive.Inc()
}

// RecordSessionClosed records a dialogue session ending
func RecordSessionClosed() {
	sessionsActive.Dec()
}

// RecordConsultCompleted records a finished consult with its final urgency
func RecordConsultCompleted(urgency string) {
	consultsCompleted.WithLabelValues(urgency).Inc()
}

// RecordEscalation records an escalation rule match
func RecordEscalation(kind string) {
	escalationsApplied.WithLabelValues(kind).Inc()
}

// RecordGatewayCall records a text-generation gateway call
func RecordGatewayCall(operation, outcome string, duration time.Duration) {
	gatewayCalls.WithLabelValues(operation, outcome).Inc()
	gatewayCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHandoff records a doctor hand-off attempt
func RecordHandoff(result string) {
	handoffsTotal.WithLabelValues(result).Inc()
}
