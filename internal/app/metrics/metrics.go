package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "storefront"

var (
	// Registry holds the storefront's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	checkoutSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "sessions_total",
			Help:      "Checkout sessions by outcome (created, completed, failed, expired).",
		},
		[]string{"outcome"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "verifications_total",
			Help:      "Payment verifications by result.",
		},
		[]string{"result"},
	)

	ordersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Total number of paid orders.",
		},
	)

	orderRevenue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "revenue_total",
			Help:      "Sum of paid order totals in major currency units.",
		},
	)

	mailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "messages_total",
			Help:      "Transactional e-mails by template and result.",
		},
		[]string{"template", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		checkoutSessions,
		payments,
		ordersCreated,
		orderRevenue,
		mailsSent,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordHTTPRequest records one handled request. path should be a route
// template so label cardinality stays bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCheckout counts checkout session transitions.
func RecordCheckout(outcome string, n int) {
	if n <= 0 {
		return
	}
	checkoutSessions.WithLabelValues(outcome).Add(float64(n))
}

// RecordPaymentVerification counts payment verification results.
func RecordPaymentVerification(result string) {
	payments.WithLabelValues(result).Inc()
}

// RecordOrder counts a paid order and its total.
func RecordOrder(total decimal.Decimal) {
	ordersCreated.Inc()
	orderRevenue.Add(total.InexactFloat64())
}

// RecordMail counts a transactional e-mail attempt.
func RecordMail(template string, success bool) {
	mailsSent.WithLabelValues(template, strconv.FormatBool(success)).Inc()
}
