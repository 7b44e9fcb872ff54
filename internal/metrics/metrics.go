// Package metrics exposes the service's Prometheus metrics.
//
// A Collector registers its metrics on the Registerer it is given, so
// tests use a fresh prometheus.NewRegistry() and the server uses its own
// registry served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chronicle"

// Collector records business and HTTP metrics. It satisfies
// service.Recorder and middleware.HTTPRecorder.
type Collector struct {
	logins         prometheus.Counter
	entryMutations *prometheus.CounterVec
	aiReplies      *prometheus.CounterVec
	sessionsSwept  prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewCollector creates the chronicle metrics and registers them with reg.
// It panics if they are already registered there.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Successful logins.",
		}),
		entryMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_mutations_total",
			Help:      "Journal entry mutations by operation.",
		}, []string{"op"}),
		aiReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_replies_total",
			Help:      "AI companion replies by outcome (upstream, fallback, error).",
		}, []string{"outcome"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions deleted by the sweeper.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.logins,
		c.entryMutations,
		c.aiReplies,
		c.sessionsSwept,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// RegisterRuntime adds the Go runtime and process collectors to reg.
func RegisterRuntime(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Login counts a successful login.
func (c *Collector) Login() {
	c.logins.Inc()
}

// EntryMutation counts a create, update or delete of an entry.
func (c *Collector) EntryMutation(op string) {
	c.entryMutations.WithLabelValues(op).Inc()
}

// AIReply counts a chat reply by outcome.
func (c *Collector) AIReply(outcome string) {
	c.aiReplies.WithLabelValues(outcome).Inc()
}

// SessionsSwept counts sessions removed by one sweeper run.
func (c *Collector) SessionsSwept(n int64) {
	c.sessionsSwept.Add(float64(n))
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
