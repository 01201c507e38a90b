package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each Server gets its own
// registry so tests can run several servers in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	pushEvents   prometheus.Counter
	pullRequests prometheus.Counter
	subscribers  prometheus.Gauge
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatchd_http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatchd_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		pushEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchd_push_events_accepted_total",
			Help: "Sync events accepted into the event log.",
		}),
		pullRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchd_pull_requests_total",
			Help: "Sync pull requests served.",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatchd_stream_subscribers",
			Help: "Currently connected SSE subscribers.",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	m.requests.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordPushEvents adds n to the accepted push events counter.
func (m *Metrics) RecordPushEvents(n int64) {
	m.pushEvents.Add(float64(n))
}

// RecordPullRequest increments the pull request counter.
func (m *Metrics) RecordPullRequest() {
	m.pullRequests.Inc()
}

// SubscriberConnected / SubscriberDisconnected track the SSE gauge.
func (m *Metrics) SubscriberConnected()    { m.subscribers.Inc() }
func (m *Metrics) SubscriberDisconnected() { m.subscribers.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
