// Package metrics exposes Prometheus counters for delivery and quota decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kathanp/emailbot/pkg/delivery"
)

const namespace = "emailbot"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	EmailsSent       *prometheus.CounterVec
	EmailsFailed     *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	QuotaDeniedTotal *prometheus.CounterVec
	PlanChanges      *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_sent_total",
				Help:      "Emails accepted by a delivery provider.",
			},
			[]string{"provider"},
		),
		EmailsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_failed_total",
				Help:      "Emails rejected by a delivery provider, by error code.",
			},
			[]string{"provider", "code"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Wall time of a bulk send.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"provider"},
		),
		QuotaDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_denied_total",
				Help:      "Requests refused by plan limits.",
			},
			[]string{"resource"},
		),
		PlanChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_changes_total",
				Help:      "Applied subscription changes.",
			},
			[]string{"change"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern and status class.",
			},
			[]string{"method", "route", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSent,
		m.EmailsFailed,
		m.DispatchDuration,
		m.QuotaDeniedTotal,
		m.PlanChanges,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSend counts one delivery attempt. An empty code means success.
func (m *Metrics) ObserveSend(kind delivery.Kind, code string) {
	if code == "" {
		m.EmailsSent.WithLabelValues(string(kind)).Inc()
		return
	}
	m.EmailsFailed.WithLabelValues(string(kind), code).Inc()
}

func (m *Metrics) ObserveDispatch(kind delivery.Kind, d time.Duration) {
	m.DispatchDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) QuotaDenied(resource string) {
	m.QuotaDeniedTotal.WithLabelValues(resource).Inc()
}

func (m *Metrics) PlanChanged(change string) {
	m.PlanChanges.WithLabelValues(change).Inc()
}

// ObserveRequest counts a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
