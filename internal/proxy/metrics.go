package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はプロキシのPrometheusメトリクス。
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	UpstreamErrorsTotal *prometheus.CounterVec
	UnmatchedTotal      prometheus.Counter
}

// NewMetrics はプロキシのメトリクスを生成してregistryに登録する。
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookgate_proxy_requests_total",
				Help: "Total number of proxied requests by route and status code",
			},
			[]string{"route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookgate_proxy_request_duration_seconds",
				Help:    "Time from receiving a request to finishing the relayed response",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		UpstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookgate_proxy_upstream_errors_total",
				Help: "Total number of requests that failed before an upstream response was received",
			},
			[]string{"route", "reason"},
		),
		UnmatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookgate_proxy_unmatched_total",
				Help: "Total number of requests that matched no route",
			},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.UpstreamErrorsTotal,
		m.UnmatchedTotal,
	)
	return m
}

func (m *Metrics) observeResponse(route string, code int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeFailure(route, reason string) {
	if m == nil {
		return
	}
	m.UpstreamErrorsTotal.WithLabelValues(route, reason).Inc()
	m.RequestsTotal.WithLabelValues(route, "502").Inc()
}

func (m *Metrics) observeDuration(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) observeUnmatched() {
	if m == nil {
		return
	}
	m.UnmatchedTotal.Inc()
}
