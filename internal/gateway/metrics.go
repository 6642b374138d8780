package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はセッション操作のPrometheusメトリクス。
type Metrics struct {
	SessionOperationsTotal *prometheus.CounterVec
}

// NewMetrics はセッション操作のメトリクスを生成してregistryに登録する。
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookgate_session_operations_total",
				Help: "Total number of session operations by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
	registry.MustRegister(m.SessionOperationsTotal)
	return m
}

func (m *Metrics) observe(op, result string) {
	m.SessionOperationsTotal.WithLabelValues(op, result).Inc()
}
