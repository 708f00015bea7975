package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла обработка (обогащение + транспорт)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов на исполнение
	TotalRequests *prometheus.CounterVec

	// Латентность обогащения отдельно: два сетевых вызова в синхронном пути
	EnrichmentDuration prometheus.Histogram

	// Исходы обогащения: enriched / skipped / failed по видам
	EnrichmentOutcomes *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker транспорта (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность очереди (backpressure) и потери
	AuditBufferFill prometheus.Gauge
	AuditDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "automation_request_duration_seconds",
			Help:    "Histogram of tool execution latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "automation_requests_total",
			Help: "Total number of tool execution requests.",
		}, []string{"tool"}),

		EnrichmentDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "automation_enrichment_duration_seconds",
			Help:    "Histogram of execution enrichment latencies (asset + secret lookups).",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		EnrichmentOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "automation_enrichment_outcomes_total",
			Help: "Enrichment outcomes by kind.",
		}, []string{"outcome", "detail"}), // outcome: enriched|skipped|failed; detail: skip reason / error kind

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "automation_runner_circuit_breaker_state",
			Help: "Current state of the tool runner circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "automation_audit_buffer_utilization",
			Help: "Current number of records in the audit queue.",
		}),

		AuditDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "automation_audit_dropped_total",
			Help: "Audit records dropped due to queue overflow.",
		}),
	}
}
