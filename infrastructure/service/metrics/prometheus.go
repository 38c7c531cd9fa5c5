// Package metrics exposes the security pipeline and audit dispatcher
// counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fixora/condoguard/application/port/outbound"
)

const namespace = "condoguard"

type Prometheus struct {
	registry *prometheus.Registry

	rejections   *prometheus.CounterVec
	riskScores   *prometheus.HistogramVec
	auditWritten *prometheus.CounterVec
	auditDropped *prometheus.CounterVec
	auditFailed  prometheus.Counter
	queueDepth   prometheus.Gauge
}

var _ outbound.PipelineMetrics = (*Prometheus)(nil)

// NewPrometheus registers all collectors, plus Go and process collectors, on
// a dedicated registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests rejected by the security pipeline, by reason.",
		}, []string{"reason"}),
		riskScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Risk scores computed for security events, by action.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"action"}),
		auditWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_written_total",
			Help:      "Audit entries persisted, by type.",
		}, []string{"type"}),
		auditDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_dropped_total",
			Help:      "Audit entries dropped before persistence, by reason.",
		}, []string{"reason"}),
		auditFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit writes that returned an error or panicked.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "Audit entries waiting for a worker.",
		}),
	}
}

func (p *Prometheus) Rejection(reason string) { p.rejections.WithLabelValues(reason).Inc() }

func (p *Prometheus) RiskScore(action string, score int) {
	p.riskScores.WithLabelValues(action).Observe(float64(score))
}

func (p *Prometheus) AuditWritten(auditType string) { p.auditWritten.WithLabelValues(auditType).Inc() }

func (p *Prometheus) AuditDropped(reason string) { p.auditDropped.WithLabelValues(reason).Inc() }

func (p *Prometheus) AuditFailed() { p.auditFailed.Inc() }

func (p *Prometheus) AuditQueueDepth(n int) { p.queueDepth.Set(float64(n)) }

// Registry is exposed for tests and for registering extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
