package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GenerationMetrics records billed generation outcomes.
type GenerationMetrics struct {
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	refunds  *prometheus.CounterVec
	uploads  *prometheus.CounterVec
}

// NewGenerationMetrics registers the generation metrics on the provided registerer.
func NewGenerationMetrics(reg prometheus.Registerer) *GenerationMetrics {
	if reg == nil {
		return &GenerationMetrics{}
	}
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_total",
		Help: "Generation jobs by model and terminal status.",
	}, []string{"model", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_job_duration_seconds",
		Help:    "Upstream generation latency in seconds.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300, 360},
	}, []string{"model"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_refunds_total",
		Help: "Compensating credit refunds by ledger reason.",
	}, []string{"reason"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_uploads_total",
		Help: "Generated image uploads by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(jobs, duration, refunds, uploads)
	return &GenerationMetrics{
		jobs:     jobs,
		duration: duration,
		refunds:  refunds,
		uploads:  uploads,
	}
}

// ObserveJob counts a settled job and records its upstream latency.
func (g *GenerationMetrics) ObserveJob(model, status string, elapsed time.Duration) {
	if g == nil || g.jobs == nil {
		return
	}
	model = normalizeLabel(model)
	g.jobs.WithLabelValues(model, normalizeLabel(status)).Inc()
	g.duration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// IncRefund counts a compensating refund.
func (g *GenerationMetrics) IncRefund(reason string) {
	if g == nil || g.refunds == nil {
		return
	}
	g.refunds.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncUpload counts an image upload attempt by outcome (ok/error).
func (g *GenerationMetrics) IncUpload(outcome string) {
	if g == nil || g.uploads == nil {
		return
	}
	g.uploads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
