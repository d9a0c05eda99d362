package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docrender"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// RendersTotal counts render and preview calls by terminal outcome.
	RendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "renders_total", Help: "Render and preview calls by operation, content sort and outcome."},
		[]string{"op", "sort", "outcome"},
	)
	RenderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "render_failures_total", Help: "Failed render and preview calls by operation and reason."},
		[]string{"op", "reason"},
	)
	RenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "render_duration_seconds", Help: "Render and preview latency.", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)
	TemplateRevisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "template_revisions_total", Help: "Content updates that produced a new template revision."},
		[]string{"type"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RendersTotal)
	reg.MustRegister(RenderFailures)
	reg.MustRegister(RenderDuration)
	reg.MustRegister(TemplateRevisions)
}
