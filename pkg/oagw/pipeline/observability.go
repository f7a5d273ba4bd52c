package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the pipeline's OpenTelemetry tracer, emitting one span per
// proxy_request call with a child span for each suspension point named
// in spec.md §5 (resolve, authorize, rate-limit, forward).
var tracer = otel.Tracer("oagw/pipeline")

// Metrics holds the Prometheus instruments the pipeline updates per
// request (SPEC_FULL.md §4 observability hooks). A nil *Metrics is
// safe to call methods on; it simply records nothing.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	headerLatency *prometheus.HistogramVec
}

// NewMetrics constructs and, if reg is non-nil, registers the pipeline's
// instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oagw_requests_total",
			Help: "Outbound proxy requests by upstream, route, and outcome.",
		}, []string{"upstream", "route", "outcome"}),
		headerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oagw_header_phase_latency_seconds",
			Help:    "Time from proxy_request entry to first response header byte.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.headerLatency)
	}
	return m
}

func (m *Metrics) observeOutcome(upstreamAlias, routeID, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(upstreamAlias, routeID, outcome).Inc()
}

func (m *Metrics) observeHeaderLatencySeconds(upstreamAlias, routeID string, seconds float64) {
	if m == nil {
		return
	}
	m.headerLatency.WithLabelValues(upstreamAlias, routeID).Observe(seconds)
}

// startStageSpan starts a named child span under the request's span in ctx.
func startStageSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}
