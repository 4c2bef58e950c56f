package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/do/v2"
)

// Metrics holds the Prometheus instruments for the call lifecycle.
type Metrics struct {
	WebhookEventsTotal    *prometheus.CounterVec
	AnalysisRunsTotal     *prometheus.CounterVec
	AnalysisSeconds       prometheus.Histogram
	TranscriptChunksTotal *prometheus.CounterVec
	ActiveCalls           prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachcall_webhook_events_total",
				Help: "Webhook deliveries by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		AnalysisRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachcall_analysis_runs_total",
				Help: "Post-call analysis runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		AnalysisSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coachcall_analysis_seconds",
				Help:    "Post-call analysis run duration",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		TranscriptChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachcall_transcript_chunks_total",
				Help: "Transcript chunks stored by speaker",
			},
			[]string{"speaker"},
		),
		ActiveCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coachcall_active_calls",
				Help: "Calls currently tracked in memory",
			},
		),
	}
}

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Metrics, error) {
		return NewMetrics(prometheus.DefaultRegisterer), nil
	})
}
