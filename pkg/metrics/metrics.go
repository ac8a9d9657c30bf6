// Package metrics provides a Prometheus-backed Observer for the
// orchestrator.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sinifive/loanflow/pkg/api"
)

// PrometheusObserver exports orchestrator activity as Prometheus
// metrics. It implements api.Observer.
type PrometheusObserver struct {
	api.NoopObserver

	sessionsStarted prometheus.Counter
	transitions     *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	escalations     prometheus.Counter
	stageDuration   *prometheus.HistogramVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// New creates a PrometheusObserver and registers its collectors with
// reg. A nil registerer defaults to prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loanflow_sessions_started_total",
			Help: "Sessions started.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_transitions_total",
			Help: "State transitions, by source and destination state.",
		}, []string{"from", "to"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_stage_failures_total",
			Help: "Stage handler errors, by stage.",
		}, []string{"stage"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loanflow_escalations_total",
			Help: "Sessions escalated to manual review.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loanflow_stage_duration_seconds",
			Help:    "Stage handler latency, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(
		o.sessionsStarted,
		o.transitions,
		o.stageFailures,
		o.escalations,
		o.stageDuration,
	)
	return o
}

func (o *PrometheusObserver) OnSessionStarted(ctx context.Context, sess *api.Session) {
	o.sessionsStarted.Inc()
}

func (o *PrometheusObserver) OnStageCompleted(ctx context.Context, sess *api.Session, stage api.State, err error, d time.Duration) {
	if err != nil {
		o.stageFailures.WithLabelValues(string(stage)).Inc()
		return
	}
	o.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (o *PrometheusObserver) OnTransition(ctx context.Context, sess *api.Session, from, to api.State) {
	o.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (o *PrometheusObserver) OnEscalated(ctx context.Context, sess *api.Session, reason string) {
	o.escalations.Inc()
}
