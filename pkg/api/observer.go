package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the orchestrator for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow progression.
type Observer interface {
	// OnSessionStarted is called once when a session is started via
	// StartSession.
	OnSessionStarted(ctx context.Context, sess *Session)

	// OnStageStart is called before a stage handler is invoked.
	OnStageStart(ctx context.Context, sess *Session, stage State)

	// OnStageCompleted is called after a stage handler returns, for both
	// successes and failures (err != nil).
	OnStageCompleted(ctx context.Context, sess *Session, stage State, err error, duration time.Duration)

	// OnTransition is called after a session's state changed.
	OnTransition(ctx context.Context, sess *Session, from, to State)

	// OnEscalated is called when a session is queued for manual review.
	OnEscalated(ctx context.Context, sess *Session, reason string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnSessionStarted(ctx context.Context, sess *Session)          {}
func (NoopObserver) OnStageStart(ctx context.Context, sess *Session, stage State) {}
func (NoopObserver) OnStageCompleted(ctx context.Context, sess *Session, stage State, err error, d time.Duration) {
}
func (NoopObserver) OnTransition(ctx context.Context, sess *Session, from, to State) {}
func (NoopObserver) OnEscalated(ctx context.Context, sess *Session, reason string)   {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnSessionStarted(ctx context.Context, sess *Session) {
	for _, o := range c.observers {
		o.OnSessionStarted(ctx, sess)
	}
}

func (c *CompositeObserver) OnStageStart(ctx context.Context, sess *Session, stage State) {
	for _, o := range c.observers {
		o.OnStageStart(ctx, sess, stage)
	}
}

func (c *CompositeObserver) OnStageCompleted(ctx context.Context, sess *Session, stage State, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStageCompleted(ctx, sess, stage, err, d)
	}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, sess *Session, from, to State) {
	for _, o := range c.observers {
		o.OnTransition(ctx, sess, from, to)
	}
}

func (c *CompositeObserver) OnEscalated(ctx context.Context, sess *Session, reason string) {
	for _, o := range c.observers {
		o.OnEscalated(ctx, sess, reason)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs session / stage
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnSessionStarted(ctx context.Context, sess *Session) {
	o.Logger.InfoContext(ctx, "session_started",
		slog.String("session_id", sess.ID),
	)
}

func (o *LoggingObserver) OnStageStart(ctx context.Context, sess *Session, stage State) {
	o.Logger.DebugContext(ctx, "stage_start",
		slog.String("session_id", sess.ID),
		slog.String("stage", string(stage)),
	)
}

func (o *LoggingObserver) OnStageCompleted(ctx context.Context, sess *Session, stage State, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "stage_completed",
		slog.String("session_id", sess.ID),
		slog.String("stage", string(stage)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnTransition(ctx context.Context, sess *Session, from, to State) {
	o.Logger.InfoContext(ctx, "state_transition",
		slog.String("session_id", sess.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (o *LoggingObserver) OnEscalated(ctx context.Context, sess *Session, reason string) {
	o.Logger.WarnContext(ctx, "manual_review_queued",
		slog.String("session_id", sess.ID),
		slog.String("reason", reason),
	)
}

// BasicMetrics collects simple counters and aggregate stage durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	sessionsStarted    atomic.Int64
	transitions        atomic.Int64
	escalations        atomic.Int64
	stagesCompleted    atomic.Int64
	stageFailures      atomic.Int64
	totalStageDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	SessionsStarted int64
	Transitions     int64
	Escalations     int64

	StagesCompleted  int64
	StageFailures    int64
	AvgStageDuration time.Duration
}

func (m *BasicMetrics) OnSessionStarted(ctx context.Context, sess *Session) {
	m.sessionsStarted.Add(1)
}

func (m *BasicMetrics) OnTransition(ctx context.Context, sess *Session, from, to State) {
	m.transitions.Add(1)
}

func (m *BasicMetrics) OnEscalated(ctx context.Context, sess *Session, reason string) {
	m.escalations.Add(1)
}

func (m *BasicMetrics) OnStageCompleted(ctx context.Context, sess *Session, stage State, err error, d time.Duration) {
	if err != nil {
		m.stageFailures.Add(1)
		return
	}
	m.stagesCompleted.Add(1)
	m.totalStageDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	completed := m.stagesCompleted.Load()
	totalNs := m.totalStageDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		SessionsStarted:  m.sessionsStarted.Load(),
		Transitions:      m.transitions.Load(),
		Escalations:      m.escalations.Load(),
		StagesCompleted:  completed,
		StageFailures:    m.stageFailures.Load(),
		AvgStageDuration: avg,
	}
}
