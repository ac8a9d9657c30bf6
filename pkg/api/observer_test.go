package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type recordingObserver struct {
	NoopObserver
	started     int
	transitions int
	escalations int
}

func (r *recordingObserver) OnSessionStarted(ctx context.Context, sess *Session) { r.started++ }
func (r *recordingObserver) OnTransition(ctx context.Context, sess *Session, from, to State) {
	r.transitions++
}
func (r *recordingObserver) OnEscalated(ctx context.Context, sess *Session, reason string) {
	r.escalations++
}

func TestCompositeObserverFansOut(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	obs := NewCompositeObserver(a, nil, b)

	ctx := context.Background()
	sess := NewSession("s1", nil)
	obs.OnSessionStarted(ctx, sess)
	obs.OnTransition(ctx, sess, StateStart, StateSales)
	obs.OnEscalated(ctx, sess, "why")

	for _, r := range []*recordingObserver{a, b} {
		if r.started != 1 || r.transitions != 1 || r.escalations != 1 {
			t.Fatalf("expected fan-out to each observer, got %+v", r)
		}
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("expected Noop for empty composite")
	}

	single := &recordingObserver{}
	if got := NewCompositeObserver(single, nil); got != single {
		t.Fatalf("expected single observer returned as-is")
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewLoggingObserver(logger)

	ctx := context.Background()
	sess := NewSession("s1", nil)

	obs.OnSessionStarted(ctx, sess)
	obs.OnTransition(ctx, sess, StateStart, StateSales)
	obs.OnStageCompleted(ctx, sess, StateVerify, nil, 10*time.Millisecond)
	obs.OnStageCompleted(ctx, sess, StateVerify, errors.New("bureau down"), time.Millisecond)
	obs.OnEscalated(ctx, sess, "sanction failed")

	out := buf.String()
	for _, want := range []string{
		"session_started",
		"state_transition",
		"stage_completed",
		"manual_review_queued",
		"bureau down",
		"session_id=s1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Fatalf("expected failed stage logged at error level:\n%s", out)
	}
}

func TestBasicMetrics(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()
	sess := NewSession("s1", nil)

	m.OnSessionStarted(ctx, sess)
	m.OnTransition(ctx, sess, StateStart, StateSales)
	m.OnTransition(ctx, sess, StateSales, StateVerify)
	m.OnStageCompleted(ctx, sess, StateVerify, nil, 10*time.Millisecond)
	m.OnStageCompleted(ctx, sess, StateVerify, nil, 20*time.Millisecond)
	m.OnStageCompleted(ctx, sess, StateUnderwrite, errors.New("x"), time.Millisecond)
	m.OnEscalated(ctx, sess, "why")

	snap := m.Snapshot()
	if snap.SessionsStarted != 1 || snap.Transitions != 2 || snap.Escalations != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.StagesCompleted != 2 || snap.StageFailures != 1 {
		t.Fatalf("unexpected stage counters: %+v", snap)
	}
	if snap.AvgStageDuration != 15*time.Millisecond {
		t.Fatalf("expected 15ms average, got %v", snap.AvgStageDuration)
	}
}
