package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sinifive/loanflow/pkg/api"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg)

	ctx := context.Background()
	sess := api.NewSession("s1", nil)

	obs.OnSessionStarted(ctx, sess)
	obs.OnTransition(ctx, sess, api.StateStart, api.StateSales)
	obs.OnTransition(ctx, sess, api.StateSales, api.StateVerify)
	obs.OnStageCompleted(ctx, sess, api.StateVerify, nil, 15*time.Millisecond)
	obs.OnStageCompleted(ctx, sess, api.StateVerify, errors.New("bureau down"), time.Millisecond)
	obs.OnEscalated(ctx, sess, "sanction failed")

	if got := testutil.ToFloat64(obs.sessionsStarted); got != 1 {
		t.Fatalf("sessions_started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.transitions.WithLabelValues("START", "SALES")); got != 1 {
		t.Fatalf("transitions{START,SALES} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.transitions.WithLabelValues("SALES", "VERIFY")); got != 1 {
		t.Fatalf("transitions{SALES,VERIFY} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.stageFailures.WithLabelValues("VERIFY")); got != 1 {
		t.Fatalf("stage_failures{VERIFY} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.escalations); got != 1 {
		t.Fatalf("escalations = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(obs.stageDuration); got != 1 {
		t.Fatalf("expected 1 duration series, got %d", got)
	}
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}

	// Registering a second observer on the same registry collides.
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
