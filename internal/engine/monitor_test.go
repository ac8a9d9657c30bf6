package engine

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sinifive/loanflow/pkg/api"
)

func newTestSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// seedSessions drives three sessions into distinct states: one closed
// via the happy path, one escalated to manual review, one left at VERIFY.
func seedSessions(t *testing.T, orc *Orchestrator) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []string{"closed", "review", "pending"} {
		if _, err := orc.StartSession(ctx, id, nil); err != nil {
			t.Fatalf("StartSession %s: %v", id, err)
		}
	}

	advanceTo(t, orc, "closed", api.StateClosed, happyHandlers())

	reject := api.HandlerFuncs{
		VerifyFn: passVerify,
		UnderwriteFn: func(ctx context.Context, sessionID string, stage api.StageData) (*api.Decision, error) {
			return &api.Decision{Status: api.DecisionRejected, Code: api.CodeCreditScoreLow}, nil
		},
	}
	advanceTo(t, orc, "review", api.StateManualReview, reject)

	advanceTo(t, orc, "pending", api.StateVerify, nil)
}

func TestSessionsByState(t *testing.T) {
	orc := newTestOrchestrator(t)
	seedSessions(t, orc)
	ctx := context.Background()

	closed, err := orc.SessionsByState(ctx, api.StateClosed)
	if err != nil {
		t.Fatalf("SessionsByState: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "closed" {
		t.Fatalf("unexpected CLOSED sessions: %+v", closed)
	}

	pending, err := orc.SessionsByState(ctx, api.StateVerify)
	if err != nil {
		t.Fatalf("SessionsByState: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "pending" {
		t.Fatalf("unexpected VERIFY sessions: %+v", pending)
	}

	if _, err := orc.SessionsByState(ctx, api.State("BOGUS")); !api.IsValidation(err) {
		t.Fatalf("expected validation error for unknown state, got %v", err)
	}
}

func TestManualReviewQueue(t *testing.T) {
	orc := newTestOrchestrator(t)
	seedSessions(t, orc)

	queue, err := orc.ManualReviewQueue(context.Background())
	if err != nil {
		t.Fatalf("ManualReviewQueue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != "review" {
		t.Fatalf("unexpected review queue: %+v", queue)
	}
	if queue[0].ManualReview.Reason == "" {
		t.Fatalf("expected escalation reason on queued session")
	}
}

func TestManualReviewQueue_CoversReleasedSessions(t *testing.T) {
	orc := newTestOrchestrator(t)
	seedSessions(t, orc)
	ctx := context.Background()

	// Approving the session out of review moves it on but keeps it in
	// the escalation queue and the manual review count.
	res, err := orc.ProgressSession(ctx, "review", api.StageData{
		"decision":    "approve",
		"reviewed_by": "officer-3",
	}, nil)
	if err != nil {
		t.Fatalf("ProgressSession review: %v", err)
	}
	if res.NewState != api.StateSanction {
		t.Fatalf("expected SANCTION after approval, got %s", res.NewState)
	}

	queue, err := orc.ManualReviewQueue(ctx)
	if err != nil {
		t.Fatalf("ManualReviewQueue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != "review" {
		t.Fatalf("unexpected review queue: %+v", queue)
	}
	if queue[0].State != api.StateSanction {
		t.Fatalf("expected queued session at SANCTION, got %s", queue[0].State)
	}

	stats, err := orc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ManualReviewCount != 1 {
		t.Fatalf("expected 1 manual review, got %d", stats.ManualReviewCount)
	}
}

func TestStats(t *testing.T) {
	orc := newTestOrchestrator(t)
	seedSessions(t, orc)

	stats, err := orc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", stats.TotalSessions)
	}
	if stats.ByState[api.StateClosed] != 1 || stats.ByState[api.StateManualReview] != 1 || stats.ByState[api.StateVerify] != 1 {
		t.Fatalf("unexpected state counts: %+v", stats.ByState)
	}
	if stats.ManualReviewCount != 1 {
		t.Fatalf("expected 1 manual review, got %d", stats.ManualReviewCount)
	}
	if stats.ClosedCount != 1 {
		t.Fatalf("expected 1 closed, got %d", stats.ClosedCount)
	}
	// The escalated session recorded one underwriting failure.
	if stats.FailureCount != 1 {
		t.Fatalf("expected 1 failure, got %d", stats.FailureCount)
	}
}

func TestSessionStatus_Validation(t *testing.T) {
	orc := newTestOrchestrator(t)

	if _, err := orc.SessionStatus(context.Background(), ""); !api.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := orc.SessionStatus(context.Background(), "nope"); !api.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
