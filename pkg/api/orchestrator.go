package api

import "context"

// WorkflowStats aggregates the monitoring view across all sessions.
type WorkflowStats struct {
	TotalSessions     int
	ByState           map[State]int
	ManualReviewCount int
	FailureCount      int
	ClosedCount       int
}

// Orchestrator drives sessions through the workflow state machine. All
// mutating operations are guarded by the per-session lock; monitoring
// reads take no lock and return snapshots.
type Orchestrator interface {
	// StartSession creates (or resumes) a session and records the
	// initial applicant data. It fails with a lock-conflict error, and
	// no mutation, if the session is locked by another operation.
	StartSession(ctx context.Context, sessionID string, applicantData map[string]any) (*Session, error)

	// ProgressSession advances the session one stage, dispatching to the
	// supplied handlers. Business non-success is reported through the
	// result's Outcome; not-found, lock-conflict, validation and
	// invalid-state conditions are returned as *Error values.
	ProgressSession(ctx context.Context, sessionID string, stage StageData, handlers StageHandlers) (*ProgressResult, error)

	// SessionStatus returns a snapshot of one session.
	SessionStatus(ctx context.Context, sessionID string) (*Session, error)

	// Sessions returns snapshots of all sessions.
	Sessions(ctx context.Context) ([]*Session, error)

	// SessionsByState returns snapshots of sessions currently in state.
	SessionsByState(ctx context.Context, state State) ([]*Session, error)

	// ManualReviewQueue returns sessions escalated for human decision.
	ManualReviewQueue(ctx context.Context) ([]*Session, error)

	// Stats aggregates counts by state, escalations, stage failures and
	// closures.
	Stats(ctx context.Context) (WorkflowStats, error)
}
