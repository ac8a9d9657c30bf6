package engine

import (
	"context"

	"github.com/sinifive/loanflow/pkg/api"
)

// SessionStatus returns a snapshot of one session without taking the
// session lock.
func (o *Orchestrator) SessionStatus(ctx context.Context, sessionID string) (*api.Session, error) {
	if sessionID == "" {
		return nil, api.ValidationError("session id is required")
	}
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err, sessionID)
	}
	return sess, nil
}

// Sessions returns snapshots of all sessions in the store.
func (o *Orchestrator) Sessions(ctx context.Context) ([]*api.Session, error) {
	return o.store.List(ctx)
}

// SessionsByState returns snapshots of sessions currently in state.
func (o *Orchestrator) SessionsByState(ctx context.Context, state api.State) ([]*api.Session, error) {
	if !state.Valid() {
		return nil, api.ValidationError("unknown state: " + string(state))
	}
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*api.Session, 0, len(all))
	for _, sess := range all {
		if sess.State == state {
			out = append(out, sess)
		}
	}
	return out, nil
}

// ManualReviewQueue returns every session that was escalated to manual
// review. The flag persists after a decision resumes the session, so the
// queue also covers sessions a reviewer has already released.
func (o *Orchestrator) ManualReviewQueue(ctx context.Context) ([]*api.Session, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*api.Session
	for _, sess := range all {
		if sess.ManualReview.Queued {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Stats aggregates the monitoring view across all sessions.
func (o *Orchestrator) Stats(ctx context.Context) (api.WorkflowStats, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return api.WorkflowStats{}, err
	}

	stats := api.WorkflowStats{
		TotalSessions: len(all),
		ByState:       make(map[api.State]int),
	}
	for _, sess := range all {
		stats.ByState[sess.State]++
		stats.FailureCount += sess.TotalFailures()
		if sess.ManualReview.Queued {
			stats.ManualReviewCount++
		}
		if sess.State == api.StateClosed {
			stats.ClosedCount++
		}
	}
	return stats, nil
}
