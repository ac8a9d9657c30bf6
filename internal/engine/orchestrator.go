// Package engine implements the workflow orchestrator: the state-machine
// dispatch that drives sessions through intake, verification,
// underwriting, sanction and manual review.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sinifive/loanflow/internal/store"
	"github.com/sinifive/loanflow/pkg/api"
)

// DefaultLockTimeout is the staleness bound after which an abandoned
// session lock is forcibly reclaimed.
const DefaultLockTimeout = 30 * time.Second

// maxSanctionAttempts bounds in-call sanction retries. After the second
// consecutive failure the session is escalated, never retried a third
// time.
const maxSanctionAttempts = 2

// Orchestrator drives the loan-application state machine over a
// SessionStore. It is safe for concurrent use; concurrency control is
// per-session via the store's lock.
type Orchestrator struct {
	store       store.SessionStore
	observer    api.Observer
	clock       clockwork.Clock
	lockTimeout time.Duration
}

var _ api.Orchestrator = (*Orchestrator)(nil)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the observer notified of session lifecycle events.
func WithObserver(obs api.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithClock sets the clock used for lock staleness and audit timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// New creates an Orchestrator over the given store.
func New(st store.SessionStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		observer:    api.NoopObserver{},
		clock:       clockwork.NewRealClock(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func mapStoreErr(err error, sessionID string) error {
	if errors.Is(err, store.ErrSessionNotFound) {
		return api.NotFoundError(sessionID)
	}
	return err
}

// StartSession creates or resumes a session, records the applicant data
// and logs session_started. It fails with a lock-conflict error, without
// mutating, if another operation holds the session.
func (o *Orchestrator) StartSession(ctx context.Context, sessionID string, applicantData map[string]any) (*api.Session, error) {
	if sessionID == "" {
		return nil, api.ValidationError("session id is required")
	}

	sess, err := o.store.Create(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	acquired, err := o.store.AcquireLock(ctx, sessionID, o.lockTimeout)
	if err != nil {
		return nil, mapStoreErr(err, sessionID)
	}
	if !acquired {
		return nil, api.LockConflictError(sessionID, sess.State)
	}
	defer func() {
		_ = o.store.ReleaseLock(ctx, sessionID)
	}()

	// Re-read under the lock so we mutate the current record.
	sess, err = o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err, sessionID)
	}

	data := make(map[string]any, len(applicantData)+1)
	for k, v := range applicantData {
		data[k] = v
	}
	data["started_at"] = o.clock.Now().Format(time.RFC3339)
	sess.MergeUserData(data)

	applicant, _ := applicantData["applicant_name"].(string)
	if applicant == "" {
		applicant = "Unknown"
	}
	sess.AppendAudit(api.EventSessionStarted, map[string]any{"applicant": applicant})

	if err := o.store.Update(ctx, sess); err != nil {
		return nil, mapStoreErr(err, sessionID)
	}

	o.observer.OnSessionStarted(ctx, sess)
	return sess.Snapshot(), nil
}

// ProgressSession advances the session one stage. The per-session lock is
// acquired before any mutation and released on every exit path, including
// handler panics.
func (o *Orchestrator) ProgressSession(ctx context.Context, sessionID string, stage api.StageData, handlers api.StageHandlers) (res *api.ProgressResult, err error) {
	if sessionID == "" {
		return nil, api.ValidationError("session id is required")
	}

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err, sessionID)
	}

	acquired, err := o.store.AcquireLock(ctx, sessionID, o.lockTimeout)
	if err != nil {
		return nil, mapStoreErr(err, sessionID)
	}
	if !acquired {
		return nil, api.LockConflictError(sessionID, sess.State)
	}
	defer func() {
		_ = o.store.ReleaseLock(ctx, sessionID)
	}()
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("stage handler panicked: %v", r)
		}
	}()

	sess, err = o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err, sessionID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch sess.State {
	case api.StateStart:
		return o.initiateSales(ctx, sess, stage)
	case api.StateSales:
		return o.initiateVerification(ctx, sess, stage)
	case api.StateVerify:
		return o.processVerification(ctx, sess, stage, handlers)
	case api.StateUnderwrite:
		return o.processUnderwriting(ctx, sess, stage, handlers)
	case api.StateSanction:
		return o.processSanction(ctx, sess, stage, handlers)
	case api.StateManualReview:
		return o.reviewManually(ctx, sess, stage)
	default:
		return nil, api.TerminalStateError(sess.State)
	}
}

// advance commits a transition to next, persists the session and notifies
// the observer.
func (o *Orchestrator) advance(ctx context.Context, sess *api.Session, next api.State) (api.State, error) {
	prev := sess.State
	if err := sess.Transition(next); err != nil {
		return prev, err
	}
	if err := o.store.Update(ctx, sess); err != nil {
		return prev, mapStoreErr(err, sess.ID)
	}
	o.observer.OnTransition(ctx, sess, prev, next)
	return prev, nil
}

// escalate queues the session for manual review, persists it and notifies
// the observer.
func (o *Orchestrator) escalate(ctx context.Context, sess *api.Session, reason string) (api.State, error) {
	prev := sess.State
	if err := sess.QueueManualReview(reason); err != nil {
		return prev, err
	}
	if err := o.store.Update(ctx, sess); err != nil {
		return prev, mapStoreErr(err, sess.ID)
	}
	o.observer.OnTransition(ctx, sess, prev, api.StateManualReview)
	o.observer.OnEscalated(ctx, sess, reason)
	return prev, nil
}

func (o *Orchestrator) initiateSales(ctx context.Context, sess *api.Session, stage api.StageData) (*api.ProgressResult, error) {
	sess.AppendAudit(api.EventSalesInitiated, map[string]any(stage))

	prev, err := o.advance(ctx, sess, api.StateSales)
	if err != nil {
		return nil, err
	}
	return &api.ProgressResult{
		SessionID:     sess.ID,
		PreviousState: prev,
		NewState:      sess.State,
		Outcome:       api.OutcomeAdvanced,
		Session:       sess.Snapshot(),
	}, nil
}

func (o *Orchestrator) initiateVerification(ctx context.Context, sess *api.Session, stage api.StageData) (*api.ProgressResult, error) {
	var pan string
	if profile := stage.UserProfile(); profile != nil {
		sess.MergeUserData(profile)
		pan, _ = profile["pan"].(string)
	}
	sess.AppendAudit(api.EventVerifyInitiated, map[string]any{"pan": pan})

	prev, err := o.advance(ctx, sess, api.StateVerify)
	if err != nil {
		return nil, err
	}
	return &api.ProgressResult{
		SessionID:     sess.ID,
		PreviousState: prev,
		NewState:      sess.State,
		Outcome:       api.OutcomeAdvanced,
		Session:       sess.Snapshot(),
	}, nil
}

// stageFailed records a handler error without changing session state.
// The caller should retry the progression once the handler is healthy.
func (o *Orchestrator) stageFailed(ctx context.Context, sess *api.Session, stage api.State, herr error) error {
	sess.AppendAudit(api.EventStageFailure, map[string]any{
		"stage": string(stage),
		"error": herr.Error(),
	})
	if err := o.store.Update(ctx, sess); err != nil {
		return mapStoreErr(err, sess.ID)
	}
	return fmt.Errorf("%s stage handler: %w", stage, herr)
}

func (o *Orchestrator) processVerification(ctx context.Context, sess *api.Session, stage api.StageData, handlers api.StageHandlers) (*api.ProgressResult, error) {
	if handlers == nil {
		return nil, api.ValidationError("stage handlers are required in state VERIFY")
	}

	start := o.clock.Now()
	o.observer.OnStageStart(ctx, sess, api.StateVerify)
	result, herr := handlers.Verify(ctx, sess.ID, stage)
	o.observer.OnStageCompleted(ctx, sess, api.StateVerify, herr, o.clock.Since(start))

	if herr != nil {
		return nil, o.stageFailed(ctx, sess, api.StateVerify, herr)
	}

	sess.SetVerificationResult(result)

	if result.Status == api.VerificationPass {
		prev, err := o.advance(ctx, sess, api.StateUnderwrite)
		if err != nil {
			return nil, err
		}
		return &api.ProgressResult{
			SessionID:     sess.ID,
			PreviousState: prev,
			NewState:      sess.State,
			Outcome:       api.OutcomeAdvanced,
			Session:       sess.Snapshot(),
		}, nil
	}

	// Verification failure is terminal: no retry, no manual review.
	prev, err := o.advance(ctx, sess, api.StateClosed)
	if err != nil {
		return nil, err
	}
	return &api.ProgressResult{
		SessionID:     sess.ID,
		PreviousState: prev,
		NewState:      sess.State,
		Outcome:       api.OutcomeVerificationFailed,
		Reason:        result.Reason,
		Session:       sess.Snapshot(),
	}, nil
}

func (o *Orchestrator) processUnderwriting(ctx context.Context, sess *api.Session, stage api.StageData, handlers api.StageHandlers) (*api.ProgressResult, error) {
	if handlers == nil {
		return nil, api.ValidationError("stage handlers are required in state UNDERWRITE")
	}

	start := o.clock.Now()
	o.observer.OnStageStart(ctx, sess, api.StateUnderwrite)
	decision, herr := handlers.Underwrite(ctx, sess.ID, stage)
	o.observer.OnStageCompleted(ctx, sess, api.StateUnderwrite, herr, o.clock.Since(start))

	if herr != nil {
		return nil, o.stageFailed(ctx, sess, api.StateUnderwrite, herr)
	}

	sess.SetUnderwritingResult(decision)

	if decision.Status == api.DecisionApproved {
		prev, err := o.advance(ctx, sess, api.StateSanction)
		if err != nil {
			return nil, err
		}
		return &api.ProgressResult{
			SessionID:     sess.ID,
			PreviousState: prev,
			NewState:      sess.State,
			Outcome:       api.OutcomeAdvanced,
			Session:       sess.Snapshot(),
		}, nil
	}

	// Rejection escalates to a human, it does not close the session.
	sess.RecordFailure(api.StateUnderwrite)
	reason := fmt.Sprintf("underwriting decision: %s", decision.Code)
	prev, err := o.escalate(ctx, sess, reason)
	if err != nil {
		return nil, err
	}
	return &api.ProgressResult{
		SessionID:     sess.ID,
		PreviousState: prev,
		NewState:      sess.State,
		Outcome:       api.OutcomeEscalated,
		Reason:        reason,
		Session:       sess.Snapshot(),
	}, nil
}

func (o *Orchestrator) processSanction(ctx context.Context, sess *api.Session, stage api.StageData, handlers api.StageHandlers) (*api.ProgressResult, error) {
	if handlers == nil {
		return nil, api.ValidationError("stage handlers are required in state SANCTION")
	}

	var last *api.SanctionResult
	for attempt := 1; attempt <= maxSanctionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := o.clock.Now()
		o.observer.OnStageStart(ctx, sess, api.StateSanction)
		result, herr := handlers.Sanction(ctx, sess.ID, stage)
		o.observer.OnStageCompleted(ctx, sess, api.StateSanction, herr, o.clock.Since(start))

		if herr != nil {
			// A handler error burns an attempt like a reported failure,
			// so a flapping disbursal backend cannot retry forever.
			result = &api.SanctionResult{Success: false, Error: herr.Error()}
		}

		sess.SetSanctionResult(result, attempt)

		if result.Success {
			prev, err := o.advance(ctx, sess, api.StateClosed)
			if err != nil {
				return nil, err
			}
			return &api.ProgressResult{
				SessionID:     sess.ID,
				PreviousState: prev,
				NewState:      sess.State,
				Outcome:       api.OutcomeAdvanced,
				Attempts:      attempt,
				Session:       sess.Snapshot(),
			}, nil
		}

		last = result
		sess.RecordFailure(api.StateSanction)
	}

	reason := fmt.Sprintf("sanction failed after %d attempts: %s", maxSanctionAttempts, last.Error)
	prev, err := o.escalate(ctx, sess, reason)
	if err != nil {
		return nil, err
	}
	return &api.ProgressResult{
		SessionID:     sess.ID,
		PreviousState: prev,
		NewState:      sess.State,
		Outcome:       api.OutcomeEscalated,
		Reason:        reason,
		Attempts:      maxSanctionAttempts,
		Session:       sess.Snapshot(),
	}, nil
}

func (o *Orchestrator) reviewManually(ctx context.Context, sess *api.Session, stage api.StageData) (*api.ProgressResult, error) {
	review := stage.Review()

	if review.Decision == api.ReviewApprove {
		sess.AppendAudit(api.EventManualReviewApproved, map[string]any{
			"reviewed_by": review.ReviewedBy,
			"notes":       review.Notes,
		})
		prev, err := o.advance(ctx, sess, api.StateSanction)
		if err != nil {
			return nil, err
		}
		return &api.ProgressResult{
			SessionID:     sess.ID,
			PreviousState: prev,
			NewState:      sess.State,
			Outcome:       api.OutcomeAdvanced,
			Session:       sess.Snapshot(),
		}, nil
	}

	// Anything other than an explicit approval rejects the application.
	sess.AppendAudit(api.EventManualReviewRejected, map[string]any{
		"reviewed_by": review.ReviewedBy,
		"reason":      review.Reason,
	})
	prev, err := o.advance(ctx, sess, api.StateClosed)
	if err != nil {
		return nil, err
	}
	return &api.ProgressResult{
		SessionID:     sess.ID,
		PreviousState: prev,
		NewState:      sess.State,
		Outcome:       api.OutcomeRejected,
		Reason:        review.Reason,
		Session:       sess.Snapshot(),
	}, nil
}
