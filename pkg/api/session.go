package api

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// State is a workflow state in the loan-application state machine.
type State string

const (
	StateStart        State = "START"
	StateSales        State = "SALES"
	StateVerify       State = "VERIFY"
	StateUnderwrite   State = "UNDERWRITE"
	StateSanction     State = "SANCTION"
	StateManualReview State = "MANUAL_REVIEW"
	StateClosed       State = "CLOSED"
)

// Transitions is the allowed-transition table. A state missing from the
// table, or present with an empty slice, is terminal.
var Transitions = map[State][]State{
	StateStart:        {StateSales},
	StateSales:        {StateVerify},
	StateVerify:       {StateUnderwrite, StateClosed},
	StateUnderwrite:   {StateSanction, StateManualReview},
	StateSanction:     {StateClosed, StateManualReview},
	StateManualReview: {StateSanction, StateClosed},
	StateClosed:       {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := Transitions[s]
	return ok
}

// CanTransitionTo reports whether the transition s -> next is allowed.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range Transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return len(Transitions[s]) == 0
}

// EventType names an audit trail entry.
type EventType string

const (
	EventSessionStarted       EventType = "session_started"
	EventSalesInitiated       EventType = "sales_initiated"
	EventVerifyInitiated      EventType = "verify_initiated"
	EventVerificationPassed   EventType = "verification_passed"
	EventVerificationFailed   EventType = "verification_failed"
	EventUnderwritingApproved EventType = "underwriting_approved"
	EventUnderwritingRejected EventType = "underwriting_rejected"
	EventSanctionSuccessful   EventType = "sanction_successful"
	EventSanctionFailed       EventType = "sanction_failed"
	EventManualReviewQueued   EventType = "manual_review_queued"
	EventManualReviewApproved EventType = "manual_review_approved"
	EventManualReviewRejected EventType = "manual_review_rejected"
	EventStateTransition      EventType = "state_transition"
	EventUserDataUpdated      EventType = "user_data_updated"
	EventStageFailure         EventType = "stage_failure"
)

// AuditEvent is one entry in a session's append-only audit trail.
type AuditEvent struct {
	ID        uuid.UUID
	Timestamp time.Time
	Type      EventType
	Details   map[string]any

	// State is the session state at the time the event was recorded.
	State State
}

// LockInfo describes the per-session exclusive lock.
type LockInfo struct {
	Held       bool
	AcquiredAt time.Time
}

// ManualReviewInfo records whether a session is queued for a human
// decision and why.
type ManualReviewInfo struct {
	Queued bool
	Reason string
}

// Session is the full state of one loan application as it moves through
// the workflow. Sessions are not safe for concurrent mutation; the
// orchestrator serializes access through the store's lock.
type Session struct {
	ID        string
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time

	Lock LockInfo

	UserData map[string]any

	Verification *VerificationResult
	Underwriting *Decision
	Sanction     *SanctionResult

	ManualReview  ManualReviewInfo
	FailureCounts map[State]int

	AuditLog []AuditEvent

	clock clockwork.Clock
}

// NewSession creates a session in the START state. A nil clock defaults
// to the wall clock.
func NewSession(id string, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	return &Session{
		ID:            id,
		State:         StateStart,
		CreatedAt:     now,
		UpdatedAt:     now,
		UserData:      make(map[string]any),
		FailureCounts: make(map[State]int),
		clock:         clock,
	}
}

// SetClock replaces the clock used for audit and update timestamps.
// Stores call this after rehydrating a session from storage.
func (s *Session) SetClock(clock clockwork.Clock) {
	if clock != nil {
		s.clock = clock
	}
}

func (s *Session) now() time.Time {
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s.clock.Now()
}

// AppendAudit records an audit event stamped with the current state.
func (s *Session) AppendAudit(t EventType, details map[string]any) {
	now := s.now()
	s.AuditLog = append(s.AuditLog, AuditEvent{
		ID:        uuid.New(),
		Timestamp: now,
		Type:      t,
		Details:   details,
		State:     s.State,
	})
	s.UpdatedAt = now
}

// Transition moves the session to next, enforcing the transition table,
// and records a state_transition audit event.
func (s *Session) Transition(next State) error {
	if s.State.Terminal() {
		return TerminalStateError(s.State)
	}
	if !s.State.CanTransitionTo(next) {
		return InvalidStateError(s.State, next)
	}
	from := s.State
	s.State = next
	s.AppendAudit(EventStateTransition, map[string]any{
		"from": string(from),
		"to":   string(next),
	})
	return nil
}

// MergeUserData merges data into the session's user data and records
// which fields changed.
func (s *Session) MergeUserData(data map[string]any) {
	if len(data) == 0 {
		return
	}
	if s.UserData == nil {
		s.UserData = make(map[string]any, len(data))
	}
	fields := make([]string, 0, len(data))
	for k, v := range data {
		s.UserData[k] = v
		fields = append(fields, k)
	}
	sort.Strings(fields)
	s.AppendAudit(EventUserDataUpdated, map[string]any{"fields": fields})
}

// SetVerificationResult records the outcome of identity verification.
func (s *Session) SetVerificationResult(res *VerificationResult) {
	s.Verification = res
	if res.Status == VerificationPass {
		s.AppendAudit(EventVerificationPassed, map[string]any{
			"status": string(res.Status),
		})
		return
	}
	s.AppendAudit(EventVerificationFailed, map[string]any{
		"status": string(res.Status),
		"reason": res.Reason,
	})
}

// SetUnderwritingResult records the underwriting decision.
func (s *Session) SetUnderwritingResult(d *Decision) {
	s.Underwriting = d
	if d.Status == DecisionApproved {
		s.AppendAudit(EventUnderwritingApproved, map[string]any{
			"code":            string(d.Code),
			"approved_amount": d.ApprovedAmount,
			"risk_bucket":     string(d.RiskBucket),
		})
		return
	}
	s.AppendAudit(EventUnderwritingRejected, map[string]any{
		"code":   string(d.Code),
		"reason": d.Reason,
	})
}

// SetSanctionResult records one sanction attempt.
func (s *Session) SetSanctionResult(res *SanctionResult, attempt int) {
	s.Sanction = res
	if res.Success {
		s.AppendAudit(EventSanctionSuccessful, map[string]any{
			"attempt":   attempt,
			"reference": res.Reference,
		})
		return
	}
	s.AppendAudit(EventSanctionFailed, map[string]any{
		"attempt": attempt,
		"error":   res.Error,
	})
}

// RecordFailure increments the failure counter for stage, appends a
// stage_failure audit event carrying the new count, and returns it.
func (s *Session) RecordFailure(stage State) int {
	if s.FailureCounts == nil {
		s.FailureCounts = make(map[State]int)
	}
	s.FailureCounts[stage]++
	count := s.FailureCounts[stage]
	s.AppendAudit(EventStageFailure, map[string]any{
		"stage":         string(stage),
		"attempt_count": count,
	})
	return count
}

// TotalFailures returns the sum of failure counters across all stages.
func (s *Session) TotalFailures() int {
	total := 0
	for _, n := range s.FailureCounts {
		total += n
	}
	return total
}

// QueueManualReview escalates the session to MANUAL_REVIEW and records
// the reason.
func (s *Session) QueueManualReview(reason string) error {
	if err := s.Transition(StateManualReview); err != nil {
		return err
	}
	s.ManualReview = ManualReviewInfo{Queued: true, Reason: reason}
	s.AppendAudit(EventManualReviewQueued, map[string]any{"reason": reason})
	return nil
}

// Snapshot returns a deep copy of the session safe to hand to callers
// while the original keeps mutating.
func (s *Session) Snapshot() *Session {
	out := &Session{
		ID:           s.ID,
		State:        s.State,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Lock:         s.Lock,
		ManualReview: s.ManualReview,
		clock:        s.clock,
	}

	out.UserData = make(map[string]any, len(s.UserData))
	for k, v := range s.UserData {
		out.UserData[k] = v
	}
	out.FailureCounts = make(map[State]int, len(s.FailureCounts))
	for k, v := range s.FailureCounts {
		out.FailureCounts[k] = v
	}

	if s.Verification != nil {
		v := *s.Verification
		out.Verification = &v
	}
	if s.Underwriting != nil {
		d := *s.Underwriting
		d.Checks = append([]RuleCheck(nil), s.Underwriting.Checks...)
		out.Underwriting = &d
	}
	if s.Sanction != nil {
		r := *s.Sanction
		out.Sanction = &r
	}

	out.AuditLog = make([]AuditEvent, len(s.AuditLog))
	for i, ev := range s.AuditLog {
		cp := ev
		if ev.Details != nil {
			cp.Details = make(map[string]any, len(ev.Details))
			for k, v := range ev.Details {
				cp.Details[k] = v
			}
		}
		out.AuditLog[i] = cp
	}
	return out
}
