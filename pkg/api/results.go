package api

import "context"

// VerificationStatus is the outcome reported by an identity verification
// handler.
type VerificationStatus string

const (
	VerificationPass   VerificationStatus = "PASS"
	VerificationFail   VerificationStatus = "FAIL"
	VerificationUnsure VerificationStatus = "UNSURE"
)

// VerificationResult is the outcome of identity / document verification.
// Any status other than PASS closes the application.
type VerificationResult struct {
	Status  VerificationStatus
	Reason  string
	Details map[string]any
}

// SanctionResult is the outcome of one sanction (disbursal approval)
// attempt.
type SanctionResult struct {
	Success   bool
	Reference string
	Error     string
}

// ReviewAction is a human reviewer's verdict.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// ReviewDecision carries a manual reviewer's verdict into the workflow.
type ReviewDecision struct {
	Decision   ReviewAction
	ReviewedBy string
	Notes      string
	Reason     string
}

// StageData is the free-form input supplied with a progression call.
// Recognized keys depend on the session's current state.
type StageData map[string]any

// UserProfile returns the "user_profile" entry, or nil when absent.
func (d StageData) UserProfile() map[string]any {
	profile, _ := d["user_profile"].(map[string]any)
	return profile
}

// Review extracts a manual review decision from the stage data. Keys:
// "decision" ("approve" or "reject"), "reviewed_by", "notes", "reason".
func (d StageData) Review() ReviewDecision {
	var rd ReviewDecision
	if v, ok := d["decision"].(string); ok {
		rd.Decision = ReviewAction(v)
	}
	rd.ReviewedBy, _ = d["reviewed_by"].(string)
	rd.Notes, _ = d["notes"].(string)
	rd.Reason, _ = d["reason"].(string)
	return rd
}

// StageHandlers supplies the pluggable business logic for the three
// decision-bearing stages. Handlers return an error only for transport
// or infrastructure failures; a business rejection is expressed in the
// result value.
type StageHandlers interface {
	Verify(ctx context.Context, sessionID string, stage StageData) (*VerificationResult, error)
	Underwrite(ctx context.Context, sessionID string, stage StageData) (*Decision, error)
	Sanction(ctx context.Context, sessionID string, stage StageData) (*SanctionResult, error)
}

// VerifyFunc adapts a function to the verification handler slot.
type VerifyFunc func(ctx context.Context, sessionID string, stage StageData) (*VerificationResult, error)

// UnderwriteFunc adapts a function to the underwriting handler slot.
type UnderwriteFunc func(ctx context.Context, sessionID string, stage StageData) (*Decision, error)

// SanctionFunc adapts a function to the sanction handler slot.
type SanctionFunc func(ctx context.Context, sessionID string, stage StageData) (*SanctionResult, error)

// HandlerFuncs bundles stage handler functions into a StageHandlers. A
// nil entry yields a validation error if its stage is reached.
type HandlerFuncs struct {
	VerifyFn     VerifyFunc
	UnderwriteFn UnderwriteFunc
	SanctionFn   SanctionFunc
}

var _ StageHandlers = HandlerFuncs{}

func (h HandlerFuncs) Verify(ctx context.Context, sessionID string, stage StageData) (*VerificationResult, error) {
	if h.VerifyFn == nil {
		return nil, ValidationError("no verification handler configured")
	}
	return h.VerifyFn(ctx, sessionID, stage)
}

func (h HandlerFuncs) Underwrite(ctx context.Context, sessionID string, stage StageData) (*Decision, error) {
	if h.UnderwriteFn == nil {
		return nil, ValidationError("no underwriting handler configured")
	}
	return h.UnderwriteFn(ctx, sessionID, stage)
}

func (h HandlerFuncs) Sanction(ctx context.Context, sessionID string, stage StageData) (*SanctionResult, error) {
	if h.SanctionFn == nil {
		return nil, ValidationError("no sanction handler configured")
	}
	return h.SanctionFn(ctx, sessionID, stage)
}

// Outcome classifies what a progression call did to the session.
type Outcome string

const (
	// OutcomeAdvanced means the session moved forward along the happy
	// path.
	OutcomeAdvanced Outcome = "advanced"

	// OutcomeVerificationFailed means verification did not pass and the
	// session closed.
	OutcomeVerificationFailed Outcome = "verification_failed"

	// OutcomeEscalated means the session was queued for manual review.
	OutcomeEscalated Outcome = "escalated"

	// OutcomeRejected means a manual reviewer rejected the application
	// and the session closed.
	OutcomeRejected Outcome = "rejected"
)

// ProgressResult reports what one progression call did.
type ProgressResult struct {
	SessionID     string
	PreviousState State
	NewState      State
	Outcome       Outcome

	// Reason is set for non-advanced outcomes.
	Reason string

	// Attempts is the number of sanction attempts consumed, when the
	// call ran the sanction stage.
	Attempts int

	// Session is a snapshot taken after the call's mutations.
	Session *Session
}

// Advanced reports whether the session moved forward along the happy
// path.
func (r *ProgressResult) Advanced() bool {
	return r.Outcome == OutcomeAdvanced
}
