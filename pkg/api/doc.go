// Package api contains the core building blocks of the loanflow
// orchestration engine: the session entity and its state machine, the
// discriminated stage result types, the stage handler contracts, the
// structured error taxonomy, and the Observer interface.
//
// Most users interact with the higher-level loanflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations or contributors extending the
// engine itself.
//
// # Sessions
//
// A Session is the unit of workflow state: one applicant's progress
// through the ordered stages START, SALES, VERIFY, UNDERWRITE, SANCTION,
// MANUAL_REVIEW and CLOSED. Sessions carry an append-only audit log; every
// mutator records exactly one audit event with the state at write time.
// Sessions are mutated only while their per-session lock is held, and a
// CLOSED session never transitions again.
//
// # Stage handlers
//
// The actual verification, underwriting and sanction work is performed by
// externally supplied StageHandlers. Handlers return discriminated result
// types (VerificationResult, Decision, SanctionResult), so orchestrator
// dispatch is exhaustive rather than driven by ad hoc field presence.
//
// # Errors
//
// Orchestration failures that leave state untouched (unknown session,
// lock conflict, invalid state, bad input) are *Error values with a Kind
// discriminant. Business non-success, which does move state (a failed
// verification, a manual-review escalation), is reported through
// ProgressResult.Outcome instead.
package api
