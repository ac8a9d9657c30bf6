// Package loanflow provides an embeddable loan-application workflow
// engine for Go.
//
// Loanflow drives each application through a fixed, auditable state
// machine: intake, verification, underwriting, sanction and (when a
// human has to weigh in) manual review. It runs fully in Go, supports
// multiple persistence backends, and integrates cleanly into existing
// backend services.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Orchestrator
//  2. Session
//  3. StageHandlers
//  4. Observer
//
// # Orchestrator
//
// The Orchestrator owns session state and progression. It provides APIs
// to:
//   - start sessions with applicant data
//   - progress a session one stage at a time
//   - read session state, the manual-review queue and aggregate stats
//
// Every mutating call takes the per-session exclusive lock first, so two
// concurrent progressions of the same application can never interleave.
// A lock abandoned by a crashed caller is reclaimed after a staleness
// bound (30 seconds by default).
//
// Orchestrators can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis
//
// # Sessions
//
// A Session records the application's current state, the merged
// applicant data, the results of each completed stage and an append-only
// audit log. The state machine is strict: verification failure closes
// the application outright, an underwriting rejection or a second failed
// sanction attempt escalates it to manual review, and a CLOSED session
// never moves again.
//
// # Stage handlers
//
// The verification, underwriting and sanction work itself is pluggable.
// Callers supply StageHandlers per progression call; the engine supplies
// a ready-made underwriting handler in pkg/underwriting that implements
// credit-score gating, risk bucketing, pre-approved limits and an
// EMI-to-salary affordability check.
//
// # Observers
//
// Observers receive lifecycle callbacks for logging and metrics. The
// package ships a slog-based LoggingObserver, an atomic BasicMetrics
// collector, and a Prometheus exporter in pkg/metrics.
package loanflow
