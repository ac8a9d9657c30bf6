package loanflow

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/sinifive/loanflow/internal/engine"
	"github.com/sinifive/loanflow/internal/store"
	"github.com/sinifive/loanflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Orchestrator       = api.Orchestrator
	Session            = api.Session
	State              = api.State
	AuditEvent         = api.AuditEvent
	EventType          = api.EventType
	StageData          = api.StageData
	StageHandlers      = api.StageHandlers
	HandlerFuncs       = api.HandlerFuncs
	VerifyFunc         = api.VerifyFunc
	UnderwriteFunc     = api.UnderwriteFunc
	SanctionFunc       = api.SanctionFunc
	VerificationResult = api.VerificationResult
	Decision           = api.Decision
	SanctionResult     = api.SanctionResult
	ProgressResult     = api.ProgressResult
	Outcome            = api.Outcome
	WorkflowStats      = api.WorkflowStats

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export workflow states for convenience.

const (
	StateStart        = api.StateStart
	StateSales        = api.StateSales
	StateVerify       = api.StateVerify
	StateUnderwrite   = api.StateUnderwrite
	StateSanction     = api.StateSanction
	StateManualReview = api.StateManualReview
	StateClosed       = api.StateClosed
)

// Re-export progression outcomes.

const (
	OutcomeAdvanced           = api.OutcomeAdvanced
	OutcomeVerificationFailed = api.OutcomeVerificationFailed
	OutcomeEscalated          = api.OutcomeEscalated
	OutcomeRejected           = api.OutcomeRejected
)

// Re-export verification statuses.

const (
	VerificationPass   = api.VerificationPass
	VerificationFail   = api.VerificationFail
	VerificationUnsure = api.VerificationUnsure
)

// Re-export error predicates.

var (
	IsValidation   = api.IsValidation
	IsNotFound     = api.IsNotFound
	IsLockConflict = api.IsLockConflict
	IsInvalidState = api.IsInvalidState
)

// Orchestrator options, forwarded to the internal engine.

type Option = engine.Option

var (
	WithObserver    = engine.WithObserver
	WithClock       = engine.WithClock
	WithLockTimeout = engine.WithLockTimeout
)

// DefaultLockTimeout is the staleness bound after which an abandoned
// session lock is reclaimed.
const DefaultLockTimeout = engine.DefaultLockTimeout

// Orchestrator constructors
// These wrap the internal packages so external callers never need to
// import them.

// NewInMemoryOrchestrator returns an Orchestrator backed by an in-memory
// session store. State is lost when the process exits; best for tests
// and single-process embedding.
func NewInMemoryOrchestrator(opts ...Option) Orchestrator {
	return engine.New(store.NewInMemoryStore(nil), opts...)
}

// NewSQLiteOrchestrator returns an Orchestrator that persists sessions
// and their audit trail in a SQLite database, creating the schema if
// needed.
func NewSQLiteOrchestrator(db *sql.DB, opts ...Option) (Orchestrator, error) {
	st, err := store.NewSQLiteStore(db, nil)
	if err != nil {
		return nil, err
	}
	return engine.New(st, opts...), nil
}

// NewRedisOrchestrator returns an Orchestrator that persists sessions in
// Redis. Keys are namespaced under keyPrefix; an empty prefix defaults
// to "loanflow:".
func NewRedisOrchestrator(client *redis.Client, keyPrefix string, opts ...Option) Orchestrator {
	return engine.New(store.NewRedisStore(client, keyPrefix, nil), opts...)
}
