// Package store contains the pluggable session stores used by the
// orchestration engine. A store owns session entities, their audit
// history and the per-session exclusive lock; it does no business logic.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sinifive/loanflow/pkg/api"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore handles storage of workflow sessions.
//
// Get and List are read-only and never block; they return snapshots that
// are safe to inspect while the underlying session keeps changing.
// Update persists a mutation and must only be called while the caller
// holds the session's lock.
type SessionStore interface {
	// Create returns the session for id, creating it in StateStart if it
	// does not exist yet. Re-creating over an existing id returns the
	// existing session rather than erroring.
	Create(ctx context.Context, id string) (*api.Session, error)

	// Get returns a snapshot of the session, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*api.Session, error)

	// List returns snapshots of all sessions, in no particular order.
	List(ctx context.Context) ([]*api.Session, error)

	// Update persists the given session state, replacing the stored one.
	Update(ctx context.Context, sess *api.Session) error

	// AcquireLock attempts to take the session's exclusive lock. If the
	// lock is held and younger than staleAfter it returns false. A lock
	// older than staleAfter is considered abandoned and is forcibly
	// reclaimed, so the acquisition succeeds.
	AcquireLock(ctx context.Context, id string, staleAfter time.Duration) (bool, error)

	// ReleaseLock clears the lock unconditionally. It is idempotent and
	// must be called on every code path that acquired the lock.
	ReleaseLock(ctx context.Context, id string) error
}
