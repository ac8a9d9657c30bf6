package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sinifive/loanflow/pkg/api"
)

// InMemorySessionStore is a goroutine-safe SessionStore backed by a map.
// It is the default for tests and single-process deployments; sessions do
// not survive a restart.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*api.Session
	clock    clockwork.Clock
}

var _ SessionStore = (*InMemorySessionStore)(nil)

// NewInMemoryStore creates an InMemorySessionStore. A nil clock defaults
// to the real clock.
func NewInMemoryStore(clock clockwork.Clock) *InMemorySessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemorySessionStore{
		sessions: make(map[string]*api.Session),
		clock:    clock,
	}
}

func (s *InMemorySessionStore) Create(ctx context.Context, id string) (*api.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[id]; ok {
		return existing.Snapshot(), nil
	}

	sess := api.NewSession(id, s.clock)
	s.sessions[id] = sess
	return sess.Snapshot(), nil
}

func (s *InMemorySessionStore) Get(ctx context.Context, id string) (*api.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

func (s *InMemorySessionStore) List(ctx context.Context) ([]*api.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Snapshot())
	}
	return out, nil
}

func (s *InMemorySessionStore) Update(ctx context.Context, sess *api.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.ID]
	if !ok {
		return ErrSessionNotFound
	}

	updated := sess.Snapshot()
	updated.SetClock(s.clock)
	// The lock is owned by the store, not by the snapshot being written.
	updated.Lock = stored.Lock
	s.sessions[sess.ID] = updated
	return nil
}

func (s *InMemorySessionStore) AcquireLock(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, ErrSessionNotFound
	}

	now := s.clock.Now()
	if sess.Lock.Held {
		if now.Sub(sess.Lock.AcquiredAt) < staleAfter {
			return false, nil
		}
		// Stale lock: the holder is gone, reclaim it.
	}

	sess.Lock = api.LockInfo{Held: true, AcquiredAt: now}
	return true, nil
}

func (s *InMemorySessionStore) ReleaseLock(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Lock = api.LockInfo{}
	return nil
}
