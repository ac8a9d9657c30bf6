package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/sinifive/loanflow/pkg/api"
)

// RedisSessionStore is a SessionStore backed by Redis. It uses a simple
// key structure:
//
//	<prefix>sess:<id>  => gob-encoded session record
//	<prefix>idx:all    => SET of all session IDs
//	<prefix>lock:<id>  => lock key holding the acquisition timestamp,
//	                      with a TTL equal to the staleness timeout
//
// Lock staleness is delegated to Redis key expiry: an abandoned lock key
// simply expires, after which SET NX succeeds again.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	clock  clockwork.Clock
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisStore creates a RedisSessionStore. prefix is optional but
// recommended (e.g. "loanflow:"); a nil clock defaults to the real clock.
func NewRedisStore(client *redis.Client, prefix string, clock clockwork.Clock) *RedisSessionStore {
	if prefix == "" {
		prefix = "loanflow:"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		clock:  clock,
	}
}

func (s *RedisSessionStore) keySession(id string) string {
	return s.prefix + "sess:" + id
}

func (s *RedisSessionStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisSessionStore) keyLock(id string) string {
	return s.prefix + "lock:" + id
}

func (s *RedisSessionStore) Create(ctx context.Context, id string) (*api.Session, error) {
	fresh := api.NewSession(id, s.clock)
	payload, err := encodeValue(recordFromSession(fresh))
	if err != nil {
		return nil, err
	}

	// SETNX keeps create idempotent: a concurrent creator wins, and the
	// Get below returns whichever record landed.
	created, err := s.client.SetNX(ctx, s.keySession(id), payload, 0).Result()
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.client.SAdd(ctx, s.keyAll(), id).Err(); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, id)
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*api.Session, error) {
	data, err := s.client.Get(ctx, s.keySession(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := decodeValue(data, &rec); err != nil {
		return nil, err
	}
	sess := rec.session()
	sess.SetClock(s.clock)

	if err := s.loadLock(ctx, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

func (s *RedisSessionStore) loadLock(ctx context.Context, sess *api.Session) error {
	val, err := s.client.Get(ctx, s.keyLock(sess.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return err
	}
	sess.Lock = api.LockInfo{Held: true, AcquiredAt: time.Unix(0, nanos)}
	return nil
}

func (s *RedisSessionStore) List(ctx context.Context) ([]*api.Session, error) {
	ids, err := s.client.SMembers(ctx, s.keyAll()).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*api.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			// Index entry without a record; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, sess *api.Session) error {
	payload, err := encodeValue(recordFromSession(sess))
	if err != nil {
		return err
	}

	// XX: only overwrite an existing record.
	set, err := s.client.SetXX(ctx, s.keySession(sess.ID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisSessionStore) AcquireLock(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keySession(id)).Result()
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrSessionNotFound
	}

	now := s.clock.Now()
	acquired, err := s.client.SetNX(ctx, s.keyLock(id),
		strconv.FormatInt(now.UnixNano(), 10), staleAfter).Result()
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (s *RedisSessionStore) ReleaseLock(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.keyLock(id)).Err()
}
