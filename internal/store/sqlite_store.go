package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sinifive/loanflow/pkg/api"
)

// SQLiteSessionStore is a SessionStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteSessionStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

var _ SessionStore = (*SQLiteSessionStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteSessionStore. A nil clock defaults to the real
// clock.
func NewSQLiteStore(db *sql.DB, clock clockwork.Clock) (*SQLiteSessionStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &SQLiteSessionStore{db: db, clock: clock}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSessionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			lock_acquired_at INTEGER NOT NULL DEFAULT 0,
			user_data BLOB,
			verification BLOB,
			underwriting BLOB,
			sanction BLOB,
			manual_review INTEGER NOT NULL DEFAULT 0,
			manual_review_reason TEXT NOT NULL DEFAULT '',
			failure_counts BLOB
		);
		CREATE TABLE IF NOT EXISTS session_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			state TEXT NOT NULL,
			details BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_session_audit_session_id ON session_audit(session_id, id);
	`)
	return err
}

func (s *SQLiteSessionStore) Create(ctx context.Context, id string) (*api.Session, error) {
	sess, err := s.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	fresh := api.NewSession(id, s.clock)
	userData, err := encodeValue(fresh.UserData)
	if err != nil {
		return nil, err
	}
	failureCounts, err := encodeValue(fresh.FailureCounts)
	if err != nil {
		return nil, err
	}

	// INSERT OR IGNORE keeps create idempotent in the face of a
	// concurrent creator; the subsequent Get returns whichever row won.
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (id, state, created_at, updated_at, user_data, failure_counts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fresh.ID,
		string(fresh.State),
		fresh.CreatedAt.UnixNano(),
		fresh.UpdatedAt.UnixNano(),
		userData,
		failureCounts,
	)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (*api.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, created_at, updated_at, locked, lock_acquired_at,
		       user_data, verification, underwriting, sanction,
		       manual_review, manual_review_reason, failure_counts
		FROM sessions
		WHERE id = ?`,
		id,
	)

	sess, err := s.scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	audit, err := s.loadAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.AuditLog = audit
	sess.SetClock(s.clock)

	return sess, nil
}

func (s *SQLiteSessionStore) List(ctx context.Context) ([]*api.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, created_at, updated_at, locked, lock_acquired_at,
		       user_data, verification, underwriting, sanction,
		       manual_review, manual_review_reason, failure_counts
		FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*api.Session
	for rows.Next() {
		sess, err := s.scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sess := range sessions {
		audit, err := s.loadAudit(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		sess.AuditLog = audit
		sess.SetClock(s.clock)
	}

	return sessions, nil
}

func (s *SQLiteSessionStore) scanSession(scan func(dest ...any) error) (*api.Session, error) {
	var (
		sess                                 api.Session
		stateStr                             string
		createdAt, updatedAt, lockAcquiredAt int64
		locked, manualReview                 bool
		userData, verification, underwriting []byte
		sanction, failureCounts              []byte
	)

	err := scan(
		&sess.ID, &stateStr, &createdAt, &updatedAt, &locked, &lockAcquiredAt,
		&userData, &verification, &underwriting, &sanction,
		&manualReview, &sess.ManualReview.Reason, &failureCounts,
	)
	if err != nil {
		return nil, err
	}

	sess.State = api.State(stateStr)
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.UpdatedAt = time.Unix(0, updatedAt)
	sess.Lock.Held = locked
	if lockAcquiredAt != 0 {
		sess.Lock.AcquiredAt = time.Unix(0, lockAcquiredAt)
	}
	sess.ManualReview.Queued = manualReview

	sess.UserData = make(map[string]any)
	if err := decodeValue(userData, &sess.UserData); err != nil {
		return nil, err
	}
	sess.FailureCounts = make(map[api.State]int)
	if err := decodeValue(failureCounts, &sess.FailureCounts); err != nil {
		return nil, err
	}

	if len(verification) > 0 {
		var v api.VerificationResult
		if err := decodeValue(verification, &v); err != nil {
			return nil, err
		}
		sess.Verification = &v
	}
	if len(underwriting) > 0 {
		var d api.Decision
		if err := decodeValue(underwriting, &d); err != nil {
			return nil, err
		}
		sess.Underwriting = &d
	}
	if len(sanction) > 0 {
		var r api.SanctionResult
		if err := decodeValue(sanction, &r); err != nil {
			return nil, err
		}
		sess.Sanction = &r
	}

	return &sess, nil
}

func (s *SQLiteSessionStore) loadAudit(ctx context.Context, id string) ([]api.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, at, type, state, details
		FROM session_audit
		WHERE session_id = ?
		ORDER BY id ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.AuditEvent
	for rows.Next() {
		var (
			ev      api.AuditEvent
			atN     int64
			typ     string
			state   string
			details []byte
		)
		if err := rows.Scan(&ev.ID, &atN, &typ, &state, &details); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		ev.State = api.State(state)
		if len(details) > 0 {
			ev.Details = make(map[string]any)
			if err := decodeValue(details, &ev.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteSessionStore) Update(ctx context.Context, sess *api.Session) error {
	userData, err := encodeValue(sess.UserData)
	if err != nil {
		return err
	}
	failureCounts, err := encodeValue(sess.FailureCounts)
	if err != nil {
		return err
	}

	var verification, underwriting, sanction []byte
	if sess.Verification != nil {
		if verification, err = encodeValue(*sess.Verification); err != nil {
			return err
		}
	}
	if sess.Underwriting != nil {
		if underwriting, err = encodeValue(*sess.Underwriting); err != nil {
			return err
		}
	}
	if sess.Sanction != nil {
		if sanction, err = encodeValue(*sess.Sanction); err != nil {
			return err
		}
	}

	// Lock columns are intentionally not touched here; they belong to
	// AcquireLock/ReleaseLock.
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET state = ?, updated_at = ?, user_data = ?, verification = ?,
		    underwriting = ?, sanction = ?, manual_review = ?,
		    manual_review_reason = ?, failure_counts = ?
		WHERE id = ?`,
		string(sess.State),
		sess.UpdatedAt.UnixNano(),
		userData,
		verification,
		underwriting,
		sanction,
		sess.ManualReview.Queued,
		sess.ManualReview.Reason,
		failureCounts,
		sess.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	return s.appendAuditTail(ctx, sess)
}

// appendAuditTail persists audit events added since the last Update. The
// audit table is append-only; existing rows are never rewritten.
func (s *SQLiteSessionStore) appendAuditTail(ctx context.Context, sess *api.Session) error {
	var persisted int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_audit WHERE session_id = ?`, sess.ID,
	).Scan(&persisted)
	if err != nil {
		return err
	}

	if persisted >= len(sess.AuditLog) {
		return nil
	}

	for _, ev := range sess.AuditLog[persisted:] {
		var details []byte
		if ev.Details != nil {
			if details, err = encodeValue(ev.Details); err != nil {
				return err
			}
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO session_audit (session_id, event_id, at, type, state, details)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID,
			ev.ID,
			ev.Timestamp.UnixNano(),
			string(ev.Type),
			string(ev.State),
			details,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSessionStore) AcquireLock(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	now := s.clock.Now()
	staleBefore := now.Add(-staleAfter).UnixNano()

	// A single conditional UPDATE keeps acquisition atomic: it succeeds
	// when the lock is free or when the holder's timestamp has gone
	// stale.
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET locked = 1, lock_acquired_at = ?
		WHERE id = ? AND (locked = 0 OR lock_acquired_at <= ?)`,
		now.UnixNano(),
		id,
		staleBefore,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	// Locked, or no such session: disambiguate for the caller.
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, id,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrSessionNotFound
	}
	return false, nil
}

func (s *SQLiteSessionStore) ReleaseLock(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET locked = 0, lock_acquired_at = 0
		WHERE id = ?`,
		id,
	)
	return err
}
