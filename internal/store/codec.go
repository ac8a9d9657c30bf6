package store

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/sinifive/loanflow/pkg/api"
)

func init() {
	// Audit details and user data are map[string]any bags; register the
	// container types their values commonly take so gob can round-trip
	// them through interface fields.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
	gob.Register(api.State(""))
}

// sessionRecord is the serialized form of a session shared by the SQLite
// and Redis stores. The lock is deliberately absent: lock state lives in
// backend-native primitives (columns, keys) so acquisition is atomic.
type sessionRecord struct {
	ID        string
	State     api.State
	CreatedAt time.Time
	UpdatedAt time.Time

	UserData map[string]any

	Verification *api.VerificationResult
	Underwriting *api.Decision
	Sanction     *api.SanctionResult

	ManualReview  api.ManualReviewInfo
	FailureCounts map[api.State]int

	AuditLog []api.AuditEvent
}

func recordFromSession(sess *api.Session) sessionRecord {
	return sessionRecord{
		ID:            sess.ID,
		State:         sess.State,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
		UserData:      sess.UserData,
		Verification:  sess.Verification,
		Underwriting:  sess.Underwriting,
		Sanction:      sess.Sanction,
		ManualReview:  sess.ManualReview,
		FailureCounts: sess.FailureCounts,
		AuditLog:      sess.AuditLog,
	}
}

func (r sessionRecord) session() *api.Session {
	sess := &api.Session{
		ID:            r.ID,
		State:         r.State,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		UserData:      r.UserData,
		Verification:  r.Verification,
		Underwriting:  r.Underwriting,
		Sanction:      r.Sanction,
		ManualReview:  r.ManualReview,
		FailureCounts: r.FailureCounts,
		AuditLog:      r.AuditLog,
	}
	if sess.UserData == nil {
		sess.UserData = make(map[string]any)
	}
	if sess.FailureCounts == nil {
		sess.FailureCounts = make(map[api.State]int)
	}
	return sess
}

// encodeValue serializes a concrete Go value using encoding/gob.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue deserializes into dst. Empty input leaves dst untouched.
func decodeValue(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(dst)
}
