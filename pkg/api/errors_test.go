package api

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		err  error
		want func(error) bool
		name string
	}{
		{ValidationError("bad input"), IsValidation, "validation"},
		{NotFoundError("s1"), IsNotFound, "not found"},
		{LockConflictError("s1", StateVerify), IsLockConflict, "lock conflict"},
		{InvalidStateError(StateSales, StateClosed), IsInvalidState, "invalid state"},
		{TerminalStateError(StateClosed), IsInvalidState, "terminal state"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.want(tc.err) {
				t.Fatalf("predicate did not match %v", tc.err)
			}
		})
	}

	if IsNotFound(ValidationError("x")) {
		t.Fatalf("predicates must discriminate by kind")
	}
	if IsValidation(errors.New("plain")) {
		t.Fatalf("predicates must reject untyped errors")
	}
	if IsLockConflict(nil) {
		t.Fatalf("predicates must reject nil")
	}
}

func TestErrorPredicatesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("progressing: %w", NotFoundError("s1"))
	if !IsNotFound(wrapped) {
		t.Fatalf("expected predicate to see through wrapping")
	}
}

func TestErrorMessageAndContext(t *testing.T) {
	err := LockConflictError("s1", StateSanction)
	if !strings.Contains(err.Error(), "s1") {
		t.Fatalf("expected session id in message: %q", err.Error())
	}
	if err.Context["state"] != "SANCTION" {
		t.Fatalf("expected state in context: %+v", err.Context)
	}

	err = err.WithContext("attempt", 2)
	if err.Context["attempt"] != 2 {
		t.Fatalf("WithContext did not record: %+v", err.Context)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Kind: KindValidation, Message: "persist", Cause: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected cause in message: %q", err.Error())
	}
}
