package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"title": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected generic message, got %q", got)
	}
}

func TestValidationError_AddKeepsFirstMessage(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	if vErr.HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	vErr.add("slots[0]", "first")
	vErr.add("slots[0]", "second")
	if got := vErr.FieldErrors["slots[0]"]; got != "first" {
		t.Fatalf("expected first message to win, got %q", got)
	}
	if !vErr.HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestConflictError_Error(t *testing.T) {
	t.Parallel()

	dup := &ConflictError{Reason: ConflictDuplicateCourse, Title: "Algorithms"}
	if got := dup.Error(); got != `course "Algorithms" is already booked` {
		t.Fatalf("unexpected message %q", got)
	}

	overlap := &ConflictError{Reason: ConflictOverlap, Title: "Physics", Conflicts: make([]ConflictDetail, 2)}
	if got := overlap.Error(); got != `course "Physics" conflicts with 2 slot(s)` {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("wrapped: %w", ErrNotFound), "not_found"},
		{ErrAlreadyExists, "already_exists"},
		{&ValidationError{FieldErrors: map[string]string{"x": "y"}}, "validation"},
		{&ConflictError{Reason: ConflictOverlap}, "conflict"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
