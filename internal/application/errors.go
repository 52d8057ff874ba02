package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a write collides with an existing record.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// ConflictReason labels why a booking was refused.
type ConflictReason string

const (
	// ConflictDuplicateCourse means the user already holds a course with the same title.
	ConflictDuplicateCourse ConflictReason = "duplicate_course"
	// ConflictOverlap means one or more requested slots collide with the timetable.
	ConflictOverlap ConflictReason = "overlap"
)

// ConflictError reports a booking that was refused without any writes.
type ConflictError struct {
	Reason    ConflictReason
	Title     string
	Conflicts []ConflictDetail
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil {
		return ""
	}
	if c.Reason == ConflictDuplicateCourse {
		return fmt.Sprintf("course %q is already booked", c.Title)
	}
	return fmt.Sprintf("course %q conflicts with %d slot(s)", c.Title, len(c.Conflicts))
}
