// Package scheduler decides whether a proposed course fits a user's weekly
// timetable. Ranges are inclusive period indexes on one weekday, so two
// ranges that share a single period collide.
package scheduler

import (
	"context"
	"errors"
	"fmt"
)

// Range is an inclusive span of periods.
type Range struct {
	Start int
	End   int
}

// Valid reports whether the range is non-empty and starts at period 1 or later.
func (r Range) Valid() bool {
	return r.Start >= 1 && r.Start <= r.End
}

// Overlaps reports whether r and other share at least one period.
func (r Range) Overlaps(other Range) bool {
	return !(other.End < r.Start || other.Start > r.End)
}

// Intersect returns the shared periods of two overlapping ranges.
func (r Range) Intersect(other Range) Range {
	return Range{Start: max(r.Start, other.Start), End: min(r.End, other.End)}
}

// Slot is a committed weekly occupancy.
type Slot struct {
	ID    string
	Title string
	Day   int
	Range Range
}

// Candidate is one proposed day/period combination of a course.
type Candidate struct {
	Day      int
	Range    Range
	Location string
}

// Conflict describes a candidate that collides with an existing slot.
type Conflict struct {
	Day       int
	Title     string
	SlotID    string
	Existing  Range
	Overlap   Range
	Candidate int
}

// Reason explains why a booking was rejected.
type Reason string

const (
	// ReasonDuplicateCourse means the user already has a course with the same title.
	ReasonDuplicateCourse Reason = "duplicate_course"
	// ReasonOverlap means at least one candidate collides with an existing slot.
	ReasonOverlap Reason = "overlap"
)

// Decision is the outcome of a booking proposal.
type Decision struct {
	Accepted  bool
	Reason    Reason
	Conflicts []Conflict
	SlotIDs   []string
}

// Booking is a course proposed for one user.
type Booking struct {
	UserID     string
	Title      string
	Candidates []Candidate
}

// ErrNoCandidates is returned when a booking carries no slots.
var ErrNoCandidates = errors.New("scheduler: booking has no slots")

// Store is the slot view the resolver works against. Implementations are
// expected to run every call inside the same transaction.
type Store interface {
	// SlotsByTitle returns every slot the user holds under title.
	SlotsByTitle(ctx context.Context, userID, title string) ([]Slot, error)
	// FindOverlapping returns one slot on day that overlaps r, or ok=false.
	FindOverlapping(ctx context.Context, userID string, day int, r Range) (slot Slot, ok bool, err error)
	// InsertSlots writes all candidates as one unit and returns their ids.
	InsertSlots(ctx context.Context, booking Booking) ([]string, error)
}

// Propose checks the booking against the store and inserts it when it is
// free of conflicts. Every candidate is checked before rejecting so callers
// can report all collisions at once; nothing is written on rejection.
func Propose(ctx context.Context, store Store, booking Booking) (Decision, error) {
	if len(booking.Candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}

	existing, err := store.SlotsByTitle(ctx, booking.UserID, booking.Title)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup course %q: %w", booking.Title, err)
	}
	if len(existing) > 0 {
		return Decision{Reason: ReasonDuplicateCourse}, nil
	}

	var conflicts []Conflict
	for i, candidate := range booking.Candidates {
		slot, found, err := store.FindOverlapping(ctx, booking.UserID, candidate.Day, candidate.Range)
		if err != nil {
			return Decision{}, fmt.Errorf("check day %d periods %d-%d: %w", candidate.Day, candidate.Range.Start, candidate.Range.End, err)
		}
		if !found {
			continue
		}
		conflicts = append(conflicts, newConflict(i, candidate, slot))
	}
	if len(conflicts) > 0 {
		return Decision{Reason: ReasonOverlap, Conflicts: conflicts}, nil
	}

	ids, err := store.InsertSlots(ctx, booking)
	if err != nil {
		return Decision{}, fmt.Errorf("insert course %q: %w", booking.Title, err)
	}
	return Decision{Accepted: true, SlotIDs: ids}, nil
}

// DetectConflicts checks candidates against an in-memory slot list and
// returns every collision, in candidate order.
func DetectConflicts(existing []Slot, candidates []Candidate) []Conflict {
	var conflicts []Conflict
	for i, candidate := range candidates {
		for _, slot := range existing {
			if slot.Day != candidate.Day || !slot.Range.Overlaps(candidate.Range) {
				continue
			}
			conflicts = append(conflicts, newConflict(i, candidate, slot))
		}
	}
	return conflicts
}

// SelfOverlaps returns index pairs of candidates that collide with each other.
func SelfOverlaps(candidates []Candidate) [][2]int {
	var pairs [][2]int
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[i].Day == candidates[j].Day && candidates[i].Range.Overlaps(candidates[j].Range) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

func newConflict(index int, candidate Candidate, slot Slot) Conflict {
	return Conflict{
		Day:       candidate.Day,
		Title:     slot.Title,
		SlotID:    slot.ID,
		Existing:  slot.Range,
		Overlap:   candidate.Range.Intersect(slot.Range),
		Candidate: index,
	}
}
