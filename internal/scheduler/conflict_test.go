package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type memoryStore struct {
	slots     []Slot
	nextID    int
	inserts   int
	lookupErr error
	insertErr error
}

func (m *memoryStore) SlotsByTitle(ctx context.Context, userID, title string) ([]Slot, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	var out []Slot
	for _, slot := range m.slots {
		if slot.Title == title {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (m *memoryStore) FindOverlapping(ctx context.Context, userID string, day int, r Range) (Slot, bool, error) {
	for _, slot := range m.slots {
		if slot.Day == day && slot.Range.Overlaps(r) {
			return slot, true, nil
		}
	}
	return Slot{}, false, nil
}

func (m *memoryStore) InsertSlots(ctx context.Context, booking Booking) ([]string, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.inserts++
	ids := make([]string, 0, len(booking.Candidates))
	for _, candidate := range booking.Candidates {
		m.nextID++
		id := fmt.Sprintf("slot-%d", m.nextID)
		m.slots = append(m.slots, Slot{ID: id, Title: booking.Title, Day: candidate.Day, Range: candidate.Range})
		ids = append(ids, id)
	}
	return ids, nil
}

func TestRange_Overlaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Range
		want bool
	}{
		{name: "touching boundary period collides", a: Range{1, 3}, b: Range{3, 4}, want: true},
		{name: "adjacent periods are free", a: Range{1, 3}, b: Range{4, 5}, want: false},
		{name: "containment collides", a: Range{1, 6}, b: Range{2, 3}, want: true},
		{name: "single period identical", a: Range{2, 2}, b: Range{2, 2}, want: true},
		{name: "before", a: Range{5, 6}, b: Range{1, 4}, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("%v.Overlaps(%v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("overlap must be symmetric for %v and %v", tc.a, tc.b)
			}
		})
	}
}

func TestRange_OverlapMatchesInequalities(t *testing.T) {
	t.Parallel()

	for aStart := 1; aStart <= 6; aStart++ {
		for aEnd := aStart; aEnd <= 6; aEnd++ {
			for bStart := 1; bStart <= 6; bStart++ {
				for bEnd := bStart; bEnd <= 6; bEnd++ {
					a, b := Range{aStart, aEnd}, Range{bStart, bEnd}
					want := a.Start <= b.End && b.Start <= a.End
					if a.Overlaps(b) != want {
						t.Fatalf("Overlaps(%v, %v) disagrees with inequality test", a, b)
					}
				}
			}
		}
	}
}

func TestPropose(t *testing.T) {
	t.Parallel()

	t.Run("overlapping course is rejected then adjacent one accepted", func(t *testing.T) {
		t.Parallel()
		store := &memoryStore{}
		ctx := context.Background()

		algorithms := Booking{UserID: "u1", Title: "Algorithms", Candidates: []Candidate{{Day: 1, Range: Range{1, 3}}}}
		decision, err := Propose(ctx, store, algorithms)
		if err != nil || !decision.Accepted {
			t.Fatalf("expected Algorithms to be accepted, got %+v (%v)", decision, err)
		}

		databases := Booking{UserID: "u1", Title: "Databases", Candidates: []Candidate{{Day: 1, Range: Range{3, 4}}}}
		decision, err = Propose(ctx, store, databases)
		if err != nil {
			t.Fatalf("Propose returned error: %v", err)
		}
		if decision.Accepted || decision.Reason != ReasonOverlap {
			t.Fatalf("expected overlap rejection, got %+v", decision)
		}
		if len(decision.Conflicts) != 1 {
			t.Fatalf("expected one conflict, got %d", len(decision.Conflicts))
		}
		conflict := decision.Conflicts[0]
		if conflict.Title != "Algorithms" || conflict.Overlap != (Range{3, 3}) || conflict.Day != 1 {
			t.Fatalf("unexpected conflict %+v", conflict)
		}

		databases.Candidates[0].Range = Range{4, 5}
		decision, err = Propose(ctx, store, databases)
		if err != nil || !decision.Accepted {
			t.Fatalf("expected Databases at 4-5 to be accepted, got %+v (%v)", decision, err)
		}
	})

	t.Run("duplicate title is rejected even without overlap", func(t *testing.T) {
		t.Parallel()
		store := &memoryStore{slots: []Slot{{ID: "s1", Title: "Algorithms", Day: 1, Range: Range{1, 2}}}}

		decision, err := Propose(context.Background(), store, Booking{
			UserID:     "u1",
			Title:      "Algorithms",
			Candidates: []Candidate{{Day: 4, Range: Range{7, 8}}},
		})
		if err != nil {
			t.Fatalf("Propose returned error: %v", err)
		}
		if decision.Accepted || decision.Reason != ReasonDuplicateCourse {
			t.Fatalf("expected duplicate rejection, got %+v", decision)
		}
		if store.inserts != 0 {
			t.Fatalf("expected no insert on rejection")
		}
	})

	t.Run("collects every conflict without partial commit", func(t *testing.T) {
		t.Parallel()
		store := &memoryStore{slots: []Slot{
			{ID: "s1", Title: "Physics", Day: 1, Range: Range{2, 3}},
			{ID: "s2", Title: "Chemistry", Day: 3, Range: Range{5, 6}},
		}}

		decision, err := Propose(context.Background(), store, Booking{
			UserID: "u1",
			Title:  "Biology",
			Candidates: []Candidate{
				{Day: 1, Range: Range{1, 2}},
				{Day: 2, Range: Range{1, 2}},
				{Day: 3, Range: Range{6, 7}},
			},
		})
		if err != nil {
			t.Fatalf("Propose returned error: %v", err)
		}
		if len(decision.Conflicts) != 2 {
			t.Fatalf("expected two conflicts, got %+v", decision.Conflicts)
		}
		if decision.Conflicts[0].Candidate != 0 || decision.Conflicts[1].Candidate != 2 {
			t.Fatalf("conflicts should reference candidates 0 and 2, got %+v", decision.Conflicts)
		}
		if store.inserts != 0 || len(store.slots) != 2 {
			t.Fatalf("expected store to be untouched")
		}
	})

	t.Run("empty booking is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := Propose(context.Background(), &memoryStore{}, Booking{Title: "x"}); !errors.Is(err, ErrNoCandidates) {
			t.Fatalf("expected ErrNoCandidates, got %v", err)
		}
	})

	t.Run("store failures propagate", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		store := &memoryStore{insertErr: boom}
		_, err := Propose(context.Background(), store, Booking{Title: "x", Candidates: []Candidate{{Day: 1, Range: Range{1, 1}}}})
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped store error, got %v", err)
		}
	})
}

func TestPropose_SymmetricRejection(t *testing.T) {
	t.Parallel()

	a := Range{2, 4}
	b := Range{4, 6}

	forward := &memoryStore{slots: []Slot{{ID: "a", Title: "A", Day: 2, Range: a}}}
	decision, err := Propose(context.Background(), forward, Booking{Title: "B", Candidates: []Candidate{{Day: 2, Range: b}}})
	if err != nil || decision.Accepted {
		t.Fatalf("expected B after A to be rejected, got %+v (%v)", decision, err)
	}

	reverse := &memoryStore{slots: []Slot{{ID: "b", Title: "B", Day: 2, Range: b}}}
	decision, err = Propose(context.Background(), reverse, Booking{Title: "A", Candidates: []Candidate{{Day: 2, Range: a}}})
	if err != nil || decision.Accepted {
		t.Fatalf("expected A after B to be rejected, got %+v (%v)", decision, err)
	}
}

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	existing := []Slot{
		{ID: "s1", Title: "Physics", Day: 1, Range: Range{2, 3}},
		{ID: "s2", Title: "Art", Day: 1, Range: Range{3, 4}},
		{ID: "s3", Title: "Music", Day: 2, Range: Range{1, 1}},
	}

	conflicts := DetectConflicts(existing, []Candidate{{Day: 1, Range: Range{3, 3}}})
	if len(conflicts) != 2 {
		t.Fatalf("expected both Monday courses to collide, got %+v", conflicts)
	}

	if conflicts := DetectConflicts(existing, []Candidate{{Day: 2, Range: Range{2, 5}}}); len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", conflicts)
	}
}

func TestSelfOverlaps(t *testing.T) {
	t.Parallel()

	pairs := SelfOverlaps([]Candidate{
		{Day: 1, Range: Range{1, 2}},
		{Day: 1, Range: Range{2, 3}},
		{Day: 2, Range: Range{1, 2}},
	})
	if len(pairs) != 1 || pairs[0] != [2]int{0, 1} {
		t.Fatalf("expected a single overlapping pair, got %v", pairs)
	}
}
