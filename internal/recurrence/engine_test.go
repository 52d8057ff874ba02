package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestEngine_GenerateOccurrences(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	monday := time.Date(2025, time.March, 3, 0, 0, 0, 0, kst)

	t.Run("respects weekday selections", func(t *testing.T) {
		t.Parallel()

		until := monday.AddDate(0, 0, 13)
		rule := Rule{
			ID:       "slot-1",
			SourceID: "Algorithms",
			Weekdays: []time.Weekday{time.Monday, time.Wednesday},
			StartsOn: monday,
			EndsOn:   &until,
		}

		occurrences, err := engine.GenerateOccurrences(rule, 10*time.Hour, 2*time.Hour, GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) != 4 {
			t.Fatalf("expected 4 occurrences, got %d", len(occurrences))
		}
		wantDays := []time.Weekday{time.Monday, time.Wednesday, time.Monday, time.Wednesday}
		for i, occ := range occurrences {
			if occ.Start.Weekday() != wantDays[i] {
				t.Fatalf("occurrence %d on %s, want %s", i, occ.Start.Weekday(), wantDays[i])
			}
			if occ.Start.Hour() != 10 || occ.End.Sub(occ.Start) != 2*time.Hour {
				t.Fatalf("occurrence %d has unexpected bounds %s..%s", i, occ.Start, occ.End)
			}
			if occ.SourceID != "Algorithms" || occ.RuleID != "slot-1" {
				t.Fatalf("occurrence %d lost its source: %+v", i, occ)
			}
		}
	})

	t.Run("clips occurrences to the requested range", func(t *testing.T) {
		t.Parallel()

		until := monday.AddDate(0, 1, 0)
		rangeStart := monday.AddDate(0, 0, 7)
		rangeEnd := monday.AddDate(0, 0, 11)
		rule := Rule{
			ID:       "slot-2",
			Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			StartsOn: monday,
			EndsOn:   &until,
		}

		occurrences, err := engine.GenerateOccurrences(rule, 9*time.Hour, time.Hour, GenerateOptions{RangeStart: &rangeStart, RangeEnd: &rangeEnd})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) != 5 {
			t.Fatalf("expected one week of occurrences, got %d", len(occurrences))
		}
		if !occurrences[0].Start.Equal(rangeStart.Add(9 * time.Hour)) {
			t.Fatalf("first occurrence %s", occurrences[0].Start)
		}
	})

	t.Run("normalizes to the engine location", func(t *testing.T) {
		t.Parallel()

		// 2025-03-02 20:00 UTC is Monday 05:00 in Seoul.
		start := time.Date(2025, time.March, 2, 20, 0, 0, 0, time.UTC)
		until := start.AddDate(0, 0, 1)
		rule := Rule{Weekdays: []time.Weekday{time.Monday}, StartsOn: start, EndsOn: &until}

		occurrences, err := engine.GenerateOccurrences(rule, 9*time.Hour, time.Hour, GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) != 1 {
			t.Fatalf("expected one occurrence, got %d", len(occurrences))
		}
		if occurrences[0].Start.Location() != kst || occurrences[0].Start.Day() != 3 {
			t.Fatalf("unexpected occurrence %s", occurrences[0].Start)
		}
	})

	t.Run("rejects unusable rules", func(t *testing.T) {
		t.Parallel()

		until := monday.AddDate(0, 0, 7)
		if _, err := engine.GenerateOccurrences(Rule{Weekdays: []time.Weekday{time.Monday}, StartsOn: monday}, 0, time.Hour, GenerateOptions{}); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("expected ErrInvalidWindow, got %v", err)
		}
		if _, err := engine.GenerateOccurrences(Rule{StartsOn: monday, EndsOn: &until}, 0, time.Hour, GenerateOptions{}); !errors.Is(err, ErrNoWeekdays) {
			t.Fatalf("expected ErrNoWeekdays, got %v", err)
		}
		if _, err := engine.GenerateOccurrences(Rule{Weekdays: []time.Weekday{time.Monday}, StartsOn: monday, EndsOn: &until}, 0, 0, GenerateOptions{}); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration, got %v", err)
		}
	})
}

func TestEngine_WeekStart(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	cases := map[string]time.Time{
		"monday":   time.Date(2025, time.March, 3, 15, 0, 0, 0, kst),
		"friday":   time.Date(2025, time.March, 7, 8, 0, 0, 0, kst),
		"sunday":   time.Date(2025, time.March, 9, 23, 0, 0, 0, kst),
		"utc late": time.Date(2025, time.March, 2, 16, 0, 0, 0, time.UTC),
	}
	want := time.Date(2025, time.March, 3, 0, 0, 0, 0, kst)
	for name, ref := range cases {
		if got := engine.WeekStart(ref); !got.Equal(want) {
			t.Fatalf("%s: WeekStart = %s, want %s", name, got, want)
		}
	}
}

func TestWeekdayMapping(t *testing.T) {
	t.Parallel()

	for day := 1; day <= 5; day++ {
		wd, ok := Weekday(day)
		if !ok || TimetableDay(wd) != day {
			t.Fatalf("day %d does not round trip (%s, %v)", day, wd, ok)
		}
	}
	if _, ok := Weekday(6); ok {
		t.Fatalf("expected day 6 to be rejected")
	}
	if TimetableDay(time.Sunday) != 0 {
		t.Fatalf("weekends have no timetable day")
	}
}
