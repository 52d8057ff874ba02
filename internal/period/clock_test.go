package period

import (
	"errors"
	"testing"
	"time"
)

func mustClock(t *testing.T, rules Rules) *Clock {
	t.Helper()
	clock, err := NewClock(rules)
	if err != nil {
		t.Fatalf("NewClock returned error: %v", err)
	}
	return clock
}

func TestClock_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := mustClock(t, DefaultRules())
	for p := 1; p <= clock.MaxPeriod(); p++ {
		start, err := clock.PeriodToTime(p)
		if err != nil {
			t.Fatalf("PeriodToTime(%d) returned error: %v", p, err)
		}
		got, err := clock.TimeToPeriod(start)
		if err != nil {
			t.Fatalf("TimeToPeriod(%s) returned error: %v", FormatTimeOfDay(start), err)
		}
		if got != p {
			t.Fatalf("expected period %d, got %d", p, got)
		}
	}
}

func TestClock_TimeToPeriodRejectsOffBoundary(t *testing.T) {
	t.Parallel()

	clock := mustClock(t, DefaultRules())
	tests := []struct {
		name  string
		tod   time.Duration
		isErr error
	}{
		{name: "half past", tod: 9*time.Hour + 30*time.Minute, isErr: ErrInvalidTime},
		{name: "one second late", tod: 10*time.Hour + time.Second, isErr: ErrInvalidTime},
		{name: "before anchor", tod: 8 * time.Hour, isErr: ErrOutOfRange},
		{name: "end boundary is not a start", tod: 21 * time.Hour, isErr: ErrOutOfRange},
		{name: "late evening", tod: 23 * time.Hour, isErr: ErrOutOfRange},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := clock.TimeToPeriod(tc.tod); !errors.Is(err, tc.isErr) {
				t.Fatalf("expected %v, got %v", tc.isErr, err)
			}
		})
	}
}

func TestClock_RangeFromTimes(t *testing.T) {
	t.Parallel()

	clock := mustClock(t, DefaultRules())

	first, last, err := clock.RangeFromTimes(9*time.Hour, 12*time.Hour)
	if err != nil {
		t.Fatalf("RangeFromTimes returned error: %v", err)
	}
	if first != 1 || last != 3 {
		t.Fatalf("expected periods 1-3, got %d-%d", first, last)
	}

	first, last, err = clock.RangeFromTimes(20*time.Hour, 21*time.Hour)
	if err != nil {
		t.Fatalf("expected final period to accept the closing boundary: %v", err)
	}
	if first != 12 || last != 12 {
		t.Fatalf("expected period 12-12, got %d-%d", first, last)
	}

	if _, _, err := clock.RangeFromTimes(10*time.Hour, 10*time.Hour); !errors.Is(err, ErrOutOfRange) && !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("expected zero-length range to be rejected, got %v", err)
	}
	if _, _, err := clock.RangeFromTimes(11*time.Hour, 10*time.Hour); !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("expected reversed range to be rejected, got %v", err)
	}
	if _, _, err := clock.RangeFromTimes(9*time.Hour, 22*time.Hour); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected end past the grid to be rejected, got %v", err)
	}
}

func TestClock_Bounds(t *testing.T) {
	t.Parallel()

	clock := mustClock(t, Rules{Anchor: 8*time.Hour + 30*time.Minute, Duration: 50 * time.Minute, MaxPeriod: 10})
	start, end, err := clock.Bounds(2, 3)
	if err != nil {
		t.Fatalf("Bounds returned error: %v", err)
	}
	if FormatTimeOfDay(start) != "09:20" || FormatTimeOfDay(end) != "11:00" {
		t.Fatalf("unexpected bounds %s-%s", FormatTimeOfDay(start), FormatTimeOfDay(end))
	}
	if _, _, err := clock.Bounds(3, 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected reversed bounds to fail, got %v", err)
	}
}

func TestRules_Validate(t *testing.T) {
	t.Parallel()

	invalid := []Rules{
		{Anchor: -time.Hour, Duration: time.Hour, MaxPeriod: 1},
		{Anchor: 9 * time.Hour, Duration: 0, MaxPeriod: 1},
		{Anchor: 9 * time.Hour, Duration: time.Hour, MaxPeriod: 0},
		{Anchor: 9 * time.Hour, Duration: time.Hour, MaxPeriod: 16},
	}
	for _, rules := range invalid {
		if _, err := NewClock(rules); !errors.Is(err, ErrInvalidRules) {
			t.Fatalf("expected ErrInvalidRules for %+v, got %v", rules, err)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	valid := map[string]time.Duration{
		"09:00":    9 * time.Hour,
		"9:00":     9 * time.Hour,
		"13:30:15": 13*time.Hour + 30*time.Minute + 15*time.Second,
		" 00:00 ":  0,
	}
	for input, want := range valid {
		got, err := ParseTimeOfDay(input)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseTimeOfDay(%q) = %s, want %s", input, got, want)
		}
	}

	for _, input := range []string{"", "9", "24:00", "12:60", "aa:bb", "12:00:00:00", "123:00", "+9:00", "-0:00", "09:+0", "9: 0"} {
		if _, err := ParseTimeOfDay(input); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("expected ErrInvalidTime for %q, got %v", input, err)
		}
	}
}
