// Package period converts between wall-clock times of day and the discrete
// teaching periods a timetable is built from.
//
// Period 1 starts at the anchor; every following period starts one duration
// later. Conversion is strict: a time that does not sit exactly on a period
// boundary has no period.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAnchor is the start of period 1.
	DefaultAnchor = 9 * time.Hour
	// DefaultDuration is the length of one period.
	DefaultDuration = time.Hour
	// DefaultMaxPeriod is the last valid period index.
	DefaultMaxPeriod = 12
)

var (
	// ErrInvalidTime indicates a malformed time of day or one that is not on a period boundary.
	ErrInvalidTime = errors.New("period: time is not on a period boundary")
	// ErrOutOfRange indicates a period or boundary outside the configured window.
	ErrOutOfRange = errors.New("period: outside the valid period range")
	// ErrEmptyRange indicates an end boundary that does not follow the start.
	ErrEmptyRange = errors.New("period: end must be after start")
	// ErrInvalidRules indicates an unusable period configuration.
	ErrInvalidRules = errors.New("period: invalid rules")
)

const day = 24 * time.Hour

// Rules configures the period grid.
type Rules struct {
	Anchor    time.Duration
	Duration  time.Duration
	MaxPeriod int
}

// DefaultRules returns the mainline rule set: 09:00 anchor, 60 minute periods.
func DefaultRules() Rules {
	return Rules{Anchor: DefaultAnchor, Duration: DefaultDuration, MaxPeriod: DefaultMaxPeriod}
}

// Validate reports whether the rules describe a grid that fits in one day.
func (r Rules) Validate() error {
	switch {
	case r.Anchor < 0 || r.Anchor >= day:
		return fmt.Errorf("%w: anchor %s outside the day", ErrInvalidRules, r.Anchor)
	case r.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRules)
	case r.MaxPeriod < 1:
		return fmt.Errorf("%w: max period must be at least 1", ErrInvalidRules)
	case r.Anchor+time.Duration(r.MaxPeriod)*r.Duration > day:
		return fmt.Errorf("%w: %d periods of %s from %s overflow the day", ErrInvalidRules, r.MaxPeriod, r.Duration, FormatTimeOfDay(r.Anchor))
	}
	return nil
}

// Clock performs period conversions for one rule set. It is immutable and
// safe for concurrent use.
type Clock struct {
	anchor    time.Duration
	duration  time.Duration
	maxPeriod int
}

// NewClock validates the rules and returns a Clock.
func NewClock(rules Rules) (*Clock, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Clock{anchor: rules.Anchor, duration: rules.Duration, maxPeriod: rules.MaxPeriod}, nil
}

// Rules returns the configuration the clock was built from.
func (c *Clock) Rules() Rules {
	return Rules{Anchor: c.anchor, Duration: c.duration, MaxPeriod: c.maxPeriod}
}

// MaxPeriod returns the last valid period index.
func (c *Clock) MaxPeriod() int {
	return c.maxPeriod
}

// ValidPeriod reports whether p lies within 1..MaxPeriod.
func (c *Clock) ValidPeriod(p int) bool {
	return p >= 1 && p <= c.maxPeriod
}

// TimeToPeriod maps a period start time to its index.
func (c *Clock) TimeToPeriod(tod time.Duration) (int, error) {
	idx, err := c.boundary(tod)
	if err != nil {
		return 0, err
	}
	if idx > c.maxPeriod {
		return 0, fmt.Errorf("%w: %s starts no period", ErrOutOfRange, FormatTimeOfDay(tod))
	}
	return idx, nil
}

// PeriodToTime returns the start time of period p.
func (c *Clock) PeriodToTime(p int) (time.Duration, error) {
	if !c.ValidPeriod(p) {
		return 0, fmt.Errorf("%w: period %d", ErrOutOfRange, p)
	}
	return c.anchor + time.Duration(p-1)*c.duration, nil
}

// EndTimeToPeriod maps an exclusive end boundary to the last occupied period.
// The boundary after the final period is accepted; the anchor itself is not.
func (c *Clock) EndTimeToPeriod(tod time.Duration) (int, error) {
	idx, err := c.boundary(tod)
	if err != nil {
		return 0, err
	}
	if idx < 2 {
		return 0, fmt.Errorf("%w: %s cannot end a period", ErrOutOfRange, FormatTimeOfDay(tod))
	}
	return idx - 1, nil
}

// RangeFromTimes converts a start time and exclusive end time into an
// inclusive period range.
func (c *Clock) RangeFromTimes(start, end time.Duration) (int, int, error) {
	first, err := c.TimeToPeriod(start)
	if err != nil {
		return 0, 0, err
	}
	last, err := c.EndTimeToPeriod(end)
	if err != nil {
		return 0, 0, err
	}
	if last < first {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrEmptyRange, FormatTimeOfDay(start), FormatTimeOfDay(end))
	}
	return first, last, nil
}

// Bounds returns the start of the first period and the exclusive end of the
// last period in an inclusive range.
func (c *Clock) Bounds(first, last int) (time.Duration, time.Duration, error) {
	if !c.ValidPeriod(first) || !c.ValidPeriod(last) || last < first {
		return 0, 0, fmt.Errorf("%w: periods %d-%d", ErrOutOfRange, first, last)
	}
	return c.anchor + time.Duration(first-1)*c.duration, c.anchor + time.Duration(last)*c.duration, nil
}

// boundary returns the 1-based boundary index of tod, where boundary k is the
// start of period k and boundary MaxPeriod+1 is the end of the last period.
func (c *Clock) boundary(tod time.Duration) (int, error) {
	if tod < c.anchor {
		return 0, fmt.Errorf("%w: %s is before the first period", ErrOutOfRange, FormatTimeOfDay(tod))
	}
	offset := tod - c.anchor
	if offset%c.duration != 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTime, FormatTimeOfDay(tod))
	}
	idx := int(offset/c.duration) + 1
	if idx > c.maxPeriod+1 {
		return 0, fmt.Errorf("%w: %s is after the last period", ErrOutOfRange, FormatTimeOfDay(tod))
	}
	return idx, nil
}

// ParseTimeOfDay parses "H:M" or "H:M:S" into an offset from midnight.
func ParseTimeOfDay(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, part := range parts {
		if part == "" || len(part) > 2 || !allDigits(part) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatTimeOfDay renders an offset from midnight as HH:MM, adding seconds
// only when they are non-zero.
func FormatTimeOfDay(tod time.Duration) string {
	if tod < 0 {
		return "-" + FormatTimeOfDay(-tod)
	}
	h := int(tod / time.Hour)
	m := int(tod % time.Hour / time.Minute)
	s := int(tod % time.Minute / time.Second)
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
