// Package recurrence projects weekly timetable slots onto calendar dates.
package recurrence

import (
	"errors"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// Rule describes a weekly repetition of one slot.
type Rule struct {
	ID       string
	SourceID string
	Weekdays []time.Weekday
	StartsOn time.Time
	EndsOn   *time.Time
}

// GenerateOptions defines optional range bounds for occurrence generation.
type GenerateOptions struct {
	RangeStart *time.Time
	RangeEnd   *time.Time
}

// Occurrence is one dated instance of a rule.
type Occurrence struct {
	SourceID string
	RuleID   string
	Start    time.Time
	End      time.Time
}

// Engine expands rules into occurrences in a single location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that normalizes results to loc.
// If loc is nil, Asia/Seoul (KST) is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = kst
	}
	return &Engine{location: loc}
}

var (
	// ErrNoWeekdays indicates a rule that never repeats.
	ErrNoWeekdays = errors.New("recurrence: rule selects no weekdays")
	// ErrInvalidWindow indicates the generation window is unbounded.
	ErrInvalidWindow = errors.New("recurrence: generation window requires an end bound")
	// ErrInvalidDuration indicates a non-positive occurrence length.
	ErrInvalidDuration = errors.New("recurrence: occurrence duration must be positive")
)

// Location returns the zone occurrences are produced in.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return kst
	}
	return e.location
}

// GenerateOccurrences produces one occurrence per selected weekday between
// the rule start and the earlier of EndsOn and the range end. Bounds compare
// by calendar date in the engine location; each occurrence starts at
// startOfDay past local midnight and lasts length.
func (e *Engine) GenerateOccurrences(rule Rule, startOfDay, length time.Duration, opts GenerateOptions) ([]Occurrence, error) {
	loc := e.Location()

	if length <= 0 {
		return nil, ErrInvalidDuration
	}
	if len(rule.Weekdays) == 0 {
		return nil, ErrNoWeekdays
	}

	var upper time.Time
	if rule.EndsOn != nil {
		upper = dateOf(*rule.EndsOn, loc)
	}
	if opts.RangeEnd != nil {
		rangeEnd := dateOf(*opts.RangeEnd, loc)
		if upper.IsZero() || rangeEnd.Before(upper) {
			upper = rangeEnd
		}
	}
	if upper.IsZero() {
		return nil, ErrInvalidWindow
	}

	lower := dateOf(rule.StartsOn, loc)
	if opts.RangeStart != nil {
		if rangeStart := dateOf(*opts.RangeStart, loc); rangeStart.After(lower) {
			lower = rangeStart
		}
	}

	selected := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		selected[day] = struct{}{}
	}

	occurrences := make([]Occurrence, 0)
	for date := lower; !date.After(upper); date = date.AddDate(0, 0, 1) {
		if _, ok := selected[date.Weekday()]; !ok {
			continue
		}
		start := date.Add(startOfDay)
		occurrences = append(occurrences, Occurrence{
			SourceID: rule.SourceID,
			RuleID:   rule.ID,
			Start:    start,
			End:      start.Add(length),
		})
	}
	return occurrences, nil
}

// WeekStart returns local midnight of the Monday on or before ref.
func (e *Engine) WeekStart(ref time.Time) time.Time {
	date := dateOf(ref, e.Location())
	shift := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -shift)
}

// Weekday maps a timetable day (1 = Monday .. 5 = Friday) to time.Weekday.
func Weekday(day int) (time.Weekday, bool) {
	if day < 1 || day > 5 {
		return time.Sunday, false
	}
	return time.Weekday(day), true
}

// TimetableDay maps a weekday to a timetable day, or 0 on weekends.
func TimetableDay(day time.Weekday) int {
	if day < time.Monday || day > time.Friday {
		return 0
	}
	return int(day)
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
