package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/application"
	"github.com/example/campus-scheduler/internal/persistence"
)

var (
	slotCounter  uint64
	eventCounter uint64
	alarmCounter uint64
)

var location = time.FixedZone("KST", 9*60*60)

// referenceTime is the first Monday of the spring semester.
var referenceTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, location)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Location returns the zone fixtures are expressed in.
func Location() *time.Location {
	return location
}

// StudentPrincipal returns a student principal for userID.
func StudentPrincipal(userID string) application.Principal {
	return application.Principal{UserID: userID, UserType: application.UserTypeStudent}
}

// ----------------------------- Slot fixtures -----------------------------

// SlotFixture is a deterministic timetable slot.
type SlotFixture struct {
	ID          string
	UserID      string
	Day         int
	StartPeriod int
	EndPeriod   int
	Title       string
	Location    string
	Color       string
	Credits     *int
	CreatedAt   time.Time
}

// SlotOption configures the generated slot fixture.
type SlotOption func(*SlotFixture)

// NewSlotFixture returns a Monday first-period slot with optional overrides.
func NewSlotFixture(opts ...SlotOption) SlotFixture {
	idx := atomic.AddUint64(&slotCounter, 1)
	fixture := SlotFixture{
		ID:          fmt.Sprintf("slot-%03d", idx),
		UserID:      "student-001",
		Day:         1,
		StartPeriod: 1,
		EndPeriod:   1,
		Title:       fmt.Sprintf("Course %03d", idx),
		Location:    "Engineering Hall 101",
		Color:       application.DefaultColor,
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSlotID overrides the generated slot ID.
func WithSlotID(id string) SlotOption {
	return func(f *SlotFixture) {
		f.ID = id
	}
}

// WithSlotOwner sets the owning user.
func WithSlotOwner(userID string) SlotOption {
	return func(f *SlotFixture) {
		f.UserID = userID
	}
}

// WithSlotTitle sets the course title.
func WithSlotTitle(title string) SlotOption {
	return func(f *SlotFixture) {
		f.Title = title
	}
}

// WithSlotPeriods places the slot on day covering start..end inclusive.
func WithSlotPeriods(day, start, end int) SlotOption {
	return func(f *SlotFixture) {
		f.Day = day
		f.StartPeriod = start
		f.EndPeriod = end
	}
}

// WithSlotCredits sets the credit value.
func WithSlotCredits(credits int) SlotOption {
	return func(f *SlotFixture) {
		f.Credits = &credits
	}
}

// Persistence returns the fixture as a persistence.Slot value.
func (f SlotFixture) Persistence() persistence.Slot {
	return persistence.Slot{
		ID:          f.ID,
		UserID:      f.UserID,
		Day:         f.Day,
		StartPeriod: f.StartPeriod,
		EndPeriod:   f.EndPeriod,
		Title:       f.Title,
		Location:    f.Location,
		Color:       f.Color,
		Credits:     copyIntPtr(f.Credits),
		CreatedAt:   f.CreatedAt,
	}
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture is a deterministic personal event.
type EventFixture struct {
	ID        string
	UserID    string
	UserType  application.UserType
	Title     string
	Date      string
	Time      *string
	Color     string
	Memo      *string
	Alarms    []string
	CreatedAt time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns an all-day event one week after ReferenceTime.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:        fmt.Sprintf("event-%03d", idx),
		UserID:    "student-001",
		UserType:  application.UserTypeStudent,
		Title:     fmt.Sprintf("Event %03d", idx),
		Date:      referenceTime.AddDate(0, 0, 7).Format("2006-01-02"),
		Color:     application.DefaultColor,
		Alarms:    []string{},
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventOwner sets the owning user.
func WithEventOwner(userID string) EventOption {
	return func(f *EventFixture) {
		f.UserID = userID
	}
}

// WithEventTitle sets the title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) {
		f.Title = title
	}
}

// WithEventSchedule sets the date and optional time ("" for all day).
func WithEventSchedule(date, clock string) EventOption {
	return func(f *EventFixture) {
		f.Date = date
		f.Time = nil
		if clock != "" {
			f.Time = &clock
		}
	}
}

// WithEventAlarms sets the alarm offset codes.
func WithEventAlarms(codes ...string) EventOption {
	return func(f *EventFixture) {
		f.Alarms = append([]string{}, codes...)
	}
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:        f.ID,
		UserID:    f.UserID,
		UserType:  string(f.UserType),
		Title:     f.Title,
		Date:      f.Date,
		Time:      copyStringPtr(f.Time),
		Color:     f.Color,
		Memo:      copyStringPtr(f.Memo),
		Alarms:    append([]string{}, f.Alarms...),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Input returns the fixture as an application.EventInput.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:  f.Title,
		Date:   f.Date,
		Time:   copyStringPtr(f.Time),
		Color:  f.Color,
		Memo:   copyStringPtr(f.Memo),
		Alarms: append([]string{}, f.Alarms...),
	}
}

// ------------------------- Pending alarm fixtures ------------------------

// PendingAlarmFixture returns a stored alarm for eventID firing offset before eventAt.
func PendingAlarmFixture(eventID string, offset alarm.Offset, eventAt time.Time) persistence.PendingAlarm {
	idx := atomic.AddUint64(&alarmCounter, 1)
	return persistence.PendingAlarm{
		ID:        fmt.Sprintf("alarm-%03d", idx),
		EventID:   eventID,
		UserID:    "student-001",
		UserType:  string(application.UserTypeStudent),
		Title:     fmt.Sprintf("Alarm %03d", idx),
		Offset:    string(offset),
		EventAt:   eventAt,
		FireAt:    eventAt.Add(-offset.Duration()),
		CreatedAt: referenceTime,
	}
}

func copyStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func copyIntPtr(value *int) *int {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
