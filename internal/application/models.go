package application

import "time"

// UserType distinguishes the portal account kinds that own personal data.
type UserType string

const (
	// UserTypeStudent is a student account.
	UserTypeStudent UserType = "student"
	// UserTypeAdmin is a staff account.
	UserTypeAdmin UserType = "admin"
)

// Valid reports whether the user type is one of the known kinds.
func (t UserType) Valid() bool {
	return t == UserTypeStudent || t == UserTypeAdmin
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID   string
	UserType UserType
}

// SlotInput is one requested weekly meeting of a course.
type SlotInput struct {
	Day       int
	StartTime string
	EndTime   string
	Location  string
}

// CourseInput captures caller provided course fields.
type CourseInput struct {
	Title     string
	Credits   *int
	Professor *string
	Color     string
	Memo      *string
	Slots     []SlotInput
}

// BookCourseParams wraps the data required to book a course.
type BookCourseParams struct {
	Principal Principal
	Input     CourseInput
}

// ReplaceCourseParams wraps the data required to swap an existing course for a new one.
type ReplaceCourseParams struct {
	Principal    Principal
	CurrentTitle string
	Input        CourseInput
}

// BookingResult reports an accepted booking.
type BookingResult struct {
	Title   string
	SlotIDs []string
}

// PeriodRange is an inclusive span of periods.
type PeriodRange struct {
	Start int
	End   int
}

// ConflictDetail describes one collision between a requested slot and the timetable.
type ConflictDetail struct {
	Day              int
	ConflictingTitle string
	ConflictingSlot  string
	PeriodRange      PeriodRange
	Existing         PeriodRange
}

// TimetableSlot is a stored slot with its clock times resolved.
type TimetableSlot struct {
	ID          string
	Day         int
	StartPeriod int
	EndPeriod   int
	StartTime   string
	EndTime     string
	Title       string
	Location    string
	Color       string
	Memo        *string
	Professor   *string
	Credits     *int
	CreatedAt   time.Time
}

// Course groups the slots a user holds under one title.
type Course struct {
	Title     string
	Credits   *int
	Professor *string
	Color     string
	Memo      *string
	Slots     []TimetableSlot
}

// CourseSummary is one line of the course list.
type CourseSummary struct {
	Title     string
	Credits   *int
	SlotCount int
}

// CourseList is the user's distinct courses with their credit total.
type CourseList struct {
	Courses      []CourseSummary
	TotalCredits int
}

// DayTimetable lists the classes of one calendar date.
type DayTimetable struct {
	Date  string
	Day   int
	Slots []TimetableSlot
}

// ClassOccurrence is a slot projected onto a calendar date.
type ClassOccurrence struct {
	SlotID   string
	Title    string
	Location string
	Color    string
	Start    time.Time
	End      time.Time
}

// WeekTimetable lists the Monday to Friday class occurrences of one week.
type WeekTimetable struct {
	WeekStart   string
	Occurrences []ClassOccurrence
}

// EventInput captures caller provided personal event fields.
type EventInput struct {
	Title  string
	Date   string
	Time   *string
	Color  string
	Memo   *string
	Alarms []string
}

// Event is a persisted personal calendar event.
type Event struct {
	ID        string
	UserID    string
	UserType  UserType
	Title     string
	Date      string
	Time      *string
	Color     string
	Memo      *string
	Alarms    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an existing event.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Input     EventInput
}

// ListEventsParams selects a calendar month.
type ListEventsParams struct {
	Principal Principal
	Year      int
	Month     time.Month
}
