package persistence

import "time"

// Slot is one weekly occupancy of a course. Slots sharing UserID and Title
// form a single course.
type Slot struct {
	ID          string
	UserID      string
	Day         int
	StartPeriod int
	EndPeriod   int
	Title       string
	Location    string
	Color       string
	Memo        *string
	Professor   *string
	Credits     *int
	CreatedAt   time.Time
}

// CourseSummary aggregates the slots of one course.
type CourseSummary struct {
	Title     string
	Credits   *int
	SlotCount int
}

// Event is a personal calendar entry. Date is YYYY-MM-DD, Time is HH:MM:SS.
type Event struct {
	ID        string
	UserID    string
	UserType  string
	Title     string
	Date      string
	Time      *string
	Color     string
	Memo      *string
	Alarms    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notification is a message delivered to a user's inbox.
type Notification struct {
	ID        string
	UserID    string
	UserType  string
	Category  string
	Title     string
	Message   string
	LinkURL   string
	IsRead    bool
	CreatedAt time.Time
}

// PendingAlarm mirrors an alarm task that has not fired yet.
type PendingAlarm struct {
	ID        string
	EventID   string
	UserID    string
	UserType  string
	Title     string
	Offset    string
	EventAt   time.Time
	FireAt    time.Time
	CreatedAt time.Time
}
