package persistence

import (
	"context"
	"time"
)

// SlotStore is the transaction-scoped view of a user's timetable. It does
// not validate overlaps; callers decide what to insert.
type SlotStore interface {
	// InsertSlots writes every slot or none and returns the stored ids.
	InsertSlots(ctx context.Context, slots []Slot) ([]string, error)
	SlotsByTitle(ctx context.Context, userID, title string) ([]Slot, error)
	// FindOverlapping returns one slot on day sharing a period with
	// start..end, or ErrNotFound when the range is free.
	FindOverlapping(ctx context.Context, userID string, day, start, end int) (Slot, error)
	DeleteSlotsByTitle(ctx context.Context, userID, title string) (int64, error)
}

// SlotRepository exposes timetable reads and transactional writes.
type SlotRepository interface {
	// WithSlotTx runs fn in one transaction. Returning an error rolls back
	// every write made through the store.
	WithSlotTx(ctx context.Context, fn func(SlotStore) error) error
	// ListSlots orders by day, start period, end period descending, then id.
	ListSlots(ctx context.Context, userID string) ([]Slot, error)
	ListSlotsByDay(ctx context.Context, userID string, day int) ([]Slot, error)
	GetSlot(ctx context.Context, id, userID string) (Slot, error)
	DeleteSlot(ctx context.Context, id, userID string) error
	// ListCourses returns one summary per distinct title, ordered by title.
	ListCourses(ctx context.Context, userID string) ([]CourseSummary, error)
}

// EventRepository stores personal events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id, userID string) (Event, error)
	DeleteEvent(ctx context.Context, id, userID string) error
	// ListEventsBetween returns events dated from..to inclusive, ordered by
	// date, time (all-day first) and id.
	ListEventsBetween(ctx context.Context, userID, from, to string) ([]Event, error)
}

// NotificationRepository is the inbox write side used by the alarm sink.
type NotificationRepository interface {
	RecordNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, userID string) ([]Notification, error)
	DeleteNotificationsByLink(ctx context.Context, userID, category, linkURL string) (int64, error)
}

// PendingAlarmRepository mirrors unfired alarm tasks for restart recovery.
type PendingAlarmRepository interface {
	ReplacePendingAlarms(ctx context.Context, eventID string, alarms []PendingAlarm) error
	DeletePendingAlarmsForEvent(ctx context.Context, eventID string) error
	DeletePendingAlarm(ctx context.Context, id string) error
	ListPendingAlarms(ctx context.Context) ([]PendingAlarm, error)
	DeletePendingAlarmsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
