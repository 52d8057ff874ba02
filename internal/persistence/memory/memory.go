// Package memory provides a map-backed implementation of the persistence
// repositories. It enforces the same keys and row constraints as the SQLite
// schema and is used by tests and the "memory" storage driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/campus-scheduler/internal/persistence"
)

// Storage keeps every table in process memory.
type Storage struct {
	mu            sync.RWMutex
	slots         map[string]persistence.Slot
	events        map[string]persistence.Event
	notifications map[string]persistence.Notification
	alarms        map[string]persistence.PendingAlarm
	now           func() time.Time
}

var (
	_ persistence.SlotRepository         = (*Storage)(nil)
	_ persistence.EventRepository        = (*Storage)(nil)
	_ persistence.NotificationRepository = (*Storage)(nil)
	_ persistence.PendingAlarmRepository = (*Storage)(nil)
)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		slots:         make(map[string]persistence.Slot),
		events:        make(map[string]persistence.Event),
		notifications: make(map[string]persistence.Notification),
		alarms:        make(map[string]persistence.PendingAlarm),
		now:           time.Now,
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Migrate initialises the storage. No-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- SlotRepository implementation ---

// WithSlotTx stages writes on a copy of the slot table and publishes it only
// when fn succeeds. Transactions are serialized.
func (s *Storage) WithSlotTx(ctx context.Context, fn func(persistence.SlotStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]persistence.Slot, len(s.slots))
	for id, slot := range s.slots {
		staged[id] = slot
	}
	tx := &slotTx{slots: staged, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.slots = staged
	return nil
}

// ListSlots returns every slot of the user in grid order.
func (s *Storage) ListSlots(ctx context.Context, userID string) ([]persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSlots(s.slots, func(slot persistence.Slot) bool { return slot.UserID == userID }), nil
}

// ListSlotsByDay returns the user's slots on one weekday.
func (s *Storage) ListSlotsByDay(ctx context.Context, userID string, day int) ([]persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSlots(s.slots, func(slot persistence.Slot) bool {
		return slot.UserID == userID && slot.Day == day
	}), nil
}

// GetSlot retrieves a slot owned by userID.
func (s *Storage) GetSlot(ctx context.Context, id, userID string) (persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok || slot.UserID != userID {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	return cloneSlot(slot), nil
}

// DeleteSlot removes a single slot owned by userID.
func (s *Storage) DeleteSlot(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok || slot.UserID != userID {
		return persistence.ErrNotFound
	}
	delete(s.slots, id)
	return nil
}

// ListCourses groups the user's slots by title.
func (s *Storage) ListCourses(ctx context.Context, userID string) ([]persistence.CourseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTitle := make(map[string]*persistence.CourseSummary)
	for _, slot := range s.slots {
		if slot.UserID != userID {
			continue
		}
		summary, ok := byTitle[slot.Title]
		if !ok {
			summary = &persistence.CourseSummary{Title: slot.Title}
			byTitle[slot.Title] = summary
		}
		summary.SlotCount++
		if slot.Credits != nil && (summary.Credits == nil || *slot.Credits > *summary.Credits) {
			credits := *slot.Credits
			summary.Credits = &credits
		}
	}

	courses := make([]persistence.CourseSummary, 0, len(byTitle))
	for _, summary := range byTitle {
		courses = append(courses, *summary)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Title < courses[j].Title })
	return courses, nil
}

type slotTx struct {
	slots map[string]persistence.Slot
	now   func() time.Time
}

func (tx *slotTx) InsertSlots(ctx context.Context, slots []persistence.Slot) ([]string, error) {
	ids := make([]string, 0, len(slots))
	pending := make(map[string]persistence.Slot, len(slots))
	for _, slot := range slots {
		if err := validateSlot(slot); err != nil {
			return nil, err
		}
		if _, ok := tx.slots[slot.ID]; ok {
			return nil, persistence.ErrDuplicate
		}
		if _, ok := pending[slot.ID]; ok {
			return nil, persistence.ErrDuplicate
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = tx.now().UTC()
		}
		pending[slot.ID] = cloneSlot(slot)
		ids = append(ids, slot.ID)
	}
	for id, slot := range pending {
		tx.slots[id] = slot
	}
	return ids, nil
}

func (tx *slotTx) SlotsByTitle(ctx context.Context, userID, title string) ([]persistence.Slot, error) {
	return filterSlots(tx.slots, func(slot persistence.Slot) bool {
		return slot.UserID == userID && slot.Title == title
	}), nil
}

func (tx *slotTx) FindOverlapping(ctx context.Context, userID string, day, start, end int) (persistence.Slot, error) {
	matches := filterSlots(tx.slots, func(slot persistence.Slot) bool {
		return slot.UserID == userID && slot.Day == day && !(slot.EndPeriod < start || slot.StartPeriod > end)
	})
	if len(matches) == 0 {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	return matches[0], nil
}

func (tx *slotTx) DeleteSlotsByTitle(ctx context.Context, userID, title string) (int64, error) {
	var removed int64
	for id, slot := range tx.slots {
		if slot.UserID == userID && slot.Title == title {
			delete(tx.slots, id)
			removed++
		}
	}
	return removed, nil
}

// --- EventRepository implementation ---

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.UserID == "" || event.Title == "" || event.Date == "" {
		return persistence.ErrConstraintViolation
	}
	if event.UserType != "student" && event.UserType != "admin" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// UpdateEvent replaces the mutable fields of an event owned by event.UserID.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.Title == "" || event.Date == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok || existing.UserID != event.UserID {
		return persistence.ErrNotFound
	}
	event.UserType = existing.UserType
	event.CreatedAt = existing.CreatedAt
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event owned by userID.
func (s *Storage) GetEvent(ctx context.Context, id, userID string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok || event.UserID != userID {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// DeleteEvent removes an event and its pending alarms.
func (s *Storage) DeleteEvent(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok || event.UserID != userID {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	for alarmID, alarm := range s.alarms {
		if alarm.EventID == id {
			delete(s.alarms, alarmID)
		}
	}
	return nil
}

// ListEventsBetween returns the user's events dated from..to inclusive.
func (s *Storage) ListEventsBetween(ctx context.Context, userID, from, to string) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0)
	for _, event := range s.events {
		if event.UserID != userID || event.Date < from || event.Date > to {
			continue
		}
		events = append(events, cloneEvent(event))
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		at, bt := timeKey(a.Time), timeKey(b.Time)
		if at != bt {
			return at < bt
		}
		return a.ID < b.ID
	})
	return events, nil
}

// --- NotificationRepository implementation ---

// RecordNotification stores a new notification.
func (s *Storage) RecordNotification(ctx context.Context, notification persistence.Notification) error {
	if notification.ID == "" || notification.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[notification.ID]; ok {
		return persistence.ErrDuplicate
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now().UTC()
	}
	s.notifications[notification.ID] = notification
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Storage) ListNotifications(ctx context.Context, userID string) ([]persistence.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteNotificationsByLink removes the user's notifications in category
// pointing at linkURL.
func (s *Storage) DeleteNotificationsByLink(ctx context.Context, userID, category, linkURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, n := range s.notifications {
		if n.UserID == userID && n.Category == category && n.LinkURL == linkURL {
			delete(s.notifications, id)
			removed++
		}
	}
	return removed, nil
}

// --- PendingAlarmRepository implementation ---

// ReplacePendingAlarms swaps the stored alarms of an event for alarms.
func (s *Storage) ReplacePendingAlarms(ctx context.Context, eventID string, alarms []persistence.PendingAlarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(alarms) > 0 {
		if _, ok := s.events[eventID]; !ok {
			return persistence.ErrForeignKeyViolation
		}
	}
	for _, alarm := range alarms {
		if alarm.ID == "" || alarm.EventID != eventID {
			return persistence.ErrConstraintViolation
		}
	}
	for id, alarm := range s.alarms {
		if alarm.EventID == eventID {
			delete(s.alarms, id)
		}
	}
	for _, alarm := range alarms {
		if alarm.CreatedAt.IsZero() {
			alarm.CreatedAt = s.now().UTC()
		}
		s.alarms[alarm.ID] = alarm
	}
	return nil
}

// DeletePendingAlarmsForEvent removes every stored alarm of an event.
func (s *Storage) DeletePendingAlarmsForEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, alarm := range s.alarms {
		if alarm.EventID == eventID {
			delete(s.alarms, id)
		}
	}
	return nil
}

// DeletePendingAlarm removes one stored alarm. Missing ids are ignored.
func (s *Storage) DeletePendingAlarm(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, id)
	return nil
}

// ListPendingAlarms returns every stored alarm ordered by fire time.
func (s *Storage) ListPendingAlarms(ctx context.Context) ([]persistence.PendingAlarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.PendingAlarm, 0, len(s.alarms))
	for _, alarm := range s.alarms {
		out = append(out, alarm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out, nil
}

// DeletePendingAlarmsBefore removes alarms whose fire time is before cutoff.
func (s *Storage) DeletePendingAlarmsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, alarm := range s.alarms {
		if alarm.FireAt.Before(cutoff) {
			delete(s.alarms, id)
			removed++
		}
	}
	return removed, nil
}

// --- helpers ---

func validateSlot(slot persistence.Slot) error {
	switch {
	case slot.ID == "", slot.UserID == "", slot.Title == "":
		return persistence.ErrConstraintViolation
	case slot.Day < 1 || slot.Day > 5:
		return persistence.ErrConstraintViolation
	case slot.StartPeriod < 1 || slot.StartPeriod > slot.EndPeriod:
		return persistence.ErrConstraintViolation
	}
	return nil
}

func filterSlots(slots map[string]persistence.Slot, keep func(persistence.Slot) bool) []persistence.Slot {
	out := make([]persistence.Slot, 0)
	for _, slot := range slots {
		if keep(slot) {
			out = append(out, cloneSlot(slot))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.StartPeriod != b.StartPeriod {
			return a.StartPeriod < b.StartPeriod
		}
		if a.EndPeriod != b.EndPeriod {
			return a.EndPeriod > b.EndPeriod
		}
		return a.ID < b.ID
	})
	return out
}

func timeKey(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}

func cloneSlot(slot persistence.Slot) persistence.Slot {
	if slot.Memo != nil {
		memo := *slot.Memo
		slot.Memo = &memo
	}
	if slot.Professor != nil {
		professor := *slot.Professor
		slot.Professor = &professor
	}
	if slot.Credits != nil {
		credits := *slot.Credits
		slot.Credits = &credits
	}
	return slot
}

func cloneEvent(event persistence.Event) persistence.Event {
	if event.Time != nil {
		t := *event.Time
		event.Time = &t
	}
	if event.Memo != nil {
		memo := *event.Memo
		event.Memo = &memo
	}
	alarms := make([]string, len(event.Alarms))
	copy(alarms, event.Alarms)
	event.Alarms = alarms
	return event
}
