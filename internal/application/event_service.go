package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/keylock"
	"github.com/example/campus-scheduler/internal/period"
	"github.com/example/campus-scheduler/internal/persistence"
)

// AlarmScheduler is the part of the alarm scheduler the event service drives.
type AlarmScheduler interface {
	Schedule(ctx context.Context, req alarm.Request) (alarm.Plan, error)
	Reschedule(ctx context.Context, req alarm.Request) (alarm.Plan, error)
	Cancel(ctx context.Context, eventID string) (int, error)
	EventLink(eventID string) string
}

// NotificationCleaner removes inbox entries that point at a deleted event.
type NotificationCleaner interface {
	DeleteNotificationsByLink(ctx context.Context, userID, category, linkURL string) (int64, error)
}

// Calendar fixes how event dates map to instants.
type Calendar struct {
	// Location is the single zone every event date is read in.
	Location *time.Location
	// AllDayAnchor is the time of day alarms count back from when an event has no time.
	AllDayAnchor time.Duration
}

// DefaultAllDayAnchor is 09:00.
const DefaultAllDayAnchor = 9 * time.Hour

// EventService manages personal events and keeps their alarms in step.
type EventService struct {
	events        persistence.EventRepository
	notifications NotificationCleaner
	alarms        AlarmScheduler
	calendar      Calendar
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger

	locks *keylock.Locker
}

// NewEventService wires dependencies for event operations.
func NewEventService(events persistence.EventRepository, notifications NotificationCleaner, alarms AlarmScheduler, calendar Calendar, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, notifications, alarms, calendar, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies with a specified logger.
func NewEventServiceWithLogger(events persistence.EventRepository, notifications NotificationCleaner, alarms AlarmScheduler, calendar Calendar, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if calendar.Location == nil {
		calendar.Location = time.Local
	}
	if calendar.AllDayAnchor <= 0 || calendar.AllDayAnchor >= 24*time.Hour {
		calendar.AllDayAnchor = DefaultAllDayAnchor
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:        events,
		notifications: notifications,
		alarms:        alarms,
		calendar:      calendar,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
		locks:         keylock.New(),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent stores a new event and registers its alarms. Alarm failures
// are logged and never fail the write.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event created")
	}()

	if err = validatePrincipal(params.Principal); err != nil {
		return
	}
	prepared, vErr := s.prepareEvent(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	event = prepared.event
	event.ID = s.idGenerator()
	event.UserID = params.Principal.UserID
	event.UserType = params.Principal.UserType
	event.CreatedAt = now
	event.UpdatedAt = now

	unlock := s.locks.Lock(event.ID)
	defer unlock()

	if err = s.events.CreateEvent(ctx, toPersistenceEvent(event)); err != nil {
		err = mapEventRepoError(err)
		return
	}
	s.syncAlarms(ctx, logger, false, event, prepared)
	return
}

// UpdateEvent replaces the event's fields and swaps its alarms for ones
// computed from the new date, time and offsets.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if err = validatePrincipal(params.Principal); err != nil {
		return
	}
	prepared, vErr := s.prepareEvent(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	unlock := s.locks.Lock(params.EventID)
	defer unlock()

	stored, getErr := s.events.GetEvent(ctx, params.EventID, params.Principal.UserID)
	if getErr != nil {
		err = mapEventRepoError(getErr)
		return
	}

	event = prepared.event
	event.ID = stored.ID
	event.UserID = stored.UserID
	event.UserType = UserType(stored.UserType)
	event.CreatedAt = stored.CreatedAt
	event.UpdatedAt = s.now()

	if err = s.events.UpdateEvent(ctx, toPersistenceEvent(event)); err != nil {
		err = mapEventRepoError(err)
		return
	}
	s.syncAlarms(ctx, logger, true, event, prepared)
	return
}

// DeleteEvent cancels the event's alarms, removes the event and then clears
// the notifications it already produced.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if err = validatePrincipal(principal); err != nil {
		return
	}

	unlock := s.locks.Lock(eventID)
	defer unlock()

	if _, getErr := s.events.GetEvent(ctx, eventID, principal.UserID); getErr != nil {
		err = mapEventRepoError(getErr)
		return
	}

	if s.alarms != nil {
		if _, cancelErr := s.alarms.Cancel(ctx, eventID); cancelErr != nil {
			logger.WarnContext(ctx, "failed to cancel alarms", "error", cancelErr)
		}
	}

	if err = s.events.DeleteEvent(ctx, eventID, principal.UserID); err != nil {
		err = mapEventRepoError(err)
		return
	}

	if s.alarms != nil && s.notifications != nil {
		link := s.alarms.EventLink(eventID)
		removed, cleanErr := s.notifications.DeleteNotificationsByLink(ctx, principal.UserID, alarm.CategoryEvent, link)
		if cleanErr != nil {
			logger.WarnContext(ctx, "failed to delete event notifications", "error", cleanErr)
		} else if removed > 0 {
			logger.DebugContext(ctx, "event notifications deleted", "count", removed)
		}
	}
	return
}

// GetEvent returns one event owned by the principal.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, eventID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	if err := validatePrincipal(principal); err != nil {
		return Event{}, err
	}
	stored, err := s.events.GetEvent(ctx, eventID, principal.UserID)
	if err != nil {
		return Event{}, mapEventRepoError(err)
	}
	return fromPersistenceEvent(stored), nil
}

// ListEventsByMonth returns the principal's events dated within one month.
func (s *EventService) ListEventsByMonth(ctx context.Context, params ListEventsParams) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if err := validatePrincipal(params.Principal); err != nil {
		return nil, err
	}

	vErr := &ValidationError{}
	if params.Year < 1 || params.Year > 9999 {
		vErr.add("year", "연도가 올바르지 않습니다")
	}
	if params.Month < time.January || params.Month > time.December {
		vErr.add("month", "월은 1부터 12 사이여야 합니다")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	first := time.Date(params.Year, params.Month, 1, 0, 0, 0, 0, s.calendar.Location)
	last := first.AddDate(0, 1, -1)
	return s.listBetween(ctx, params.Principal.UserID, first.Format(dateLayout), last.Format(dateLayout))
}

// ListEventsOnDate returns the principal's events on date (YYYY-MM-DD). An
// empty date means today.
func (s *EventService) ListEventsOnDate(ctx context.Context, principal Principal, date string) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}

	var day time.Time
	if strings.TrimSpace(date) == "" {
		day = s.now().In(s.calendar.Location)
	} else {
		parsed, err := parseDate(date, s.calendar.Location)
		if err != nil {
			vErr := &ValidationError{}
			vErr.add("date", "날짜는 YYYY-MM-DD 형식이어야 합니다")
			return nil, vErr
		}
		day = parsed
	}
	key := day.Format(dateLayout)
	return s.listBetween(ctx, principal.UserID, key, key)
}

func (s *EventService) listBetween(ctx context.Context, userID, from, to string) ([]Event, error) {
	if s.events == nil {
		return []Event{}, nil
	}
	stored, err := s.events.ListEventsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, mapEventRepoError(err)
	}
	events := make([]Event, 0, len(stored))
	for _, e := range stored {
		events = append(events, fromPersistenceEvent(e))
	}
	return events, nil
}

// preparedEvent is validated input with the alarm anchor resolved.
type preparedEvent struct {
	event   Event
	offsets []alarm.Offset
	eventAt time.Time
}

func (s *EventService) prepareEvent(input EventInput) (preparedEvent, *ValidationError) {
	vErr := &ValidationError{}
	validateTitle(input.Title, vErr)

	prepared := preparedEvent{
		event: Event{
			Title: strings.TrimSpace(input.Title),
			Color: normalizeColor(input.Color, vErr),
			Memo:  normalizeOptionalString(input.Memo),
		},
	}

	day, dateErr := parseDate(input.Date, s.calendar.Location)
	if dateErr != nil {
		vErr.add("date", "날짜는 YYYY-MM-DD 형식이어야 합니다")
	} else {
		prepared.event.Date = day.Format(dateLayout)
	}

	anchor := s.calendar.AllDayAnchor
	if value := normalizeOptionalString(input.Time); value != nil {
		tod, err := period.ParseTimeOfDay(*value)
		if err != nil {
			vErr.add("time", "시간은 HH:MM 또는 HH:MM:SS 형식이어야 합니다")
		} else {
			anchor = tod
			formatted := formatClock(tod)
			prepared.event.Time = &formatted
		}
	}

	offsets, err := alarm.ParseOffsets(input.Alarms)
	if err != nil {
		vErr.add("alarms", "지원하지 않는 알림 시간입니다")
	}
	prepared.offsets = offsets
	prepared.event.Alarms = make([]string, 0, len(offsets))
	for _, offset := range offsets {
		prepared.event.Alarms = append(prepared.event.Alarms, string(offset))
	}

	if dateErr == nil {
		prepared.eventAt = day.Add(anchor)
	}
	return prepared, vErr
}

// syncAlarms registers the event's alarms. The event is already persisted,
// so failures are only logged.
func (s *EventService) syncAlarms(ctx context.Context, logger *slog.Logger, replace bool, event Event, prepared preparedEvent) {
	if s.alarms == nil {
		return
	}
	req := alarm.Request{
		EventID:  event.ID,
		UserID:   event.UserID,
		UserType: string(event.UserType),
		Title:    event.Title,
		EventAt:  prepared.eventAt,
		Offsets:  prepared.offsets,
	}

	var (
		plan alarm.Plan
		err  error
	)
	if replace {
		plan, err = s.alarms.Reschedule(ctx, req)
	} else {
		plan, err = s.alarms.Schedule(ctx, req)
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to schedule alarms", "error", err)
		return
	}
	if len(plan.Skipped) > 0 {
		logger.InfoContext(ctx, "alarms already past were skipped", "skipped", len(plan.Skipped))
	}
}

func formatClock(tod time.Duration) string {
	h := int(tod / time.Hour)
	m := int(tod % time.Hour / time.Minute)
	sec := int(tod % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

func toPersistenceEvent(event Event) persistence.Event {
	return persistence.Event{
		ID:        event.ID,
		UserID:    event.UserID,
		UserType:  string(event.UserType),
		Title:     event.Title,
		Date:      event.Date,
		Time:      event.Time,
		Color:     event.Color,
		Memo:      event.Memo,
		Alarms:    append([]string(nil), event.Alarms...),
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.UpdatedAt,
	}
}

func fromPersistenceEvent(event persistence.Event) Event {
	alarms := event.Alarms
	if alarms == nil {
		alarms = []string{}
	}
	return Event{
		ID:        event.ID,
		UserID:    event.UserID,
		UserType:  UserType(event.UserType),
		Title:     event.Title,
		Date:      event.Date,
		Time:      event.Time,
		Color:     event.Color,
		Memo:      event.Memo,
		Alarms:    alarms,
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.UpdatedAt,
	}
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("event", "일정 정보가 올바르지 않습니다")
		return vErr
	}
	return err
}
