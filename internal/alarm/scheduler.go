// Package alarm schedules one-shot notifications ahead of personal events.
//
// A Scheduler owns every pending task. Tasks sit in a heap ordered by fire
// time and are registered per event so an event's alarms can be cancelled or
// replaced as a unit. A single dispatcher loop (Run) pops due tasks and writes
// them to a Sink; tests drive the same path synchronously through Dispatch
// with an injected clock.
package alarm

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-scheduler/internal/keylock"
	"github.com/example/campus-scheduler/internal/logging"
)

const (
	// CategoryEvent is the notification category for personal event alarms.
	CategoryEvent = "event"
	// NotificationTitle is the fixed title of fired alarm notifications.
	NotificationTitle = "일정 알림"
	// DefaultLinkBase is the page that shows one event.
	DefaultLinkBase = "/ViewEvent"
	// DefaultSinkTimeout bounds a single notification write.
	DefaultSinkTimeout = 10 * time.Second

	maxIdle = time.Minute
)

// ErrInvalidRequest is returned for requests without an event id.
var ErrInvalidRequest = errors.New("alarm: invalid request")

// Task is one pending notification for one offset of one event.
type Task struct {
	ID       string
	EventID  string
	UserID   string
	UserType string
	Title    string
	Offset   Offset
	EventAt  time.Time
	FireAt   time.Time
}

// Notification is the record written when a task fires.
type Notification struct {
	UserID   string
	UserType string
	Category string
	Title    string
	Message  string
	LinkURL  string
}

// Sink durably records fired notifications.
type Sink interface {
	Record(ctx context.Context, notification Notification) (string, error)
}

// Store mirrors pending tasks so they survive a restart.
type Store interface {
	ReplaceForEvent(ctx context.Context, eventID string, tasks []Task) error
	DeleteForEvent(ctx context.Context, eventID string) error
	Delete(ctx context.Context, taskID string) error
	ListPending(ctx context.Context) ([]Task, error)
	DeleteDueBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Request describes the alarms wanted for one event.
type Request struct {
	EventID  string
	UserID   string
	UserType string
	Title    string
	EventAt  time.Time
	Offsets  []Offset
}

func (r Request) validate() error {
	if strings.TrimSpace(r.EventID) == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidRequest)
	}
	for _, o := range r.Offsets {
		if !o.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownOffset, string(o))
		}
	}
	return nil
}

// Plan reports what a Schedule or Reschedule call registered.
type Plan struct {
	EventID   string
	Scheduled []Task
	Skipped   []Offset
	Cancelled int
}

// RecoverResult summarises a boot-time recovery pass.
type RecoverResult struct {
	Restored int
	Dropped  int
}

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	Store       Store
	Now         func() time.Time
	IDGenerator func() string
	Logger      *slog.Logger
	LinkBase    string
	SinkTimeout time.Duration
}

// Scheduler is the registry and dispatcher for alarm tasks.
type Scheduler struct {
	sink        Sink
	store       Store
	now         func() time.Time
	idGenerator func() string
	logger      *slog.Logger
	linkBase    string
	sinkTimeout time.Duration

	events *keylock.Locker

	mu      sync.Mutex
	queue   taskQueue
	byEvent map[string]map[string]*queued

	wake     chan struct{}
	inflight sync.WaitGroup
}

// New constructs a Scheduler that writes fired alarms to sink.
func New(sink Sink, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if strings.TrimSpace(opts.LinkBase) == "" {
		opts.LinkBase = DefaultLinkBase
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	return &Scheduler{
		sink:        sink,
		store:       opts.Store,
		now:         opts.Now,
		idGenerator: opts.IDGenerator,
		logger:      opts.Logger,
		linkBase:    opts.LinkBase,
		sinkTimeout: opts.SinkTimeout,
		events:      keylock.New(),
		byEvent:     make(map[string]map[string]*queued),
		wake:        make(chan struct{}, 1),
	}
}

func (s *Scheduler) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"service", "AlarmScheduler", "operation", operation}, attrs...)
	return logging.OrDefault(ctx, s.logger).With(pairs...)
}

// Schedule registers a task for every offset whose fire time is still in
// the future. Offsets already in the past are reported in Plan.Skipped and
// never fire. Any tasks still registered for the event are replaced.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Plan, error) {
	if s == nil {
		return Plan{}, fmt.Errorf("alarm scheduler is nil")
	}
	if err := req.validate(); err != nil {
		return Plan{}, err
	}
	unlock := s.events.Lock(req.EventID)
	defer unlock()
	return s.replace(ctx, "Schedule", req)
}

// Reschedule cancels the event's pending tasks and registers the new set
// while holding the event lock, so stale and fresh tasks never coexist.
func (s *Scheduler) Reschedule(ctx context.Context, req Request) (Plan, error) {
	if s == nil {
		return Plan{}, fmt.Errorf("alarm scheduler is nil")
	}
	if err := req.validate(); err != nil {
		return Plan{}, err
	}
	unlock := s.events.Lock(req.EventID)
	defer unlock()
	return s.replace(ctx, "Reschedule", req)
}

// Cancel drops every pending task of the event. Tasks that already fired or
// are mid-fire are unaffected. Calling Cancel for an unknown event is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, eventID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("alarm scheduler is nil")
	}
	unlock := s.events.Lock(eventID)
	defer unlock()

	s.mu.Lock()
	cancelled := s.removeEventLocked(eventID)
	s.mu.Unlock()
	if cancelled > 0 {
		s.signal()
	}

	logger := s.loggerWith(ctx, "Cancel", "event_id", eventID)
	if s.store != nil {
		if err := s.store.DeleteForEvent(ctx, eventID); err != nil {
			logger.ErrorContext(ctx, "failed to delete persisted alarms", "error", err)
			return cancelled, fmt.Errorf("delete persisted alarms for %s: %w", eventID, err)
		}
	}
	if cancelled > 0 {
		logger.InfoContext(ctx, "alarms cancelled", "count", cancelled)
	}
	return cancelled, nil
}

func (s *Scheduler) replace(ctx context.Context, operation string, req Request) (Plan, error) {
	plan := s.plan(req)

	s.mu.Lock()
	plan.Cancelled = s.removeEventLocked(req.EventID)
	for _, task := range plan.Scheduled {
		s.pushLocked(task)
	}
	s.mu.Unlock()
	s.signal()

	logger := s.loggerWith(ctx, operation, "event_id", req.EventID)
	// A task firing before this write deletes a row that does not exist yet
	// and the write then restores it. Such a row is already due, so Recover
	// drops it and the janitor removes it.
	if s.store != nil {
		if err := s.store.ReplaceForEvent(ctx, req.EventID, plan.Scheduled); err != nil {
			logger.WarnContext(ctx, "failed to persist pending alarms", "error", err)
		}
	}
	logger.InfoContext(ctx, "alarms registered",
		"scheduled", len(plan.Scheduled),
		"skipped", len(plan.Skipped),
		"cancelled", plan.Cancelled,
	)
	return plan, nil
}

func (s *Scheduler) plan(req Request) Plan {
	plan := Plan{EventID: req.EventID}
	now := s.now()
	seen := make(map[Offset]struct{}, len(req.Offsets))
	for _, offset := range req.Offsets {
		if _, dup := seen[offset]; dup {
			continue
		}
		seen[offset] = struct{}{}

		fireAt := req.EventAt.Add(-offset.Duration())
		if !fireAt.After(now) {
			plan.Skipped = append(plan.Skipped, offset)
			continue
		}
		plan.Scheduled = append(plan.Scheduled, Task{
			ID:       s.idGenerator(),
			EventID:  req.EventID,
			UserID:   req.UserID,
			UserType: req.UserType,
			Title:    req.Title,
			Offset:   offset,
			EventAt:  req.EventAt,
			FireAt:   fireAt,
		})
	}
	return plan
}

func (s *Scheduler) pushLocked(task Task) {
	item := &queued{task: task}
	heap.Push(&s.queue, item)
	tasks, ok := s.byEvent[task.EventID]
	if !ok {
		tasks = make(map[string]*queued)
		s.byEvent[task.EventID] = tasks
	}
	tasks[task.ID] = item
}

func (s *Scheduler) removeEventLocked(eventID string) int {
	tasks := s.byEvent[eventID]
	for _, item := range tasks {
		if item.index >= 0 {
			heap.Remove(&s.queue, item.index)
		}
	}
	delete(s.byEvent, eventID)
	return len(tasks)
}

// takeDue pops every task due at now. Once popped a task can no longer be
// cancelled.
func (s *Scheduler) takeDue(now time.Time) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Task
	for {
		top := s.queue.peek()
		if top == nil || top.task.FireAt.After(now) {
			break
		}
		heap.Pop(&s.queue)
		if tasks, ok := s.byEvent[top.task.EventID]; ok {
			delete(tasks, top.task.ID)
			if len(tasks) == 0 {
				delete(s.byEvent, top.task.EventID)
			}
		}
		due = append(due, top.task)
	}
	return due
}

func (s *Scheduler) launch(ctx context.Context, tasks []Task, wg *sync.WaitGroup) {
	for _, task := range tasks {
		task := task
		s.inflight.Add(1)
		if wg != nil {
			wg.Add(1)
		}
		go func() {
			defer s.inflight.Done()
			if wg != nil {
				defer wg.Done()
			}
			s.fire(ctx, task)
		}()
	}
}

// Dispatch fires every task due at the scheduler's current time and waits
// for those writes to finish. It returns the number of tasks fired.
func (s *Scheduler) Dispatch(ctx context.Context) int {
	if s == nil {
		return 0
	}
	due := s.takeDue(s.now())
	var wg sync.WaitGroup
	s.launch(ctx, due, &wg)
	wg.Wait()
	return len(due)
}

// Run dispatches due tasks until ctx is cancelled, sleeping until the
// earliest fire time or until the task set changes. On return every task
// that had already started firing has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("alarm scheduler is nil")
	}
	logger := s.loggerWith(ctx, "Run")
	logger.InfoContext(ctx, "alarm dispatcher started")

	timer := time.NewTimer(maxIdle)
	defer timer.Stop()

	for {
		s.launch(ctx, s.takeDue(s.now()), nil)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextWait())

		select {
		case <-ctx.Done():
			s.inflight.Wait()
			logger.InfoContext(ctx, "alarm dispatcher stopped", "pending", s.Len())
			return nil
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// Wait blocks until every in-flight notification write has finished.
func (s *Scheduler) Wait() {
	if s != nil {
		s.inflight.Wait()
	}
}

func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	top := s.queue.peek()
	var fireAt time.Time
	if top != nil {
		fireAt = top.task.FireAt
	}
	s.mu.Unlock()

	if top == nil {
		return maxIdle
	}
	wait := fireAt.Sub(s.now())
	switch {
	case wait < 0:
		return 0
	case wait > maxIdle:
		return maxIdle
	}
	return wait
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// fire writes one notification. The persisted copy is removed first so a
// crash after the write cannot deliver it twice. Failures are logged and
// never retried.
func (s *Scheduler) fire(ctx context.Context, task Task) {
	ctx = context.WithoutCancel(ctx)
	logger := s.loggerWith(ctx, "Fire",
		"event_id", task.EventID,
		"task_id", task.ID,
		"offset", string(task.Offset),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "alarm task panicked", "panic", r)
		}
	}()

	if s.store != nil {
		if err := s.store.Delete(ctx, task.ID); err != nil {
			logger.WarnContext(ctx, "failed to delete persisted alarm", "error", err)
		}
	}
	if s.sink == nil {
		logger.ErrorContext(ctx, "no notification sink configured")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()
	id, err := s.sink.Record(writeCtx, s.notificationFor(task))
	if err != nil {
		logger.ErrorContext(ctx, "failed to record alarm notification", "error", err)
		return
	}
	logger.InfoContext(ctx, "alarm notification recorded", "notification_id", id, "fire_at", task.FireAt)
}

func (s *Scheduler) notificationFor(task Task) Notification {
	return Notification{
		UserID:   task.UserID,
		UserType: task.UserType,
		Category: CategoryEvent,
		Title:    NotificationTitle,
		Message:  fmt.Sprintf("'%s' %s 전입니다", task.Title, task.Offset.Label()),
		LinkURL:  s.EventLink(task.EventID),
	}
}

// EventLink returns the link stored on notifications for eventID.
func (s *Scheduler) EventLink(eventID string) string {
	base := DefaultLinkBase
	if s != nil {
		base = s.linkBase
	}
	return base + "?eventId=" + url.QueryEscape(eventID)
}

// Recover re-registers persisted tasks after a restart. Tasks whose fire
// time passed while the process was down are dropped, not delivered late.
func (s *Scheduler) Recover(ctx context.Context) (RecoverResult, error) {
	if s == nil || s.store == nil {
		return RecoverResult{}, nil
	}
	logger := s.loggerWith(ctx, "Recover")

	tasks, err := s.store.ListPending(ctx)
	if err != nil {
		return RecoverResult{}, fmt.Errorf("list pending alarms: %w", err)
	}

	now := s.now()
	var result RecoverResult
	var restore []Task
	for _, task := range tasks {
		if !task.FireAt.After(now) || !task.Offset.Valid() {
			result.Dropped++
			logger.WarnContext(ctx, "dropping alarm missed during downtime",
				"event_id", task.EventID,
				"task_id", task.ID,
				"fire_at", task.FireAt,
			)
			if err := s.store.Delete(ctx, task.ID); err != nil {
				logger.WarnContext(ctx, "failed to delete missed alarm", "task_id", task.ID, "error", err)
			}
			continue
		}
		restore = append(restore, task)
	}

	s.mu.Lock()
	for _, task := range restore {
		if existing, ok := s.byEvent[task.EventID]; ok {
			if _, dup := existing[task.ID]; dup {
				continue
			}
		}
		s.pushLocked(task)
		result.Restored++
	}
	s.mu.Unlock()
	s.signal()

	logger.InfoContext(ctx, "pending alarms recovered", "restored", result.Restored, "dropped", result.Dropped)
	return result, nil
}

// Pending returns the tasks still registered for eventID, earliest first.
func (s *Scheduler) Pending(eventID string) []Task {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	tasks := make([]Task, 0, len(s.byEvent[eventID]))
	for _, item := range s.byEvent[eventID] {
		tasks = append(tasks, item.task)
	}
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].FireAt.Equal(tasks[j].FireAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].FireAt.Before(tasks[j].FireAt)
	})
	return tasks
}

// Len returns the number of pending tasks across all events.
func (s *Scheduler) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
