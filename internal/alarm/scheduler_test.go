package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/campus-scheduler/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []Notification
	err     error
	panics  bool
}

func (s *recordingSink) Record(ctx context.Context, n Notification) (string, error) {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.records = append(s.records, n)
	return "n-" + n.LinkURL, nil
}

func (s *recordingSink) snapshot() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.records...)
}

type memoryStore struct {
	mu    sync.Mutex
	tasks map[string]Task
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tasks: make(map[string]Task)}
}

func (m *memoryStore) ReplaceForEvent(ctx context.Context, eventID string, tasks []Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for id, task := range m.tasks {
		if task.EventID == eventID {
			delete(m.tasks, id)
		}
	}
	for _, task := range tasks {
		m.tasks[task.ID] = task
	}
	return nil
}

func (m *memoryStore) DeleteForEvent(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, task := range m.tasks {
		if task.EventID == eventID {
			delete(m.tasks, id)
		}
	}
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *memoryStore) ListPending(ctx context.Context) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task)
	}
	return out, nil
}

func (m *memoryStore) DeleteDueBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, task := range m.tasks {
		if task.FireAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func newTestScheduler(t *testing.T, start time.Time) (*Scheduler, *recordingSink, *memoryStore, *fakeClock) {
	t.Helper()
	if start.IsZero() {
		start = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	}
	clock := &fakeClock{now: start}
	sink := &recordingSink{}
	store := newMemoryStore()
	s := New(sink, Options{
		Store:       store,
		Now:         clock.Now,
		IDGenerator: sequentialIDs("alarm"),
		Logger:      logging.Discard(),
	})
	return s, sink, store, clock
}

func TestScheduler_SkipsOffsetsAlreadyInThePast(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, _, clock := newTestScheduler(t, now)
	ctx := context.Background()

	plan, err := s.Schedule(ctx, Request{
		EventID: "evt-1",
		UserID:  "user-1",
		Title:   "Study Group",
		EventAt: now.Add(time.Hour),
		Offsets: []Offset{Offset10Minutes, Offset1Day},
	})
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(plan.Scheduled) != 1 || plan.Scheduled[0].Offset != Offset10Minutes {
		t.Fatalf("expected only the 10m alarm, got %+v", plan.Scheduled)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0] != Offset1Day {
		t.Fatalf("expected 1d to be skipped, got %+v", plan.Skipped)
	}
	if want := time.Date(2025, 3, 10, 8, 50, 0, 0, time.UTC); !plan.Scheduled[0].FireAt.Equal(want) {
		t.Fatalf("fire time = %s, want %s", plan.Scheduled[0].FireAt, want)
	}

	if fired := s.Dispatch(ctx); fired != 0 {
		t.Fatalf("nothing should fire before 08:50, fired %d", fired)
	}

	clock.Set(time.Date(2025, 3, 10, 8, 50, 0, 0, time.UTC))
	if fired := s.Dispatch(ctx); fired != 1 {
		t.Fatalf("expected one alarm to fire, got %d", fired)
	}

	records := sink.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected one notification, got %d", len(records))
	}
	got := records[0]
	if got.Category != CategoryEvent || got.Title != NotificationTitle {
		t.Fatalf("unexpected notification header %+v", got)
	}
	if got.Message != "'Study Group' 10분 전입니다" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if got.LinkURL != "/ViewEvent?eventId=evt-1" {
		t.Fatalf("unexpected link %q", got.LinkURL)
	}
	if got.UserID != "user-1" {
		t.Fatalf("notification addressed to %q", got.UserID)
	}
	if s.Len() != 0 {
		t.Fatalf("fired task should leave the queue")
	}
}

func TestScheduler_FireTimeEqualToNowIsSkipped(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 50, 0, 0, time.UTC)
	s, _, _, _ := newTestScheduler(t, now)

	plan, err := s.Schedule(context.Background(), Request{
		EventID: "evt-1",
		EventAt: now.Add(10 * time.Minute),
		Offsets: []Offset{Offset10Minutes},
	})
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(plan.Scheduled) != 0 || len(plan.Skipped) != 1 {
		t.Fatalf("fire time equal to now must be skipped, got %+v", plan)
	}
}

func TestScheduler_CancelPreventsDelivery(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, store, clock := newTestScheduler(t, now)
	ctx := context.Background()

	if _, err := s.Schedule(ctx, Request{
		EventID: "evt-1",
		Title:   "Dentist",
		EventAt: now.Add(3 * time.Hour),
		Offsets: []Offset{Offset10Minutes, Offset1Hour},
	}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if store.count() != 2 {
		t.Fatalf("expected both tasks persisted, got %d", store.count())
	}

	cancelled, err := s.Cancel(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected two cancelled tasks, got %d", cancelled)
	}
	if store.count() != 0 {
		t.Fatalf("persisted tasks should be removed on cancel")
	}

	clock.Advance(4 * time.Hour)
	if fired := s.Dispatch(ctx); fired != 0 {
		t.Fatalf("cancelled tasks fired: %d", fired)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatalf("expected no notifications after cancel")
	}

	if n, err := s.Cancel(ctx, "evt-unknown"); err != nil || n != 0 {
		t.Fatalf("cancel of unknown event should be a no-op, got %d (%v)", n, err)
	}
}

func TestScheduler_RescheduleReplacesPendingTasks(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, store, clock := newTestScheduler(t, now)
	ctx := context.Background()

	if _, err := s.Schedule(ctx, Request{
		EventID: "evt-1",
		Title:   "Old title",
		EventAt: now.Add(2 * time.Hour),
		Offsets: []Offset{Offset10Minutes, Offset30Minutes},
	}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	plan, err := s.Reschedule(ctx, Request{
		EventID: "evt-1",
		Title:   "New title",
		EventAt: now.Add(5 * time.Hour),
		Offsets: []Offset{Offset1Hour},
	})
	if err != nil {
		t.Fatalf("Reschedule returned error: %v", err)
	}
	if plan.Cancelled != 2 || len(plan.Scheduled) != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	pending := s.Pending("evt-1")
	if len(pending) != 1 || pending[0].Offset != Offset1Hour {
		t.Fatalf("expected only the 1h task, got %+v", pending)
	}
	if store.count() != 1 {
		t.Fatalf("persisted set should match the registry, got %d", store.count())
	}

	clock.Advance(4 * time.Hour)
	if fired := s.Dispatch(ctx); fired != 1 {
		t.Fatalf("expected one alarm, got %d", fired)
	}
	records := sink.snapshot()
	if len(records) != 1 || records[0].Message != "'New title' 1시간 전입니다" {
		t.Fatalf("unexpected notifications %+v", records)
	}

	plan, err = s.Reschedule(ctx, Request{EventID: "evt-1", EventAt: now.Add(48 * time.Hour)})
	if err != nil {
		t.Fatalf("Reschedule returned error: %v", err)
	}
	if len(plan.Scheduled) != 0 || len(s.Pending("evt-1")) != 0 {
		t.Fatalf("rescheduling with no offsets must leave nothing pending")
	}
}

func TestScheduler_DuplicateOffsetsRegisterOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, _, _, _ := newTestScheduler(t, now)

	plan, err := s.Schedule(context.Background(), Request{
		EventID: "evt-1",
		EventAt: now.Add(48 * time.Hour),
		Offsets: []Offset{Offset1Day, Offset1Day, Offset1Hour},
	})
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(plan.Scheduled) != 2 || s.Len() != 2 {
		t.Fatalf("expected two distinct tasks, got %+v", plan.Scheduled)
	}
}

func TestScheduler_RejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newTestScheduler(t, time.Time{})
	ctx := context.Background()

	if _, err := s.Schedule(ctx, Request{EventAt: time.Now()}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := s.Schedule(ctx, Request{EventID: "e", Offsets: []Offset{"2h"}}); !errors.Is(err, ErrUnknownOffset) {
		t.Fatalf("expected ErrUnknownOffset, got %v", err)
	}
}

func TestScheduler_FiresInTimeOrderAcrossEvents(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, _, clock := newTestScheduler(t, now)
	ctx := context.Background()

	for _, req := range []Request{
		{EventID: "late", Title: "Late", EventAt: now.Add(3 * time.Hour), Offsets: []Offset{Offset10Minutes}},
		{EventID: "early", Title: "Early", EventAt: now.Add(time.Hour), Offsets: []Offset{Offset10Minutes}},
	} {
		if _, err := s.Schedule(ctx, req); err != nil {
			t.Fatalf("Schedule(%s) returned error: %v", req.EventID, err)
		}
	}

	clock.Set(now.Add(time.Hour))
	if fired := s.Dispatch(ctx); fired != 1 {
		t.Fatalf("expected only the early alarm, got %d", fired)
	}
	if records := sink.snapshot(); records[0].LinkURL != "/ViewEvent?eventId=early" {
		t.Fatalf("wrong alarm fired first: %+v", records[0])
	}
	if len(s.Pending("late")) != 1 {
		t.Fatalf("late alarm should still be pending")
	}
}

func TestScheduler_SinkFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, store, clock := newTestScheduler(t, now)
	sink.err = errors.New("disk full")
	ctx := context.Background()

	if _, err := s.Schedule(ctx, Request{EventID: "evt-1", EventAt: now.Add(time.Hour), Offsets: []Offset{Offset30Minutes}}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	clock.Advance(time.Hour)
	if fired := s.Dispatch(ctx); fired != 1 {
		t.Fatalf("expected one attempt, got %d", fired)
	}
	if fired := s.Dispatch(ctx); fired != 0 {
		t.Fatalf("failed task must not be retried")
	}
	if store.count() != 0 {
		t.Fatalf("persisted copy should be gone after the attempt")
	}
}

func TestScheduler_PanickingSinkDoesNotEscape(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, _, clock := newTestScheduler(t, now)
	sink.panics = true
	ctx := context.Background()

	if _, err := s.Schedule(ctx, Request{EventID: "evt-1", EventAt: now.Add(time.Hour), Offsets: []Offset{Offset30Minutes}}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	clock.Advance(time.Hour)
	if fired := s.Dispatch(ctx); fired != 1 {
		t.Fatalf("expected one attempt, got %d", fired)
	}
}

func TestScheduler_RecoverRestoresFutureAndDropsMissed(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, store, clock := newTestScheduler(t, now)
	ctx := context.Background()

	store.tasks["missed"] = Task{ID: "missed", EventID: "evt-1", Offset: Offset10Minutes, FireAt: now.Add(-time.Minute)}
	store.tasks["future"] = Task{ID: "future", EventID: "evt-1", Title: "Seminar", Offset: Offset1Hour, FireAt: now.Add(time.Hour)}

	result, err := s.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	if result.Restored != 1 || result.Dropped != 1 {
		t.Fatalf("unexpected recover result %+v", result)
	}
	if store.count() != 1 {
		t.Fatalf("missed row should be deleted")
	}

	// A second pass must not duplicate the restored task.
	if _, err := s.Recover(ctx); err != nil {
		t.Fatalf("second Recover returned error: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one pending task, got %d", s.Len())
	}

	clock.Advance(time.Hour)
	if fired := s.Dispatch(ctx); fired != 1 {
		t.Fatalf("expected restored alarm to fire, got %d", fired)
	}
	if len(sink.snapshot()) != 1 {
		t.Fatalf("missed alarm must not be delivered late")
	}
}

func TestScheduler_RunFiresDueTasks(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s, sink, _, clock := newTestScheduler(t, now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if _, err := s.Schedule(ctx, Request{EventID: "evt-1", Title: "Lab", EventAt: now.Add(time.Hour), Offsets: []Offset{Offset1Hour, Offset10Minutes}}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	// The 1h alarm lands exactly on now and is skipped; move past the 10m one.
	clock.Advance(55 * time.Minute)
	s.signal()

	deadline := time.After(5 * time.Second)
	for len(sink.snapshot()) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("dispatcher did not fire the due alarm")
		case <-time.After(10 * time.Millisecond):
			s.signal()
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
	if len(sink.snapshot()) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(sink.snapshot()))
	}
}

func TestScheduler_EventLinkUsesConfiguredBase(t *testing.T) {
	t.Parallel()

	s := New(&recordingSink{}, Options{LinkBase: "/events/view", Logger: logging.Discard()})
	if got := s.EventLink("a b"); got != "/events/view?eventId=a+b" {
		t.Fatalf("EventLink = %q", got)
	}
}

func TestOffsets(t *testing.T) {
	t.Parallel()

	labels := map[Offset]string{
		Offset10Minutes: "10분",
		Offset30Minutes: "30분",
		Offset1Hour:     "1시간",
		Offset12Hours:   "12시간",
		Offset1Day:      "1일",
		Offset1Week:     "1주일",
	}
	for _, o := range Offsets() {
		if o.Label() != labels[o] {
			t.Fatalf("label for %s = %q", o, o.Label())
		}
	}
	if Offset1Week.Duration() != 7*24*time.Hour {
		t.Fatalf("unexpected 1w duration %s", Offset1Week.Duration())
	}

	parsed, err := ParseOffsets([]string{"1d", " 10m", "1d"})
	if err != nil {
		t.Fatalf("ParseOffsets returned error: %v", err)
	}
	if len(parsed) != 2 || parsed[0] != Offset1Day || parsed[1] != Offset10Minutes {
		t.Fatalf("unexpected parsed offsets %v", parsed)
	}
	if _, err := ParseOffset("3d"); !errors.Is(err, ErrUnknownOffset) {
		t.Fatalf("expected ErrUnknownOffset, got %v", err)
	}
}

func TestJanitor_RunOnceRemovesStaleRows(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	store.tasks["stale"] = Task{ID: "stale", FireAt: now.Add(-2 * time.Hour)}
	store.tasks["recent"] = Task{ID: "recent", FireAt: now.Add(-30 * time.Minute)}
	store.tasks["future"] = Task{ID: "future", FireAt: now.Add(time.Hour)}

	j := NewJanitor(store, "not a cron spec", time.Hour, func() time.Time { return now }, logging.Discard())
	removed, err := j.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if removed != 1 || store.count() != 2 {
		t.Fatalf("expected only the stale row removed, got removed=%d remaining=%d", removed, store.count())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start with invalid spec should fall back, got %v", err)
	}
	j.Stop()
}
