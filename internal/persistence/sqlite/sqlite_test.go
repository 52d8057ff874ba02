package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/campus-scheduler/internal/logging"
	"github.com/example/campus-scheduler/internal/persistence"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	storage, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "scheduler.db"), logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return storage
}

func testSlot(id, title string, day, start, end int) persistence.Slot {
	return persistence.Slot{
		ID:          id,
		UserID:      "student-1",
		Day:         day,
		StartPeriod: start,
		EndPeriod:   end,
		Title:       title,
		Color:       "bg-blue-100",
		CreatedAt:   time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestConfig_DSN(t *testing.T) {
	t.Parallel()

	dsn := DefaultConfig("/var/lib/scheduler.db").DSN()
	for _, want := range []string{
		"file:/var/lib/scheduler.db?",
		"_txlock=immediate",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
	} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("DSN %q is missing %q", dsn, want)
		}
	}

	if err := DefaultConfig(":memory:").Validate(); err == nil {
		t.Fatalf("expected :memory: to be rejected")
	}
	cfg := DefaultConfig("x.db")
	cfg.JournalMode = "SIDEWAYS"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid journal mode to be rejected")
	}
}

func TestStorage_MigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	storage := openTestStorage(t)
	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if err := storage.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestSlotRepository_TransactionRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	boom := errors.New("abort")
	err := storage.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		if _, err := store.InsertSlots(ctx, []persistence.Slot{testSlot("s1", "Algorithms", 1, 1, 3)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}

	slots, err := storage.ListSlots(ctx, "student-1")
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("rolled back insert is visible: %+v", slots)
	}
}

func TestSlotRepository_FindOverlapping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	err := storage.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		_, err := store.InsertSlots(ctx, []persistence.Slot{
			testSlot("s1", "Algorithms", 1, 1, 3),
			testSlot("s2", "Algorithms", 3, 5, 6),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	err = storage.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		slot, err := store.FindOverlapping(ctx, "student-1", 1, 3, 4)
		if err != nil {
			t.Fatalf("expected touching range to collide: %v", err)
		}
		if slot.ID != "s1" {
			t.Fatalf("unexpected overlapping slot %+v", slot)
		}
		if _, err := store.FindOverlapping(ctx, "student-1", 1, 4, 5); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected adjacent range to be free, got %v", err)
		}
		if _, err := store.FindOverlapping(ctx, "student-2", 1, 1, 3); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("other users' slots must not collide, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read transaction failed: %v", err)
	}
}

func TestSlotRepository_ConstraintsMapToSentinels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	insert := func(slot persistence.Slot) error {
		return storage.WithSlotTx(ctx, func(store persistence.SlotStore) error {
			_, err := store.InsertSlots(ctx, []persistence.Slot{slot})
			return err
		})
	}

	if err := insert(testSlot("s1", "Physics", 2, 2, 3)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := insert(testSlot("s1", "Chemistry", 4, 2, 3)); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := insert(testSlot("s2", "Chemistry", 6, 2, 3)); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for day 6, got %v", err)
	}
	if err := insert(testSlot("s3", "Chemistry", 2, 5, 4)); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for inverted range, got %v", err)
	}
}

func TestSlotRepository_CoursesAndDeletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	credits := 3
	algorithms := testSlot("s1", "Algorithms", 1, 1, 2)
	algorithms.Credits = &credits
	err := storage.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		_, err := store.InsertSlots(ctx, []persistence.Slot{
			algorithms,
			testSlot("s2", "Algorithms", 3, 1, 2),
			testSlot("s3", "Databases", 2, 4, 5),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	courses, err := storage.ListCourses(ctx, "student-1")
	if err != nil {
		t.Fatalf("ListCourses failed: %v", err)
	}
	if len(courses) != 2 || courses[0].Title != "Algorithms" || courses[0].SlotCount != 2 {
		t.Fatalf("unexpected courses %+v", courses)
	}
	if courses[0].Credits == nil || *courses[0].Credits != 3 || courses[1].Credits != nil {
		t.Fatalf("unexpected course credits %+v", courses)
	}

	if err := storage.DeleteSlot(ctx, "s3", "student-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("deleting another user's slot should be ErrNotFound, got %v", err)
	}
	if err := storage.DeleteSlot(ctx, "s3", "student-1"); err != nil {
		t.Fatalf("DeleteSlot failed: %v", err)
	}

	var removed int64
	err = storage.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		var err error
		removed, err = store.DeleteSlotsByTitle(ctx, "student-1", "Algorithms")
		return err
	})
	if err != nil || removed != 2 {
		t.Fatalf("DeleteSlotsByTitle removed %d (%v)", removed, err)
	}
}

func TestEventRepository_RoundTripAndCascade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	at := "14:00:00"
	event := persistence.Event{
		ID:       "evt-1",
		UserID:   "student-1",
		UserType: "student",
		Title:    "Study group",
		Date:     "2025-03-10",
		Time:     &at,
		Color:    "bg-green-100",
		Alarms:   []string{"10m", "1d"},
	}
	if err := storage.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	fetched, err := storage.GetEvent(ctx, "evt-1", "student-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if len(fetched.Alarms) != 2 || fetched.Alarms[1] != "1d" || fetched.Time == nil || *fetched.Time != at {
		t.Fatalf("unexpected event %+v", fetched)
	}
	if _, err := storage.GetEvent(ctx, "evt-1", "student-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("other users must not see the event, got %v", err)
	}

	fireAt := time.Date(2025, 3, 10, 13, 50, 0, 0, time.UTC)
	if err := storage.ReplacePendingAlarms(ctx, "evt-1", []persistence.PendingAlarm{{
		ID:      "alarm-1",
		EventID: "evt-1",
		UserID:  "student-1",
		Title:   "Study group",
		Offset:  "10m",
		EventAt: fireAt.Add(10 * time.Minute),
		FireAt:  fireAt,
	}}); err != nil {
		t.Fatalf("ReplacePendingAlarms failed: %v", err)
	}

	if err := storage.DeleteEvent(ctx, "evt-1", "student-1"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	pending, err := storage.ListPendingAlarms(ctx)
	if err != nil {
		t.Fatalf("ListPendingAlarms failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending alarms should cascade with the event, got %+v", pending)
	}
}

func TestPendingAlarmRepository_RequiresEvent(t *testing.T) {
	t.Parallel()

	err := openTestStorage(t).ReplacePendingAlarms(context.Background(), "missing", []persistence.PendingAlarm{{
		ID:      "alarm-1",
		EventID: "missing",
		Offset:  "1h",
		FireAt:  time.Now(),
		EventAt: time.Now(),
	}})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestPendingAlarmRepository_OrdersAndPrunes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)
	if err := storage.CreateEvent(ctx, persistence.Event{
		ID: "evt-1", UserID: "u", UserType: "admin", Title: "Board", Date: "2025-03-12", Color: "bg-red-100",
	}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	base := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	alarms := []persistence.PendingAlarm{
		{ID: "late", EventID: "evt-1", Offset: "10m", EventAt: base, FireAt: base.Add(-10 * time.Minute)},
		{ID: "early", EventID: "evt-1", Offset: "1d", EventAt: base, FireAt: base.Add(-24 * time.Hour)},
		{ID: "mid", EventID: "evt-1", Offset: "1h", EventAt: base, FireAt: base.Add(-time.Hour).Add(500 * time.Millisecond)},
	}
	if err := storage.ReplacePendingAlarms(ctx, "evt-1", alarms); err != nil {
		t.Fatalf("ReplacePendingAlarms failed: %v", err)
	}

	listed, err := storage.ListPendingAlarms(ctx)
	if err != nil {
		t.Fatalf("ListPendingAlarms failed: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "early" || listed[1].ID != "mid" || listed[2].ID != "late" {
		t.Fatalf("unexpected order %+v", listed)
	}
	if !listed[1].FireAt.Equal(alarms[2].FireAt) {
		t.Fatalf("fire time lost precision: %s", listed[1].FireAt)
	}

	removed, err := storage.DeletePendingAlarmsBefore(ctx, base.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("DeletePendingAlarmsBefore failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected two stale rows removed, got %d", removed)
	}
}

func TestNotificationRepository_DeleteByLink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	for _, n := range []persistence.Notification{
		{ID: "n1", UserID: "u", Category: "event", Title: "일정 알림", Message: "a", LinkURL: "/ViewEvent?eventId=e1"},
		{ID: "n2", UserID: "u", Category: "event", Title: "일정 알림", Message: "b", LinkURL: "/ViewEvent?eventId=e2"},
		{ID: "n3", UserID: "u", Category: "notice", Title: "공지", Message: "c", LinkURL: "/ViewEvent?eventId=e1"},
	} {
		if err := storage.RecordNotification(ctx, n); err != nil {
			t.Fatalf("RecordNotification(%s) failed: %v", n.ID, err)
		}
	}

	removed, err := storage.DeleteNotificationsByLink(ctx, "u", "event", "/ViewEvent?eventId=e1")
	if err != nil || removed != 1 {
		t.Fatalf("DeleteNotificationsByLink removed %d (%v)", removed, err)
	}
	remaining, err := storage.ListNotifications(ctx, "u")
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected two notifications left, got %+v", remaining)
	}
}
