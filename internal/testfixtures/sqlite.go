package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/campus-scheduler/internal/logging"
	"github.com/example/campus-scheduler/internal/persistence"
	"github.com/example/campus-scheduler/internal/persistence/memory"
	"github.com/example/campus-scheduler/internal/persistence/sqlite"
)

// StorageHarness exposes every repository of one storage backend.
type StorageHarness struct {
	Name          string
	Slots         persistence.SlotRepository
	Events        persistence.EventRepository
	Notifications persistence.NotificationRepository
	Alarms        persistence.PendingAlarmRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *StorageHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a migrated SQLite database in a temporary
// directory. Cleanup is registered with tb; calling Close early is allowed.
func NewSQLiteHarness(tb testing.TB) *StorageHarness {
	tb.Helper()

	storage := NewSQLiteStorage(tb)
	harness := &StorageHarness{
		Name:          "sqlite",
		Slots:         storage,
		Events:        storage,
		Notifications: storage,
		Alarms:        storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// NewMemoryHarness returns a harness over a fresh in-memory store.
func NewMemoryHarness(tb testing.TB) *StorageHarness {
	tb.Helper()

	storage := memory.New()
	return &StorageHarness{
		Name:          "memory",
		Slots:         storage,
		Events:        storage,
		Notifications: storage,
		Alarms:        storage,
	}
}

// NewSQLiteStorage opens and migrates a SQLite storage under tb.TempDir.
func NewSQLiteStorage(tb testing.TB) *sqlite.Storage {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "scheduler.db")
	storage, err := sqlite.Open(ctx, path, logging.Discard())
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })
	return storage
}

// Harnesses returns one constructor per storage backend, keyed by name, for
// tests that must behave identically on every backend.
func Harnesses() map[string]func(testing.TB) *StorageHarness {
	return map[string]func(testing.TB) *StorageHarness{
		"memory": NewMemoryHarness,
		"sqlite": NewSQLiteHarness,
	}
}
