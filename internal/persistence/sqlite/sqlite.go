// Package sqlite implements the persistence repositories on SQLite through
// the pure-Go modernc.org/sqlite driver. The schema ships embedded and is
// applied by Migrate.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/campus-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	*SlotRepository
	*EventRepository
	*NotificationRepository
	*PendingAlarmRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path with DefaultConfig.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Storage, error) {
	return OpenWithConfig(ctx, DefaultConfig(path), logger)
}

// OpenWithConfig opens the database described by config.
func OpenWithConfig(ctx context.Context, config Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		SlotRepository:         NewSlotRepository(pool),
		EventRepository:        NewEventRepository(pool),
		NotificationRepository: NewNotificationRepository(pool),
		PendingAlarmRepository: NewPendingAlarmRepository(pool),
		pool:                   pool,
		logger:                 logger,
	}, nil
}

// Migrate applies every embedded migration that has not run yet.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping tests the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
