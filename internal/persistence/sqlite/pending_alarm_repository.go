package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/campus-scheduler/internal/persistence"
)

// PendingAlarmRepository implements persistence.PendingAlarmRepository using SQLite
type PendingAlarmRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

var _ persistence.PendingAlarmRepository = (*PendingAlarmRepository)(nil)

// NewPendingAlarmRepository creates a new SQLite pending alarm repository
func NewPendingAlarmRepository(pool *ConnectionPool) *PendingAlarmRepository {
	return &PendingAlarmRepository{pool: pool, now: time.Now}
}

// ReplacePendingAlarms swaps the stored alarms of an event in one transaction
func (r *PendingAlarmRepository) ReplacePendingAlarms(ctx context.Context, eventID string, alarms []persistence.PendingAlarm) error {
	for _, alarm := range alarms {
		if alarm.ID == "" || alarm.EventID != eventID {
			return persistence.ErrConstraintViolation
		}
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_alarms WHERE event_id = ?`, eventID); err != nil {
			return mapError(err)
		}

		const insert = `
			INSERT INTO pending_alarms (id, event_id, user_id, user_type, title, alarm_offset, event_at, fire_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, alarm := range alarms {
			createdAt := alarm.CreatedAt
			if createdAt.IsZero() {
				createdAt = r.now()
			}
			if _, err := tx.ExecContext(ctx, insert,
				alarm.ID,
				alarm.EventID,
				alarm.UserID,
				alarm.UserType,
				alarm.Title,
				alarm.Offset,
				formatTimestamp(alarm.EventAt),
				formatTimestamp(alarm.FireAt),
				formatTimestamp(createdAt),
			); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// DeletePendingAlarmsForEvent removes every stored alarm of an event
func (r *PendingAlarmRepository) DeletePendingAlarmsForEvent(ctx context.Context, eventID string) error {
	_, err := r.pool.db.ExecContext(ctx, `DELETE FROM pending_alarms WHERE event_id = ?`, eventID)
	return mapError(err)
}

// DeletePendingAlarm removes one stored alarm. Missing ids are ignored.
func (r *PendingAlarmRepository) DeletePendingAlarm(ctx context.Context, id string) error {
	_, err := r.pool.db.ExecContext(ctx, `DELETE FROM pending_alarms WHERE id = ?`, id)
	return mapError(err)
}

// ListPendingAlarms returns every stored alarm ordered by fire time
func (r *PendingAlarmRepository) ListPendingAlarms(ctx context.Context) ([]persistence.PendingAlarm, error) {
	const query = `
		SELECT id, event_id, user_id, user_type, title, alarm_offset, event_at, fire_at, created_at
		FROM pending_alarms
		ORDER BY fire_at ASC, id ASC
	`
	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	alarms := make([]persistence.PendingAlarm, 0)
	for rows.Next() {
		var alarm persistence.PendingAlarm
		var eventAtStr, fireAtStr, created string
		if err := rows.Scan(
			&alarm.ID,
			&alarm.EventID,
			&alarm.UserID,
			&alarm.UserType,
			&alarm.Title,
			&alarm.Offset,
			&eventAtStr,
			&fireAtStr,
			&created,
		); err != nil {
			return nil, mapError(err)
		}
		if alarm.EventAt, err = parseTimestamp(eventAtStr); err != nil {
			return nil, err
		}
		if alarm.FireAt, err = parseTimestamp(fireAtStr); err != nil {
			return nil, err
		}
		if alarm.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return alarms, nil
}

// DeletePendingAlarmsBefore removes alarms whose fire time is before cutoff
func (r *PendingAlarmRepository) DeletePendingAlarmsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM pending_alarms WHERE fire_at < ?`, formatTimestamp(cutoff))
	if err != nil {
		return 0, mapError(err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}
