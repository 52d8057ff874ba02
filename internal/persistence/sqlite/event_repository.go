package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/campus-scheduler/internal/persistence"
)

const eventColumns = `id, user_id, user_type, title, event_date, event_time, color, memo, alarms, created_at, updated_at`

// EventRepository implements persistence.EventRepository using SQLite
type EventRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

var _ persistence.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates a new SQLite event repository
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{pool: pool, now: time.Now}
}

// CreateEvent inserts a new event
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	alarms, err := encodeAlarms(event.Alarms)
	if err != nil {
		return err
	}

	now := r.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	query := `INSERT INTO personal_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.pool.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.UserType,
		event.Title,
		event.Date,
		nullableString(event.Time),
		event.Color,
		nullableString(event.Memo),
		alarms,
		formatTimestamp(event.CreatedAt),
		formatTimestamp(event.UpdatedAt),
	)
	return mapError(err)
}

// UpdateEvent replaces the mutable fields of an event owned by event.UserID
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	alarms, err := encodeAlarms(event.Alarms)
	if err != nil {
		return err
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = r.now()
	}

	const query = `
		UPDATE personal_events
		SET title = ?, event_date = ?, event_time = ?, color = ?, memo = ?, alarms = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.pool.db.ExecContext(ctx, query,
		event.Title,
		event.Date,
		nullableString(event.Time),
		event.Color,
		nullableString(event.Memo),
		alarms,
		formatTimestamp(event.UpdatedAt),
		event.ID,
		event.UserID,
	)
	if err != nil {
		return mapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetEvent retrieves an event owned by userID
func (r *EventRepository) GetEvent(ctx context.Context, id, userID string) (persistence.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM personal_events WHERE id = ? AND user_id = ?`
	event, err := scanEvent(r.pool.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return persistence.Event{}, mapError(err)
	}
	return event, nil
}

// DeleteEvent removes an event. Pending alarm rows cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, id, userID string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM personal_events WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return mapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListEventsBetween returns the user's events dated from..to inclusive
func (r *EventRepository) ListEventsBetween(ctx context.Context, userID, from, to string) ([]persistence.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM personal_events
		WHERE user_id = ? AND event_date BETWEEN ? AND ?
		ORDER BY event_date ASC, COALESCE(event_time, '') ASC, id ASC
	`
	rows, err := r.pool.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	events := make([]persistence.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                    persistence.Event
		eventTime, memo          sql.NullString
		alarms                   string
		createdAtStr, updatedStr string
	)
	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.UserType,
		&event.Title,
		&event.Date,
		&eventTime,
		&event.Color,
		&memo,
		&alarms,
		&createdAtStr,
		&updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, persistence.ErrNotFound
		}
		return persistence.Event{}, err
	}
	event.Time = stringPtr(eventTime)
	event.Memo = stringPtr(memo)
	event.Alarms = decodeAlarms(alarms)
	if event.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTimestamp(updatedStr); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

func encodeAlarms(alarms []string) (string, error) {
	if alarms == nil {
		alarms = []string{}
	}
	data, err := json.Marshal(alarms)
	if err != nil {
		return "", fmt.Errorf("failed to encode alarms: %w", err)
	}
	return string(data), nil
}

// decodeAlarms tolerates empty or malformed columns written by older
// clients and treats them as no alarms.
func decodeAlarms(value string) []string {
	alarms := []string{}
	if value == "" {
		return alarms
	}
	if err := json.Unmarshal([]byte(value), &alarms); err != nil {
		return []string{}
	}
	return alarms
}
