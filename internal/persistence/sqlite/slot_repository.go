package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/campus-scheduler/internal/persistence"
)

const slotColumns = `id, user_id, day, start_period, end_period, title, location, color, memo, professor, credits, created_at`

const slotOrder = `ORDER BY day ASC, start_period ASC, end_period DESC, id ASC`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SlotRepository implements persistence.SlotRepository using SQLite
type SlotRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

var _ persistence.SlotRepository = (*SlotRepository)(nil)

// NewSlotRepository creates a new SQLite slot repository
func NewSlotRepository(pool *ConnectionPool) *SlotRepository {
	return &SlotRepository{pool: pool, now: time.Now}
}

// WithSlotTx runs fn inside one IMMEDIATE transaction.
func (r *SlotRepository) WithSlotTx(ctx context.Context, fn func(persistence.SlotStore) error) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&slotStore{q: tx, now: r.now})
	})
}

// ListSlots returns every slot of the user in grid order.
func (r *SlotRepository) ListSlots(ctx context.Context, userID string) ([]persistence.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE user_id = ? ` + slotOrder
	return querySlots(ctx, r.pool.db, query, userID)
}

// ListSlotsByDay returns the user's slots on one weekday.
func (r *SlotRepository) ListSlotsByDay(ctx context.Context, userID string, day int) ([]persistence.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE user_id = ? AND day = ? ` + slotOrder
	return querySlots(ctx, r.pool.db, query, userID, day)
}

// GetSlot retrieves a slot owned by userID.
func (r *SlotRepository) GetSlot(ctx context.Context, id, userID string) (persistence.Slot, error) {
	if id == "" {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE id = ? AND user_id = ?`
	slot, err := scanSlot(r.pool.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return persistence.Slot{}, mapError(err)
	}
	return slot, nil
}

// DeleteSlot removes a single slot owned by userID.
func (r *SlotRepository) DeleteSlot(ctx context.Context, id, userID string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM timetable_slots WHERE id = ? AND user_id = ?`, id, userID)
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

// ListCourses groups the user's slots by title.
func (r *SlotRepository) ListCourses(ctx context.Context, userID string) ([]persistence.CourseSummary, error) {
	const query = `
		SELECT title, MAX(credits), COUNT(*)
		FROM timetable_slots
		WHERE user_id = ?
		GROUP BY title
		ORDER BY title ASC
	`
	rows, err := r.pool.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	courses := make([]persistence.CourseSummary, 0)
	for rows.Next() {
		var (
			course  persistence.CourseSummary
			credits sql.NullInt64
		)
		if err := rows.Scan(&course.Title, &credits, &course.SlotCount); err != nil {
			return nil, mapError(err)
		}
		course.Credits = intPtr(credits)
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return courses, nil
}

// slotStore is the transaction-scoped SlotStore.
type slotStore struct {
	q   querier
	now func() time.Time
}

func (s *slotStore) InsertSlots(ctx context.Context, slots []persistence.Slot) ([]string, error) {
	const query = `
		INSERT INTO timetable_slots (` + slotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.ID == "" || slot.UserID == "" {
			return nil, persistence.ErrConstraintViolation
		}
		createdAt := slot.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		if _, err := s.q.ExecContext(ctx, query,
			slot.ID,
			slot.UserID,
			slot.Day,
			slot.StartPeriod,
			slot.EndPeriod,
			slot.Title,
			slot.Location,
			slot.Color,
			nullableString(slot.Memo),
			nullableString(slot.Professor),
			nullableInt(slot.Credits),
			formatTimestamp(createdAt),
		); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, slot.ID)
	}
	return ids, nil
}

func (s *slotStore) SlotsByTitle(ctx context.Context, userID, title string) ([]persistence.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE user_id = ? AND title = ? ` + slotOrder
	return querySlots(ctx, s.q, query, userID, title)
}

func (s *slotStore) FindOverlapping(ctx context.Context, userID string, day, start, end int) (persistence.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM timetable_slots
		WHERE user_id = ? AND day = ? AND NOT (end_period < ? OR start_period > ?)
		` + slotOrder + `
		LIMIT 1
	`
	slot, err := scanSlot(s.q.QueryRowContext(ctx, query, userID, day, start, end))
	if err != nil {
		return persistence.Slot{}, mapError(err)
	}
	return slot, nil
}

func (s *slotStore) DeleteSlotsByTitle(ctx context.Context, userID, title string) (int64, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM timetable_slots WHERE user_id = ? AND title = ?`, userID, title)
	if err != nil {
		return 0, mapError(err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}

func querySlots(ctx context.Context, q querier, query string, args ...any) ([]persistence.Slot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	slots := make([]persistence.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return slots, nil
}

func scanSlot(row rowScanner) (persistence.Slot, error) {
	var (
		slot            persistence.Slot
		memo, professor sql.NullString
		credits         sql.NullInt64
		createdAtStr    string
	)
	err := row.Scan(
		&slot.ID,
		&slot.UserID,
		&slot.Day,
		&slot.StartPeriod,
		&slot.EndPeriod,
		&slot.Title,
		&slot.Location,
		&slot.Color,
		&memo,
		&professor,
		&credits,
		&createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Slot{}, persistence.ErrNotFound
		}
		return persistence.Slot{}, err
	}
	slot.Memo = stringPtr(memo)
	slot.Professor = stringPtr(professor)
	slot.Credits = intPtr(credits)
	if slot.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
		return persistence.Slot{}, err
	}
	return slot, nil
}
