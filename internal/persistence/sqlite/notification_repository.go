package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/campus-scheduler/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite
type NotificationRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

var _ persistence.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new SQLite notification repository
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{pool: pool, now: time.Now}
}

// RecordNotification inserts a notification into the inbox
func (r *NotificationRepository) RecordNotification(ctx context.Context, n persistence.Notification) error {
	if n.ID == "" || n.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}

	const query = `
		INSERT INTO notifications (id, user_id, user_type, category, title, message, link_url, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.pool.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.UserType,
		n.Category,
		n.Title,
		n.Message,
		n.LinkURL,
		n.IsRead,
		formatTimestamp(n.CreatedAt),
	)
	return mapError(err)
}

// ListNotifications returns the user's notifications, newest first
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string) ([]persistence.Notification, error) {
	const query = `
		SELECT id, user_id, user_type, category, title, message, link_url, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.pool.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	notifications := make([]persistence.Notification, 0)
	for rows.Next() {
		var (
			n            persistence.Notification
			createdAtStr string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.UserType, &n.Category, &n.Title, &n.Message, &n.LinkURL, &n.IsRead, &createdAtStr); err != nil {
			return nil, mapError(err)
		}
		if n.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return notifications, nil
}

// DeleteNotificationsByLink removes the user's notifications in category
// that point at linkURL
func (r *NotificationRepository) DeleteNotificationsByLink(ctx context.Context, userID, category, linkURL string) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE user_id = ? AND category = ? AND link_url = ?`,
		userID, category, linkURL,
	)
	if err != nil {
		return 0, mapError(err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}
