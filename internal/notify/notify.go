// Package notify connects the alarm scheduler to persistent storage: fired
// alarms land in the notification inbox and pending tasks are mirrored so a
// restart can recover them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/persistence"
)

var (
	_ alarm.Sink  = (*InboxSink)(nil)
	_ alarm.Store = (*PendingStore)(nil)
)

// ErrIncompleteNotification is returned when a notification lacks its owner or category.
var ErrIncompleteNotification = errors.New("notify: incomplete notification")

// InboxSink records fired alarms as inbox notifications.
type InboxSink struct {
	repo        persistence.NotificationRepository
	idGenerator func() string
	now         func() time.Time
}

// NewInboxSink returns a sink writing to repo. Nil generators fall back to
// uuid and the wall clock.
func NewInboxSink(repo persistence.NotificationRepository, idGenerator func() string, now func() time.Time) *InboxSink {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &InboxSink{repo: repo, idGenerator: idGenerator, now: now}
}

// Record stores notification unread and returns its id.
func (s *InboxSink) Record(ctx context.Context, notification alarm.Notification) (string, error) {
	if strings.TrimSpace(notification.UserID) == "" || strings.TrimSpace(notification.Category) == "" {
		return "", ErrIncompleteNotification
	}
	id := s.idGenerator()
	err := s.repo.RecordNotification(ctx, persistence.Notification{
		ID:        id,
		UserID:    notification.UserID,
		UserType:  notification.UserType,
		Category:  notification.Category,
		Title:     notification.Title,
		Message:   notification.Message,
		LinkURL:   notification.LinkURL,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("record notification: %w", err)
	}
	return id, nil
}

// PendingStore mirrors alarm tasks into the pending alarm table.
type PendingStore struct {
	repo persistence.PendingAlarmRepository
	now  func() time.Time
}

// NewPendingStore returns an alarm.Store backed by repo.
func NewPendingStore(repo persistence.PendingAlarmRepository, now func() time.Time) *PendingStore {
	if now == nil {
		now = time.Now
	}
	return &PendingStore{repo: repo, now: now}
}

// ReplaceForEvent swaps the stored tasks of eventID for tasks.
func (s *PendingStore) ReplaceForEvent(ctx context.Context, eventID string, tasks []alarm.Task) error {
	created := s.now()
	rows := make([]persistence.PendingAlarm, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, persistence.PendingAlarm{
			ID:        task.ID,
			EventID:   task.EventID,
			UserID:    task.UserID,
			UserType:  task.UserType,
			Title:     task.Title,
			Offset:    string(task.Offset),
			EventAt:   task.EventAt,
			FireAt:    task.FireAt,
			CreatedAt: created,
		})
	}
	return s.repo.ReplacePendingAlarms(ctx, eventID, rows)
}

// DeleteForEvent removes every stored task of eventID.
func (s *PendingStore) DeleteForEvent(ctx context.Context, eventID string) error {
	return s.repo.DeletePendingAlarmsForEvent(ctx, eventID)
}

// Delete removes one fired task. A task that is already gone is not an error.
func (s *PendingStore) Delete(ctx context.Context, taskID string) error {
	err := s.repo.DeletePendingAlarm(ctx, taskID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	return err
}

// ListPending returns every stored task. Rows with an unknown offset are skipped.
func (s *PendingStore) ListPending(ctx context.Context) ([]alarm.Task, error) {
	rows, err := s.repo.ListPendingAlarms(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]alarm.Task, 0, len(rows))
	for _, row := range rows {
		offset, err := alarm.ParseOffset(row.Offset)
		if err != nil {
			continue
		}
		tasks = append(tasks, alarm.Task{
			ID:       row.ID,
			EventID:  row.EventID,
			UserID:   row.UserID,
			UserType: row.UserType,
			Title:    row.Title,
			Offset:   offset,
			EventAt:  row.EventAt,
			FireAt:   row.FireAt,
		})
	}
	return tasks, nil
}

// DeleteDueBefore prunes tasks whose fire time is before cutoff.
func (s *PendingStore) DeleteDueBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeletePendingAlarmsBefore(ctx, cutoff)
}
