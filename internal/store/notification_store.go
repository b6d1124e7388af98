package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/nhle/ehr-terminal/internal/model"
)

var notificationColumns = []string{
	"id", "user_id", "type", "content", "read", "created_at",
}

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Content   string    `db:"content"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:        model.ID(r.ID),
		UserID:    model.ID(r.UserID),
		Type:      model.ParseNotificationType(r.Type),
		Content:   r.Content,
		Timestamp: r.CreatedAt,
		Read:      r.Read,
	}
}

// UpsertNotifications merges server rows into the cache. A row that is
// already read locally stays read; a server-side read clears any
// pending local mark for it.
func (s *SQLiteStore) UpsertNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO notifications (id, user_id, type, content, read, pending, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id    = excluded.user_id,
			type       = excluded.type,
			content    = excluded.content,
			read       = MAX(notifications.read, excluded.read),
			pending    = CASE WHEN excluded.read = 1 THEN 0 ELSE notifications.pending END,
			created_at = excluded.created_at`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range ns {
		if n.ID == "" {
			n.ID = model.ID(uuid.New().String())
		}
		_, err := stmt.ExecContext(ctx,
			string(n.ID), string(n.UserID), string(model.ParseNotificationType(string(n.Type))),
			n.Content, boolToInt(n.Read), n.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetNotifications retrieves cached notifications, newest first.
func (s *SQLiteStore) GetNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error) {
	b := sq.Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"user_id": string(f.UserID)}).
		OrderBy("created_at DESC", "id")
	if f.UnreadOnly {
		b = b.Where(sq.Eq{"read": 0})
	}
	if f.Type != nil {
		b = b.Where(sq.Eq{"type": string(*f.Type)})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building notification query: %w", err)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// CountUnreadNotifications counts the notifications the user hasn't
// marked as read.
func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, userID model.ID) (int, error) {
	var total int
	err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0",
		string(userID),
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return total, nil
}

// MarkNotificationRead marks a single notification as read and queues
// the change for the backend.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userID, id model.ID) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1, pending = 1 WHERE id = ? AND user_id = ? AND read = 0",
		string(id), string(userID),
	)
	if err != nil {
		return false, fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	if rows > 0 {
		return true, nil
	}

	var count int
	err = s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?",
		string(id), string(userID),
	)
	if err != nil {
		return false, fmt.Errorf("looking up notification %s: %w", id, err)
	}
	if count == 0 {
		return false, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return false, nil
}

// MarkAllNotificationsRead marks every unread notification of the user.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID model.ID) ([]model.ID, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	err = tx.SelectContext(ctx, &ids,
		"SELECT id FROM notifications WHERE user_id = ? AND read = 0 ORDER BY created_at DESC",
		string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("listing unread notifications: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE notifications SET read = 1, pending = 1 WHERE user_id = ? AND read = 0",
		string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("marking notifications of %s as read: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing read marks: %w", err)
	}

	return toIDs(ids), nil
}

// PendingNotificationReads lists read marks not yet acknowledged by the
// backend.
func (s *SQLiteStore) PendingNotificationReads(ctx context.Context, userID model.ID) ([]model.ID, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM notifications WHERE user_id = ? AND pending = 1 ORDER BY created_at",
		string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending notification reads: %w", err)
	}
	return toIDs(ids), nil
}

// ClearPendingNotificationReads drops the pending flag once the backend
// acknowledged the marks.
func (s *SQLiteStore) ClearPendingNotificationReads(ctx context.Context, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sq.Update("notifications").
		Set("pending", 0).
		Where(sq.Eq{"id": fromIDs(ids)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building pending clear: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing pending notification reads: %w", err)
	}
	return nil
}

// IsNotFound reports whether err (or any error in its chain) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func toIDs(raw []string) []model.ID {
	ids := make([]model.ID, len(raw))
	for i, r := range raw {
		ids[i] = model.ID(r)
	}
	return ids
}

func fromIDs(ids []model.ID) []string {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	return raw
}
