package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/nhle/ehr-terminal/internal/model"
)

var messageColumns = []string{
	"id", "conversation_id", "sender_id", "sender_role", "recipient_id",
	"content", "attachments", "status", "created_at",
}

type messageRow struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	SenderID       string    `db:"sender_id"`
	SenderRole     string    `db:"sender_role"`
	RecipientID    string    `db:"recipient_id"`
	Content        string    `db:"content"`
	Attachments    string    `db:"attachments"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r messageRow) toModel() (model.Message, error) {
	m := model.Message{
		ID:             model.ID(r.ID),
		ConversationID: r.ConversationID,
		SenderID:       model.ID(r.SenderID),
		SenderRole:     model.Role(r.SenderRole),
		RecipientID:    model.ID(r.RecipientID),
		Content:        r.Content,
		Status:         model.MessageStatus(r.Status),
		Timestamp:      r.CreatedAt,
	}
	if r.Attachments != "" && r.Attachments != "[]" {
		if err := json.Unmarshal([]byte(r.Attachments), &m.Attachments); err != nil {
			return model.Message{}, fmt.Errorf("unmarshaling attachments of message %s: %w", r.ID, err)
		}
	}
	return m, nil
}

// messageArgs returns the insert values shared by upsert and append.
func messageArgs(m model.Message) ([]interface{}, error) {
	attachments := []byte("[]")
	if len(m.Attachments) > 0 {
		var err error
		attachments, err = json.Marshal(m.Attachments)
		if err != nil {
			return nil, fmt.Errorf("marshaling attachments for message %s: %w", m.ID, err)
		}
	}
	status := m.Status
	if status != model.MessageRead {
		status = model.MessageSent
	}
	return []interface{}{
		string(m.ID), m.ConversationID, string(m.SenderID), string(m.SenderRole),
		string(m.RecipientID), m.Content, string(attachments), string(status),
		m.Timestamp.UTC(),
	}, nil
}

// UpsertMessages merges server messages into the cache. Existing rows
// keep their position; a read status is never downgraded.
func (s *SQLiteStore) UpsertMessages(ctx context.Context, ms []model.Message) error {
	if len(ms) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO messages (
			id, conversation_id, sender_id, sender_role, recipient_id,
			content, attachments, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content     = excluded.content,
			attachments = excluded.attachments,
			status      = CASE
				WHEN messages.status = 'read' OR excluded.status = 'read' THEN 'read'
				ELSE 'sent'
			END,
			pending     = CASE
				WHEN messages.pending = 'read' AND excluded.status = 'read' THEN ''
				ELSE messages.pending
			END`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		if m.ID == "" {
			m.ID = model.ID(uuid.New().String())
		}
		args, err := messageArgs(m)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upserting message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// GetMessages returns cached messages in arrival order.
func (s *SQLiteStore) GetMessages(ctx context.Context, f MessageFilter) ([]model.Message, error) {
	b := sq.Select(messageColumns...).From("messages").OrderBy("seq")

	if f.ConversationID != "" {
		b = b.Where(sq.Eq{"conversation_id": f.ConversationID})
	}
	if f.UserID != "" {
		b = b.Where(sq.Or{
			sq.Eq{"sender_id": string(f.UserID), "sender_role": string(f.Role)},
			sq.Eq{"recipient_id": string(f.UserID), "sender_role": string(f.Role.Counterpart())},
		})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		b = b.Where(sq.Like{"content": "%" + q + "%"})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// AppendMessage inserts a locally composed message pending delivery.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m model.Message) error {
	if m.ID == "" {
		m.ID = model.ID(uuid.New().String())
	}
	args, err := messageArgs(m)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id, sender_role, recipient_id,
			content, attachments, status, created_at, pending
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'send')`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("appending message to %s: %w", m.ConversationID, err)
	}
	return nil
}

// AckMessage swaps the local id for the server id. When the server
// copy was already merged by a poll, the local row is dropped instead.
func (s *SQLiteStore) AckMessage(ctx context.Context, localID, serverID model.ID) error {
	if serverID == "" {
		serverID = localID
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var merged int
	if serverID != localID {
		if err := tx.GetContext(ctx, &merged,
			"SELECT COUNT(*) FROM messages WHERE id = ?", string(serverID),
		); err != nil {
			return fmt.Errorf("looking up message %s: %w", serverID, err)
		}
	}

	var result sql.Result
	if merged > 0 {
		result, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", string(localID))
	} else {
		result, err = tx.ExecContext(ctx,
			"UPDATE messages SET id = ?, pending = '' WHERE id = ?",
			string(serverID), string(localID),
		)
	}
	if err != nil {
		return fmt.Errorf("acknowledging message %s: %w", localID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledging message %s: %w", localID, err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s: %w", localID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing acknowledgement: %w", err)
	}
	return nil
}

// MarkConversationRead flips unread messages addressed to the reader.
func (s *SQLiteStore) MarkConversationRead(
	ctx context.Context,
	conversationID string,
	readerID model.ID,
	readerRole model.Role,
) ([]model.ID, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const where = `conversation_id = ? AND status = 'sent'
		AND NOT (sender_id = ? AND sender_role = ?)`
	args := []interface{}{conversationID, string(readerID), string(readerRole)}

	var ids []string
	if err := tx.SelectContext(ctx, &ids, "SELECT id FROM messages WHERE "+where+" ORDER BY seq", args...); err != nil {
		return nil, fmt.Errorf("listing unread messages in %s: %w", conversationID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET status = 'read', pending = CASE WHEN pending = 'send' THEN pending ELSE 'read' END WHERE "+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("marking conversation %s as read: %w", conversationID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing read marks: %w", err)
	}
	return toIDs(ids), nil
}

// PendingMessages lists messages waiting for the given sync step.
func (s *SQLiteStore) PendingMessages(ctx context.Context, state string) ([]model.Message, error) {
	query, args, err := sq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"pending": state}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building pending query: %w", err)
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying pending messages: %w", err)
	}

	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ClearPendingMessages marks the given messages as synchronized.
func (s *SQLiteStore) ClearPendingMessages(ctx context.Context, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sq.Update("messages").
		Set("pending", PendingNone).
		Where(sq.Eq{"id": fromIDs(ids)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building pending clear: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing pending messages: %w", err)
	}
	return nil
}
