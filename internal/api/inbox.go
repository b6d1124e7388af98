package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/ehr-terminal/internal/model"
)

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, self model.Session) ([]model.Notification, error) {
	const op = "notifications"
	var raw json.RawMessage
	if err := c.get(ctx, op, "/api/notifications", &raw); err != nil {
		return nil, err
	}
	var ws []wireNotification
	if err := decodeList(raw, "notifications", &ws); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	out := make([]model.Notification, 0, len(ws))
	for _, w := range ws {
		n := w.toModel()
		if n.UserID == "" {
			n.UserID = self.UserID
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead acknowledges one notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id model.ID) error {
	return c.post(ctx, "mark notification read", fmt.Sprintf("/api/notifications/%s/read", id), nil, nil)
}

// MarkNotificationsRead acknowledges the given notifications in one
// call. Notifications the client has not seen are left unread.
func (c *Client) MarkNotificationsRead(ctx context.Context, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return c.post(ctx, "mark notifications read", "/api/notifications/read-all", struct {
		IDs []model.ID `json:"ids"`
	}{IDs: ids}, nil)
}

// Messages lists every message the caller sent or received.
func (c *Client) Messages(ctx context.Context, self model.Session) ([]model.Message, error) {
	const op = "messages"
	var raw json.RawMessage
	if err := c.get(ctx, op, "/api/messages", &raw); err != nil {
		return nil, err
	}
	var ws []wireMessage
	if err := decodeList(raw, "messages", &ws); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	out := make([]model.Message, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toModel(self))
	}
	return out, nil
}

type sendBody struct {
	ConversationID string             `json:"conversation_id"`
	ReceiverID     model.ID           `json:"receiver_id"`
	Content        string             `json:"content"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
}

// SendMessage delivers a composed message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, self model.Session, m model.Message) (model.Message, error) {
	var w wireMessage
	err := c.post(ctx, "send message", "/api/messages", sendBody{
		ConversationID: m.ConversationID,
		ReceiverID:     m.RecipientID,
		Content:        m.Content,
		Attachments:    m.Attachments,
	}, &w)
	if err != nil {
		return model.Message{}, err
	}
	if w.ID == "" {
		return m, nil
	}
	sent := w.toModel(self)
	if sent.ConversationID == "" {
		sent.ConversationID = m.ConversationID
	}
	return sent, nil
}

// MarkMessagesRead acknowledges messages the caller has seen.
func (c *Client) MarkMessagesRead(ctx context.Context, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return c.post(ctx, "mark messages read", "/api/messages/read", struct {
		IDs []model.ID `json:"ids"`
	}{IDs: ids}, nil)
}
