package store

import (
	"context"
	"errors"

	"github.com/nhle/ehr-terminal/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// Durable slot keys. The names match the storage contract shared with
// the web client so both can read each other's state.
const (
	SlotToken   = "token"
	SlotUser    = "user"
	SlotWelcome = "welcomeMessage"
)

// Durable is key/value storage that survives restarts. Multi-key
// writes and deletes are all-or-nothing.
type Durable interface {
	GetSlot(ctx context.Context, key string) (string, bool, error)
	PutSlots(ctx context.Context, slots map[string]string) error
	DeleteSlots(ctx context.Context, keys ...string) error
}

// NotificationFilter controls which cached notifications are returned.
type NotificationFilter struct {
	UserID     model.ID
	UnreadOnly bool
	Type       *model.NotificationType
	Limit      int
}

// MessageFilter controls which cached messages are returned. Either
// ConversationID or a participant (UserID + Role) narrows the result.
type MessageFilter struct {
	ConversationID string
	UserID         model.ID
	Role           model.Role
	Query          string
}

// Pending sync states for cached messages.
const (
	PendingNone = ""
	PendingSend = "send"
	PendingRead = "read"
)

// Store is the local cache of server-origin notifications and messages
// together with the user's not yet acknowledged changes to them.
type Store interface {
	Durable

	// === Notifications ===

	UpsertNotifications(ctx context.Context, ns []model.Notification) error
	GetNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID model.ID) (int, error)

	// MarkNotificationRead flips one notification owned by userID and
	// reports whether it changed.
	MarkNotificationRead(ctx context.Context, userID, id model.ID) (bool, error)

	// MarkAllNotificationsRead flips every unread notification owned by
	// userID and returns the ids that changed.
	MarkAllNotificationsRead(ctx context.Context, userID model.ID) ([]model.ID, error)

	PendingNotificationReads(ctx context.Context, userID model.ID) ([]model.ID, error)
	ClearPendingNotificationReads(ctx context.Context, ids []model.ID) error

	// === Messages ===

	UpsertMessages(ctx context.Context, ms []model.Message) error
	GetMessages(ctx context.Context, f MessageFilter) ([]model.Message, error)

	// AppendMessage stores a locally composed message at the tail of
	// its conversation, marked as pending send.
	AppendMessage(ctx context.Context, m model.Message) error

	// AckMessage replaces the local id of a sent message with the id
	// assigned by the backend and clears its pending state.
	AckMessage(ctx context.Context, localID, serverID model.ID) error

	// MarkConversationRead flips every unread message in the
	// conversation that was not sent by the reader.
	MarkConversationRead(ctx context.Context, conversationID string, readerID model.ID, readerRole model.Role) ([]model.ID, error)

	PendingMessages(ctx context.Context, state string) ([]model.Message, error)
	ClearPendingMessages(ctx context.Context, ids []model.ID) error

	Close() error
}
