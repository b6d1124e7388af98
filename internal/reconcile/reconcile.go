package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/store"
)

// ErrEmptyMessage is returned when a message has neither text nor
// attachments.
var ErrEmptyMessage = errors.New("message has no content")

// Syncer pushes local changes to the backend. *api.Client satisfies it.
type Syncer interface {
	MarkNotificationRead(ctx context.Context, id model.ID) error
	MarkNotificationsRead(ctx context.Context, ids []model.ID) error
	SendMessage(ctx context.Context, self model.Session, m model.Message) (model.Message, error)
	MarkMessagesRead(ctx context.Context, ids []model.ID) error
}

// Outcome reports what a local command did and whether the backend has
// acknowledged it. A local change is never rolled back when the sync
// fails; it stays pending and is retried by FlushPending.
type Outcome struct {
	// Applied is set when the local projection changed.
	Applied bool

	// Changed lists the records the command touched.
	Changed []model.ID

	// Synced is set once the backend acknowledged the change.
	Synced bool

	// SyncErr is the backend failure, if the sync was attempted and
	// failed.
	SyncErr error
}

// Reconciler applies user actions to the local cache immediately and
// keeps the cache eventually consistent with the backend.
type Reconciler struct {
	store store.Store
	sync  Syncer
	log   logrus.FieldLogger
	now   func() time.Time
}

// New returns a Reconciler over st. A nil sync keeps every change
// local and pending.
func New(st store.Store, sync Syncer, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{store: st, sync: sync, log: log, now: time.Now}
}

// MarkRead marks one notification owned by userID as read.
func (r *Reconciler) MarkRead(ctx context.Context, userID, id model.ID) (Outcome, error) {
	changed, err := r.store.MarkNotificationRead(ctx, userID, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("marking notification %s read: %w", id, err)
	}
	if !changed {
		return Outcome{}, nil
	}

	out := Outcome{Applied: true, Changed: []model.ID{id}}
	if r.sync == nil {
		return out, nil
	}
	if err := r.sync.MarkNotificationRead(ctx, id); err != nil {
		r.log.WithError(err).WithField("notification", id).Warn("read mark not synced")
		out.SyncErr = err
		return out, nil
	}
	if err := r.store.ClearPendingNotificationReads(ctx, out.Changed); err != nil {
		r.log.WithError(err).Warn("clearing pending read mark")
	}
	out.Synced = true
	return out, nil
}

// MarkAllRead marks every unread notification owned by userID.
func (r *Reconciler) MarkAllRead(ctx context.Context, userID model.ID) (Outcome, error) {
	ids, err := r.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("marking notifications of %s read: %w", userID, err)
	}
	if len(ids) == 0 {
		return Outcome{}, nil
	}

	out := Outcome{Applied: true, Changed: ids}
	if r.sync == nil {
		return out, nil
	}
	if err := r.sync.MarkNotificationsRead(ctx, ids); err != nil {
		r.log.WithError(err).WithField("count", len(ids)).Warn("read marks not synced")
		out.SyncErr = err
		return out, nil
	}
	if err := r.store.ClearPendingNotificationReads(ctx, ids); err != nil {
		r.log.WithError(err).Warn("clearing pending read marks")
	}
	out.Synced = true
	return out, nil
}

// AppendMessage adds a message composed by self to the tail of the
// conversation and sends it. The returned message carries the id the
// backend assigned once synced.
func (r *Reconciler) AppendMessage(
	ctx context.Context,
	self model.Session,
	conversationID string,
	m model.Message,
) (model.Message, Outcome, error) {
	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" && len(m.Attachments) == 0 {
		return model.Message{}, Outcome{}, ErrEmptyMessage
	}

	existing, err := r.store.GetMessages(ctx, store.MessageFilter{ConversationID: conversationID})
	if err != nil {
		return model.Message{}, Outcome{}, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}

	if m.ID == "" {
		m.ID = model.ID(uuid.New().String())
	}
	m.ConversationID = conversationID
	m.SenderID = self.UserID
	m.SenderRole = self.Role
	m.Status = model.MessageSent
	if m.RecipientID == "" {
		m.RecipientID = counterpartOf(conversationID, self.Role)
	}
	m.Timestamp = r.now()
	if n := len(existing); n > 0 && m.Timestamp.Before(existing[n-1].Timestamp) {
		m.Timestamp = existing[n-1].Timestamp
	}
	for i := range m.Attachments {
		if m.Attachments[i].ID == "" {
			m.Attachments[i].ID = uuid.New().String()
		}
	}

	if err := r.store.AppendMessage(ctx, m); err != nil {
		return model.Message{}, Outcome{}, fmt.Errorf("appending message: %w", err)
	}

	out := Outcome{Applied: true, Changed: []model.ID{m.ID}}
	if r.sync == nil {
		return m, out, nil
	}

	sent, err := r.sync.SendMessage(ctx, self, m)
	if err != nil {
		r.log.WithError(err).WithField("conversation", conversationID).Warn("message not sent")
		out.SyncErr = err
		return m, out, nil
	}
	if err := r.store.AckMessage(ctx, m.ID, sent.ID); err != nil {
		r.log.WithError(err).WithField("message", m.ID).Warn("acknowledging sent message")
		return m, out, nil
	}
	if sent.ID != "" {
		m.ID = sent.ID
		out.Changed = []model.ID{sent.ID}
	}
	out.Synced = true
	return m, out, nil
}

// counterpartOf reads the other participant from a "doctor:patient"
// conversation id.
func counterpartOf(conversationID string, self model.Role) model.ID {
	doctor, patient, ok := strings.Cut(conversationID, ":")
	if !ok {
		return ""
	}
	if self == model.RoleDoctor {
		return model.ID(patient)
	}
	return model.ID(doctor)
}

// MarkConversationRead marks the counterpart's messages in a
// conversation as read by self.
func (r *Reconciler) MarkConversationRead(ctx context.Context, self model.Session, conversationID string) (Outcome, error) {
	ids, err := r.store.MarkConversationRead(ctx, conversationID, self.UserID, self.Role)
	if err != nil {
		return Outcome{}, fmt.Errorf("marking conversation %s read: %w", conversationID, err)
	}
	if len(ids) == 0 {
		return Outcome{}, nil
	}

	out := Outcome{Applied: true, Changed: ids}
	if r.sync == nil {
		return out, nil
	}
	if err := r.sync.MarkMessagesRead(ctx, ids); err != nil {
		r.log.WithError(err).WithField("conversation", conversationID).Warn("message reads not synced")
		out.SyncErr = err
		return out, nil
	}
	if err := r.store.ClearPendingMessages(ctx, ids); err != nil {
		r.log.WithError(err).Warn("clearing pending message reads")
	}
	out.Synced = true
	return out, nil
}

// Merge folds server state into the cache. Read flags only move from
// unread to read, so a stale server copy never undoes a local mark.
func (r *Reconciler) Merge(ctx context.Context, ns []model.Notification, ms []model.Message) error {
	if err := r.store.UpsertNotifications(ctx, ns); err != nil {
		return fmt.Errorf("merging notifications: %w", err)
	}
	if err := r.store.UpsertMessages(ctx, ms); err != nil {
		return fmt.Errorf("merging messages: %w", err)
	}
	return nil
}

// FlushPending retries every change of self that the backend has not
// acknowledged. It stops at the first auth error.
func (r *Reconciler) FlushPending(ctx context.Context, self model.Session) error {
	if r.sync == nil {
		return nil
	}

	var errs []error

	ids, err := r.store.PendingNotificationReads(ctx, self.UserID)
	if err != nil {
		return fmt.Errorf("listing pending reads: %w", err)
	}
	var acked []model.ID
	for _, id := range ids {
		if err := r.sync.MarkNotificationRead(ctx, id); err != nil {
			if api.IsAuthError(err) {
				return err
			}
			if api.IsNotFound(err) {
				acked = append(acked, id)
				continue
			}
			errs = append(errs, err)
			continue
		}
		acked = append(acked, id)
	}
	if err := r.store.ClearPendingNotificationReads(ctx, acked); err != nil {
		errs = append(errs, err)
	}

	unsent, err := r.store.PendingMessages(ctx, store.PendingSend)
	if err != nil {
		return fmt.Errorf("listing unsent messages: %w", err)
	}
	for _, m := range unsent {
		if !m.SentBy(self.UserID, self.Role) {
			continue
		}
		sent, err := r.sync.SendMessage(ctx, self, m)
		if err != nil {
			if api.IsAuthError(err) {
				return err
			}
			errs = append(errs, err)
			continue
		}
		if err := r.store.AckMessage(ctx, m.ID, sent.ID); err != nil {
			errs = append(errs, err)
		}
	}

	unread, err := r.store.PendingMessages(ctx, store.PendingRead)
	if err != nil {
		return fmt.Errorf("listing pending message reads: %w", err)
	}
	var readIDs []model.ID
	for _, m := range unread {
		if m.RecipientID == self.UserID && m.SenderRole == self.Role.Counterpart() {
			readIDs = append(readIDs, m.ID)
		}
	}
	if len(readIDs) > 0 {
		if err := r.sync.MarkMessagesRead(ctx, readIDs); err != nil {
			if api.IsAuthError(err) {
				return err
			}
			errs = append(errs, err)
		} else if err := r.store.ClearPendingMessages(ctx, readIDs); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Notifications returns the cached notifications of userID split into
// unread and earlier, newest first.
func (r *Reconciler) Notifications(ctx context.Context, userID model.ID) (unread, earlier []model.Notification, err error) {
	all, err := r.store.GetNotifications(ctx, store.NotificationFilter{UserID: userID})
	if err != nil {
		return nil, nil, fmt.Errorf("loading notifications: %w", err)
	}
	for _, n := range all {
		if n.Read {
			earlier = append(earlier, n)
		} else {
			unread = append(unread, n)
		}
	}
	return unread, earlier, nil
}

// Conversations returns the cached conversations of self, most recent
// first.
func (r *Reconciler) Conversations(ctx context.Context, self model.Session) ([]model.Conversation, error) {
	ms, err := r.store.GetMessages(ctx, store.MessageFilter{UserID: self.UserID, Role: self.Role})
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	return BuildConversations(self, ms), nil
}
