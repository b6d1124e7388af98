package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/store"
	"github.com/nhle/ehr-terminal/tests/testutil"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// stores runs fn against both Store implementations.
func stores(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, testutil.NewTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, store.NewMemoryStore()) })
}

func TestSlots(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		_, ok, err := s.GetSlot(ctx, store.SlotToken)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.PutSlots(ctx, map[string]string{
			store.SlotToken: "abc",
			store.SlotUser:  `{"id":1}`,
		}))
		require.NoError(t, s.PutSlots(ctx, map[string]string{store.SlotToken: "def"}))

		v, ok, err := s.GetSlot(ctx, store.SlotToken)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "def", v)

		require.NoError(t, s.DeleteSlots(ctx, store.SlotToken, store.SlotUser, store.SlotWelcome))
		require.NoError(t, s.DeleteSlots(ctx, store.SlotToken))

		_, ok, err = s.GetSlot(ctx, store.SlotUser)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func seedNotifications(t *testing.T, s store.Store) {
	t.Helper()
	require.NoError(t, s.UpsertNotifications(context.Background(), []model.Notification{
		{ID: "1", UserID: "u1", Type: model.NotificationAppointment, Content: "Appointment moved", Timestamp: base},
		{ID: "2", UserID: "u1", Type: model.NotificationMessage, Content: "New message", Timestamp: base.Add(time.Hour)},
		{ID: "3", UserID: "u2", Type: model.NotificationRecord, Content: "Lab result", Timestamp: base},
		{ID: "4", UserID: "u1", Type: "billing", Content: "Invoice", Timestamp: base.Add(-time.Hour), Read: true},
	}))
}

func TestNotifications_GetAndCount(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		seedNotifications(t, s)

		got, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, model.ID("2"), got[0].ID)
		assert.Equal(t, model.ID("1"), got[1].ID)
		assert.Equal(t, model.NotificationOther, got[2].Type)

		unread, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "u1", UnreadOnly: true})
		require.NoError(t, err)
		assert.Len(t, unread, 2)

		typ := model.NotificationMessage
		byType, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "u1", Type: &typ})
		require.NoError(t, err)
		require.Len(t, byType, 1)
		assert.Equal(t, "New message", byType[0].Content)

		n, err := s.CountUnreadNotifications(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestNotifications_MarkReadIsOwnerScopedAndMonotonic(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		seedNotifications(t, s)

		_, err := s.MarkNotificationRead(ctx, "u1", "3")
		assert.True(t, store.IsNotFound(err))

		changed, err := s.MarkNotificationRead(ctx, "u1", "1")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.MarkNotificationRead(ctx, "u1", "1")
		require.NoError(t, err)
		assert.False(t, changed)

		// A stale server copy does not resurrect the unread state.
		require.NoError(t, s.UpsertNotifications(ctx, []model.Notification{
			{ID: "1", UserID: "u1", Type: model.NotificationAppointment, Content: "Appointment moved", Timestamp: base},
		}))
		got, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "u1", UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.ID("2"), got[0].ID)

		pending, err := s.PendingNotificationReads(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []model.ID{"1"}, pending)

		other, err := s.CountUnreadNotifications(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 1, other)
	})
}

func TestNotifications_MarkAllAndClearPending(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		seedNotifications(t, s)

		ids, err := s.MarkAllNotificationsRead(ctx, "u1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []model.ID{"1", "2"}, ids)

		ids, err = s.MarkAllNotificationsRead(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, s.ClearPendingNotificationReads(ctx, []model.ID{"1", "2"}))
		pending, err := s.PendingNotificationReads(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, pending)

		n, err := s.CountUnreadNotifications(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func msg(id model.ID, from model.ID, role model.Role, to model.ID, content string, at time.Time) model.Message {
	doctor, patient := from, to
	if role == model.RolePatient {
		doctor, patient = to, from
	}
	return model.Message{
		ID:             id,
		ConversationID: model.ConversationID(doctor, patient),
		SenderID:       from,
		SenderRole:     role,
		RecipientID:    to,
		Content:        content,
		Timestamp:      at,
		Status:         model.MessageSent,
	}
}

func TestMessages_UpsertAppendAndAck(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		conv := model.ConversationID("d1", "p1")

		require.NoError(t, s.UpsertMessages(ctx, []model.Message{
			msg("10", "d1", model.RoleDoctor, "p1", "How are you feeling?", base),
			msg("11", "p1", model.RolePatient, "d1", "Better, thanks", base.Add(time.Minute)),
		}))

		local := msg("local-1", "d1", model.RoleDoctor, "p1", "Good to hear", base.Add(2*time.Minute))
		local.Attachments = []model.Attachment{{ID: "a1", Kind: model.AttachmentDocument, Name: "plan.pdf", Size: "1 MB"}}
		require.NoError(t, s.AppendMessage(ctx, local))

		pending, err := s.PendingMessages(ctx, store.PendingSend)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, model.ID("local-1"), pending[0].ID)

		require.NoError(t, s.AckMessage(ctx, "local-1", "12"))
		assert.True(t, store.IsNotFound(s.AckMessage(ctx, "local-1", "13")))

		got, err := s.GetMessages(ctx, store.MessageFilter{ConversationID: conv})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []model.ID{"10", "11", "12"}, []model.ID{got[0].ID, got[1].ID, got[2].ID})
		require.Len(t, got[2].Attachments, 1)
		assert.Equal(t, "plan.pdf", got[2].Attachments[0].Name)

		pending, err = s.PendingMessages(ctx, store.PendingSend)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestMessages_AckAfterServerCopyMerged(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		conv := model.ConversationID("d1", "p1")

		require.NoError(t, s.AppendMessage(ctx, msg("local-1", "d1", model.RoleDoctor, "p1", "See you Monday", base)))
		// A poll brings the delivered copy in before the send returns.
		require.NoError(t, s.UpsertMessages(ctx, []model.Message{
			msg("42", "d1", model.RoleDoctor, "p1", "See you Monday", base),
		}))

		require.NoError(t, s.AckMessage(ctx, "local-1", "42"))

		got, err := s.GetMessages(ctx, store.MessageFilter{ConversationID: conv})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.ID("42"), got[0].ID)

		pending, err := s.PendingMessages(ctx, store.PendingSend)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestMessages_ParticipantFilterAndQuery(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertMessages(ctx, []model.Message{
			msg("1", "d1", model.RoleDoctor, "p1", "Take the blue pill", base),
			msg("2", "p2", model.RolePatient, "d1", "Schedule a visit", base),
			msg("3", "d2", model.RoleDoctor, "p1", "Lab results are in", base),
			msg("4", "d9", model.RoleDoctor, "p9", "unrelated", base),
		}))

		got, err := s.GetMessages(ctx, store.MessageFilter{UserID: "d1", Role: model.RoleDoctor})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.GetMessages(ctx, store.MessageFilter{UserID: "p1", Role: model.RolePatient, Query: "lab"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.ID("3"), got[0].ID)
	})
}

func TestMessages_ConversationReadIsMonotonic(t *testing.T) {
	stores(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		conv := model.ConversationID("d1", "p1")
		require.NoError(t, s.UpsertMessages(ctx, []model.Message{
			msg("1", "d1", model.RoleDoctor, "p1", "Hello", base),
			msg("2", "p1", model.RolePatient, "d1", "Hi", base.Add(time.Minute)),
		}))

		ids, err := s.MarkConversationRead(ctx, conv, "p1", model.RolePatient)
		require.NoError(t, err)
		assert.Equal(t, []model.ID{"1"}, ids)

		ids, err = s.MarkConversationRead(ctx, conv, "p1", model.RolePatient)
		require.NoError(t, err)
		assert.Empty(t, ids)

		// The server has not seen the read yet.
		require.NoError(t, s.UpsertMessages(ctx, []model.Message{
			msg("1", "d1", model.RoleDoctor, "p1", "Hello", base),
		}))

		got, err := s.GetMessages(ctx, store.MessageFilter{ConversationID: conv})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].IsRead())
		assert.False(t, got[1].IsRead())

		pending, err := s.PendingMessages(ctx, store.PendingRead)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.NoError(t, s.ClearPendingMessages(ctx, []model.ID{pending[0].ID}))

		pending, err = s.PendingMessages(ctx, store.PendingRead)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
