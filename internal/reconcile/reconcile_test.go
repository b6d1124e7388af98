package reconcile

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/store"
	"github.com/nhle/ehr-terminal/tests/testutil"
)

type fakeSyncer struct {
	err      error
	readIDs  []model.ID
	batchIDs []model.ID
	sent     []model.Message
	nextID   int
	msgReads []model.ID
}

func (f *fakeSyncer) MarkNotificationRead(_ context.Context, id model.ID) error {
	if f.err != nil {
		return f.err
	}
	f.readIDs = append(f.readIDs, id)
	return nil
}

func (f *fakeSyncer) MarkNotificationsRead(_ context.Context, ids []model.ID) error {
	if f.err != nil {
		return f.err
	}
	f.batchIDs = append(f.batchIDs, ids...)
	return nil
}

func (f *fakeSyncer) SendMessage(_ context.Context, _ model.Session, m model.Message) (model.Message, error) {
	if f.err != nil {
		return model.Message{}, f.err
	}
	f.nextID++
	m.ID = model.ID("srv-" + string(rune('0'+f.nextID)))
	f.sent = append(f.sent, m)
	return m, nil
}

func (f *fakeSyncer) MarkMessagesRead(_ context.Context, ids []model.ID) error {
	if f.err != nil {
		return f.err
	}
	f.msgReads = append(f.msgReads, ids...)
	return nil
}

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, st store.Store) {
	t.Helper()
	require.NoError(t, st.UpsertNotifications(context.Background(), []model.Notification{
		{ID: "1", UserID: "alice", Type: model.NotificationAppointment, Content: "a", Timestamp: base},
		{ID: "2", UserID: "alice", Type: model.NotificationMessage, Content: "b", Timestamp: base.Add(time.Minute)},
		{ID: "3", UserID: "bob", Type: model.NotificationRecord, Content: "c", Timestamp: base},
		{ID: "4", UserID: "bob", Type: model.NotificationMessage, Content: "d", Timestamp: base.Add(time.Minute)},
		{ID: "5", UserID: "alice", Type: model.NotificationRecord, Content: "e", Timestamp: base.Add(2 * time.Minute), Read: true},
	}))
}

func readFlags(t *testing.T, st store.Store) map[model.ID]bool {
	t.Helper()
	flags := make(map[model.ID]bool)
	for _, user := range []model.ID{"alice", "bob"} {
		ns, err := st.GetNotifications(context.Background(), store.NotificationFilter{UserID: user})
		require.NoError(t, err)
		for _, n := range ns {
			flags[n.ID] = n.Read
		}
	}
	return flags
}

func TestReadFlagsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	users := []model.ID{"alice", "bob"}
	ids := []model.ID{"1", "2", "3", "4", "5"}

	for run := 0; run < 20; run++ {
		st := store.NewMemoryStore()
		seed(t, st)
		r := New(st, nil, testutil.NewLogger())
		prev := readFlags(t, st)

		for step := 0; step < 15; step++ {
			user := users[rng.Intn(len(users))]
			if rng.Intn(3) == 0 {
				_, err := r.MarkAllRead(ctx, user)
				require.NoError(t, err)
			} else {
				_, _ = r.MarkRead(ctx, user, ids[rng.Intn(len(ids))])
			}
			// A stale server copy arrives now and then.
			if rng.Intn(4) == 0 {
				require.NoError(t, r.Merge(ctx, []model.Notification{
					{ID: "1", UserID: "alice", Type: model.NotificationAppointment, Content: "a", Timestamp: base},
				}, nil))
			}

			cur := readFlags(t, st)
			for id, was := range prev {
				if was {
					assert.True(t, cur[id], "notification %s reverted to unread", id)
				}
			}
			prev = cur
		}
	}
}

func TestMarkAllReadIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	seed(t, st)
	r := New(st, nil, testutil.NewLogger())

	out, err := r.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.ElementsMatch(t, []model.ID{"1", "2"}, out.Changed)

	flags := readFlags(t, st)
	assert.False(t, flags["3"])
	assert.False(t, flags["4"])
}

func TestMarkAllReadSyncsOnlyChangedIDs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st)
	syncer := &fakeSyncer{}
	r := New(st, syncer, testutil.NewLogger())

	out, err := r.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.Synced)
	assert.ElementsMatch(t, []model.ID{"1", "2"}, syncer.batchIDs)

	pending, err := st.PendingNotificationReads(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Nothing left to flip, so nothing is sent.
	syncer.batchIDs = nil
	out, err = r.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Empty(t, syncer.batchIDs)
}

func TestMarkReadSyncOutcome(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st)
	syncer := &fakeSyncer{err: &api.Error{Kind: api.KindNetwork}}
	r := New(st, syncer, testutil.NewLogger())

	out, err := r.MarkRead(ctx, "alice", "1")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.False(t, out.Synced)
	assert.Error(t, out.SyncErr)

	// No rollback: the mark stays and is pending.
	assert.True(t, readFlags(t, st)["1"])
	pending, err := st.PendingNotificationReads(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"1"}, pending)

	syncer.err = nil
	require.NoError(t, r.FlushPending(ctx, model.Session{UserID: "alice", Role: model.RolePatient}))
	assert.Equal(t, []model.ID{"1"}, syncer.readIDs)
	pending, err = st.PendingNotificationReads(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)

	out, err = r.MarkRead(ctx, "alice", "1")
	require.NoError(t, err)
	assert.False(t, out.Applied)

	_, err = r.MarkRead(ctx, "alice", "3")
	assert.True(t, store.IsNotFound(err))
}

func TestFlushPendingStopsOnAuthError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st)
	r := New(st, nil, testutil.NewLogger())
	_, err := r.MarkAllRead(ctx, "alice")
	require.NoError(t, err)

	r.sync = &fakeSyncer{err: &api.Error{Kind: api.KindAuth, Status: 401}}
	err = r.FlushPending(ctx, model.Session{UserID: "alice", Role: model.RolePatient})
	assert.True(t, api.IsAuthError(err))
}

func TestAppendMessage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	doctor := model.Session{UserID: "d1", Role: model.RoleDoctor}
	conv := model.ConversationID("d1", "p1")

	later := base.Add(time.Hour)
	require.NoError(t, st.UpsertMessages(ctx, []model.Message{
		{ID: "1", ConversationID: conv, SenderID: "p1", SenderRole: model.RolePatient, RecipientID: "d1", Content: "Hi", Timestamp: later},
	}))

	syncer := &fakeSyncer{}
	r := New(st, syncer, testutil.NewLogger())
	r.now = func() time.Time { return base }

	_, _, err := r.AppendMessage(ctx, doctor, conv, model.Message{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	sent, out, err := r.AppendMessage(ctx, doctor, conv, model.Message{Content: " Hello there "})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.True(t, out.Synced)
	assert.Equal(t, "Hello there", sent.Content)
	assert.Equal(t, model.ID("p1"), sent.RecipientID)
	assert.False(t, sent.Timestamp.Before(later))

	withAttachment, _, err := r.AppendMessage(ctx, doctor, conv, model.Message{
		Attachments: []model.Attachment{{Kind: model.AttachmentImage, Name: "x.jpg"}},
	})
	require.NoError(t, err)
	require.Len(t, withAttachment.Attachments, 1)
	assert.NotEmpty(t, withAttachment.Attachments[0].ID)

	convs, err := r.Conversations(ctx, doctor)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 3)
	last, ok := convs[0].LastMessage()
	require.True(t, ok)
	assert.Equal(t, withAttachment.ID, last.ID)
	assert.Equal(t, model.ID("1"), convs[0].Messages[0].ID)
}

func TestAppendMessageKeepsUnsentMessage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	patient := model.Session{UserID: "p1", Role: model.RolePatient}
	syncer := &fakeSyncer{err: errors.New("offline")}
	r := New(st, syncer, testutil.NewLogger())

	m, out, err := r.AppendMessage(ctx, patient, "d1:p1", model.Message{Content: "Refill please"})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.False(t, out.Synced)
	assert.Equal(t, model.ID("d1"), m.RecipientID)

	syncer.err = nil
	require.NoError(t, r.FlushPending(ctx, patient))
	require.Len(t, syncer.sent, 1)

	unsent, err := st.PendingMessages(ctx, store.PendingSend)
	require.NoError(t, err)
	assert.Empty(t, unsent)
}

func TestMarkConversationRead(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	conv := model.ConversationID("d1", "p1")
	require.NoError(t, st.UpsertMessages(ctx, []model.Message{
		{ID: "1", ConversationID: conv, SenderID: "d1", SenderRole: model.RoleDoctor, RecipientID: "p1", Content: "a", Timestamp: base},
		{ID: "2", ConversationID: conv, SenderID: "p1", SenderRole: model.RolePatient, RecipientID: "d1", Content: "b", Timestamp: base},
	}))
	syncer := &fakeSyncer{}
	r := New(st, syncer, testutil.NewLogger())

	out, err := r.MarkConversationRead(ctx, model.Session{UserID: "p1", Role: model.RolePatient}, conv)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"1"}, out.Changed)
	assert.True(t, out.Synced)
	assert.Equal(t, []model.ID{"1"}, syncer.msgReads)
}

func TestNotificationsSplit(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st)
	r := New(st, nil, testutil.NewLogger())

	unread, earlier, err := r.Notifications(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, unread, 2)
	require.Len(t, earlier, 1)
	assert.Equal(t, model.ID("5"), earlier[0].ID)
}
