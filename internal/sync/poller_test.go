package sync_test

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/reconcile"
	"github.com/nhle/ehr-terminal/internal/store"
	appsync "github.com/nhle/ehr-terminal/internal/sync"
	"github.com/nhle/ehr-terminal/tests/testutil"
)

var patient = model.Session{UserID: "2", DisplayName: "Amy Pond", Role: model.RolePatient}

type fakeInbox struct {
	mu       gosync.Mutex
	ns       []model.Notification
	ms       []model.Message
	err      error
	msgCalls int
}

func (f *fakeInbox) Notifications(context.Context, model.Session) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Notification(nil), f.ns...), nil
}

func (f *fakeInbox) Messages(context.Context, model.Session) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgCalls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Message(nil), f.ms...), nil
}

func signedIn() (model.Session, bool) { return patient, true }

func newPoller(t *testing.T, inbox appsync.Inbox, session appsync.SessionFunc) (*appsync.Poller, store.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	log := testutil.NewLogger()
	p := appsync.New(st, inbox, reconcile.New(st, nil, log), session, time.Hour, log)
	t.Cleanup(p.Stop)
	return p, st
}

func receive(t *testing.T, cmd func() interface{}) interface{} {
	t.Helper()
	done := make(chan interface{}, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll result")
		return nil
	}
}

func TestPollerMergesIntoCache(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	inbox := &fakeInbox{
		ns: []model.Notification{
			{ID: "1", UserID: "2", Type: model.NotificationMessage, Content: "New message", Timestamp: now},
			{ID: "2", UserID: "2", Type: model.NotificationAppointment, Content: "Appointment", Timestamp: now, Read: true},
		},
		ms: []model.Message{{
			ID: "m1", ConversationID: "1:2", SenderID: "1", SenderRole: model.RoleDoctor,
			RecipientID: "2", Content: "hello", Timestamp: now, Status: model.MessageSent,
		}},
	}
	p, st := newPoller(t, inbox, signedIn)

	cmd := p.Start()
	require.NotNil(t, cmd)
	msg := receive(t, func() interface{} { return cmd() })

	res, ok := msg.(appsync.SyncResultMsg)
	require.True(t, ok, "got %T", msg)
	assert.NoError(t, res.Error)
	assert.Equal(t, 2, res.NewNotifications)
	assert.Equal(t, 1, res.NewMessages)

	ctx := context.Background()
	unread, err := st.CountUnreadNotifications(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	ms, err := st.GetMessages(ctx, store.MessageFilter{ConversationID: "1:2"})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "hello", ms[0].Content)

	for _, s := range p.GetStatuses() {
		assert.Equal(t, appsync.SyncIdle, s.State, "feed %s", s.Feed)
		assert.False(t, s.LastSync.IsZero())
	}

	// A second cycle sees nothing new.
	p.RefreshAll()
	msg = receive(t, func() interface{} { return p.WaitForNextResult()() })
	res = msg.(appsync.SyncResultMsg)
	assert.Zero(t, res.NewNotifications)
	assert.Zero(t, res.NewMessages)
}

func TestPollerLocalReadSurvivesStaleServerCopy(t *testing.T) {
	now := time.Now().UTC()
	inbox := &fakeInbox{ns: []model.Notification{
		{ID: "1", UserID: "2", Type: model.NotificationRecord, Content: "Lab results", Timestamp: now},
	}}
	p, st := newPoller(t, inbox, signedIn)
	ctx := context.Background()

	require.NoError(t, st.UpsertNotifications(ctx, inbox.ns))
	changed, err := st.MarkNotificationRead(ctx, "2", "1")
	require.NoError(t, err)
	require.True(t, changed)

	cmd := p.Start()
	receive(t, func() interface{} { return cmd() })

	ns, err := st.GetNotifications(ctx, store.NotificationFilter{UserID: "2"})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.True(t, ns[0].Read)
}

func TestPollerAuthError(t *testing.T) {
	inbox := &fakeInbox{err: &api.Error{Kind: api.KindAuth, Status: 401}}
	p, _ := newPoller(t, inbox, signedIn)

	cmd := p.Start()
	msg := receive(t, func() interface{} { return cmd() })

	authMsg, ok := msg.(appsync.AuthErrorMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, appsync.FeedNotifications, authMsg.Feed)
	assert.NotEmpty(t, authMsg.Message)

	inbox.mu.Lock()
	defer inbox.mu.Unlock()
	assert.Zero(t, inbox.msgCalls, "messages are not fetched after an auth failure")
}

func TestPollerReportsOtherErrors(t *testing.T) {
	inbox := &fakeInbox{err: errors.New("connection refused")}
	p, _ := newPoller(t, inbox, signedIn)

	cmd := p.Start()
	msg := receive(t, func() interface{} { return cmd() })

	res, ok := msg.(appsync.SyncResultMsg)
	require.True(t, ok, "got %T", msg)
	assert.Error(t, res.Error)
	assert.Nil(t, res.AuthError)

	statuses := p.GetStatuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, appsync.SyncIdle, statuses[0].State)
	assert.Equal(t, appsync.SyncError, statuses[1].State)
	assert.Equal(t, appsync.SyncError, statuses[2].State)
}

func TestPollerStartStop(t *testing.T) {
	p, _ := newPoller(t, &fakeInbox{}, func() (model.Session, bool) { return model.Session{}, false })

	require.NotNil(t, p.Start())
	assert.True(t, p.Running())
	assert.Nil(t, p.Start(), "second start is a no-op")

	p.Stop()
	assert.False(t, p.Running())
	p.Stop()

	require.NotNil(t, p.Start(), "a stopped poller can be restarted")
	assert.True(t, p.Running())
}

func TestPollerStopReleasesListener(t *testing.T) {
	p, _ := newPoller(t, &fakeInbox{}, func() (model.Session, bool) { return model.Session{}, false })

	cmd := p.Start()
	require.NotNil(t, cmd)
	p.Stop()

	msg := receive(t, func() interface{} { return cmd() })
	assert.Nil(t, msg, "a stopped run's listener returns instead of blocking")
	assert.Nil(t, p.WaitForNextResult(), "no listener is armed while stopped")
}
