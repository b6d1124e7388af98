package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/store"
)

// Feed names one stage of a poll cycle.
type Feed string

const (
	FeedOutbox        Feed = "outbox"
	FeedNotifications Feed = "notifications"
	FeedMessages      Feed = "messages"
)

var feeds = []Feed{FeedOutbox, FeedNotifications, FeedMessages}

// SyncState represents the current state of a feed.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the sync state for a single feed.
type SyncStatus struct {
	Feed     Feed
	State    SyncState
	LastSync time.Time
	Error    error
}

// SyncResultMsg is a tea.Msg sent when a poll cycle completes.
type SyncResultMsg struct {
	Error     error
	AuthError *AuthErrorMsg

	// NewNotifications and NewMessages count rows the cache did not
	// hold before this cycle.
	NewNotifications int
	NewMessages      int
}

// AuthErrorMsg is a tea.Msg sent when the backend rejects the token.
type AuthErrorMsg struct {
	Feed    Feed
	Message string
}

// Inbox fetches the server copy of the user's notifications and
// messages. *api.Client satisfies it.
type Inbox interface {
	Notifications(ctx context.Context, self model.Session) ([]model.Notification, error)
	Messages(ctx context.Context, self model.Session) ([]model.Message, error)
}

// Merger folds server state into the local cache and retries local
// changes. *reconcile.Reconciler satisfies it.
type Merger interface {
	Merge(ctx context.Context, ns []model.Notification, ms []model.Message) error
	FlushPending(ctx context.Context, self model.Session) error
}

// SessionFunc returns the signed-in identity, if any.
type SessionFunc func() (model.Session, bool)

// fetchTimeout is the maximum time allowed for one poll cycle.
const fetchTimeout = 30 * time.Second

const defaultInterval = 60 * time.Second

// Poller keeps the local notification and message cache in step with
// the backend while a user is signed in.
type Poller struct {
	store    store.Store
	inbox    Inbox
	merger   Merger
	session  SessionFunc
	interval time.Duration
	log      logrus.FieldLogger

	statuses  map[Feed]*SyncStatus
	resultCh  chan SyncResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a Poller. A non-positive interval means every 60 seconds.
func New(
	s store.Store,
	inbox Inbox,
	merger Merger,
	session SessionFunc,
	interval time.Duration,
	log logrus.FieldLogger,
) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	statuses := make(map[Feed]*SyncStatus, len(feeds))
	for _, f := range feeds {
		statuses[f] = &SyncStatus{Feed: f, State: SyncIdle}
	}
	return &Poller{
		store:     s,
		inbox:     inbox,
		merger:    merger,
		session:   session,
		interval:  interval,
		log:       log,
		statuses:  statuses,
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine and returns a tea.Cmd that
// delivers the first result. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	// Results of an earlier run belong to an earlier session.
	for drained := false; !drained; {
		select {
		case <-p.resultCh:
		default:
			drained = true
		}
	}

	go p.loop(stop)

	return p.waitForResult()
}

// Stop halts polling. The poller can be started again afterwards.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Running reports whether the polling goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// RefreshAll triggers an immediate poll cycle.
func (p *Poller) RefreshAll() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already queued.
	}
	return nil
}

// GetStatuses returns the current sync status of every feed, in cycle
// order.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(feeds))
	for _, f := range feeds {
		statuses = append(statuses, *p.statuses[f])
	}
	return statuses
}

func (p *Poller) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(stop)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.cycle(stop)
		case <-p.triggerCh:
			p.cycle(stop)
		}
	}
}

// cycle pushes pending local changes, then pulls notifications and
// messages into the cache, and reports one SyncResultMsg.
func (p *Poller) cycle(stop <-chan struct{}) {
	self, ok := p.session()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	log := p.log.WithField("user_id", self.UserID)
	var (
		result SyncResultMsg
		errs   []error
	)

	p.setStatus(FeedOutbox, SyncRunning, nil)
	if err := p.merger.FlushPending(ctx, self); err != nil {
		p.setStatus(FeedOutbox, SyncError, err)
		if p.reportAuth(FeedOutbox, err, &result) {
			return
		}
		log.WithError(err).Warn("flushing pending changes")
		errs = append(errs, err)
	} else {
		p.setStatus(FeedOutbox, SyncIdle, nil)
	}

	p.setStatus(FeedNotifications, SyncRunning, nil)
	ns, err := p.inbox.Notifications(ctx, self)
	if err != nil {
		p.setStatus(FeedNotifications, SyncError, err)
		if p.reportAuth(FeedNotifications, err, &result) {
			return
		}
		log.WithError(err).Warn("fetching notifications")
		errs = append(errs, err)
	} else {
		result.NewNotifications = p.countNewNotifications(ctx, self, ns)
		if err := p.merger.Merge(ctx, ns, nil); err != nil {
			p.setStatus(FeedNotifications, SyncError, err)
			errs = append(errs, err)
		} else {
			p.setStatus(FeedNotifications, SyncIdle, nil)
		}
	}

	p.setStatus(FeedMessages, SyncRunning, nil)
	ms, err := p.inbox.Messages(ctx, self)
	if err != nil {
		p.setStatus(FeedMessages, SyncError, err)
		if p.reportAuth(FeedMessages, err, &result) {
			return
		}
		log.WithError(err).Warn("fetching messages")
		errs = append(errs, err)
	} else {
		result.NewMessages = p.countNewMessages(ctx, self, ms)
		if err := p.merger.Merge(ctx, nil, ms); err != nil {
			p.setStatus(FeedMessages, SyncError, err)
			errs = append(errs, err)
		} else {
			p.setStatus(FeedMessages, SyncIdle, nil)
		}
	}

	result.Error = errors.Join(errs...)
	p.sendResult(result)
}

// reportAuth emits an auth failure result and reports whether err was
// one. The rest of the cycle is skipped since every call would fail the
// same way.
func (p *Poller) reportAuth(feed Feed, err error, result *SyncResultMsg) bool {
	if !api.IsAuthError(err) {
		return false
	}
	result.Error = err
	result.AuthError = &AuthErrorMsg{
		Feed:    feed,
		Message: "Your session has expired. Please sign in again.",
	}
	p.sendResult(*result)
	return true
}

func (p *Poller) countNewNotifications(ctx context.Context, self model.Session, ns []model.Notification) int {
	if len(ns) == 0 {
		return 0
	}
	existing, err := p.store.GetNotifications(ctx, store.NotificationFilter{UserID: self.UserID})
	if err != nil {
		return 0
	}
	known := make(map[model.ID]bool, len(existing))
	for _, n := range existing {
		known[n.ID] = true
	}
	count := 0
	for _, n := range ns {
		if !known[n.ID] {
			count++
		}
	}
	return count
}

func (p *Poller) countNewMessages(ctx context.Context, self model.Session, ms []model.Message) int {
	if len(ms) == 0 {
		return 0
	}
	existing, err := p.store.GetMessages(ctx, store.MessageFilter{UserID: self.UserID, Role: self.Role})
	if err != nil {
		return 0
	}
	known := make(map[model.ID]bool, len(existing))
	for _, m := range existing {
		known[m.ID] = true
	}
	count := 0
	for _, m := range ms {
		if !known[m.ID] {
			count++
		}
	}
	return count
}

// setStatus updates the sync status for a feed.
func (p *Poller) setStatus(feed Feed, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[feed]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult listens for one result of the current run. The
// listener returns nil once the run is stopped, so none outlives it.
func (p *Poller) waitForResult() tea.Cmd {
	p.mu.Lock()
	stop, running := p.stopCh, p.running
	p.mu.Unlock()
	if !running {
		return nil
	}

	return func() tea.Msg {
		select {
		case <-stop:
			return nil
		case result := <-p.resultCh:
			if result.AuthError != nil {
				return *result.AuthError
			}
			return result
		}
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// This should be called after processing a SyncResultMsg to continue
// listening for future results. It returns nil when the poller is
// stopped.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
