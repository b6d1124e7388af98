package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/dashboard"
	"github.com/nhle/ehr-terminal/internal/guard"
	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/reconcile"
	"github.com/nhle/ehr-terminal/internal/session"
	appsync "github.com/nhle/ehr-terminal/internal/sync"
	"github.com/nhle/ehr-terminal/internal/ui"
	"github.com/nhle/ehr-terminal/internal/ui/authform"
	"github.com/nhle/ehr-terminal/internal/ui/command"
	settingsview "github.com/nhle/ehr-terminal/internal/ui/config"
	helpview "github.com/nhle/ehr-terminal/internal/ui/help"
	"github.com/nhle/ehr-terminal/internal/ui/home"
	"github.com/nhle/ehr-terminal/internal/ui/messages"
	"github.com/nhle/ehr-terminal/internal/ui/notifications"
	"github.com/nhle/ehr-terminal/internal/ui/recordform"
	"github.com/nhle/ehr-terminal/internal/ui/records"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewAuth ViewState = iota
	ViewHome
	ViewAppointments
	ViewRecords
	ViewMessages
	ViewNotifications
	ViewHelp
	ViewCommand
	ViewSettings
	ViewForm
)

// Dashboard sections, as the last route segment.
const (
	SectionHome          = ""
	SectionAppointments  = "appointments"
	SectionRecords       = "records"
	SectionMessages      = "messages"
	SectionNotifications = "notifications"
)

// Backend is the part of the REST client the views call directly.
// *api.Client satisfies it.
type Backend interface {
	Verify(ctx context.Context) (model.Session, error)
	RoleAppointments(ctx context.Context, role model.Role) ([]model.Appointment, error)
	Patients(ctx context.Context) ([]model.Patient, error)
	CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	MedicalRecords(ctx context.Context, role model.Role) ([]model.MedicalRecord, error)
	CreateMedicalRecord(ctx context.Context, r model.MedicalRecord) (model.MedicalRecord, error)
	UpdateMedicalRecord(ctx context.Context, r model.MedicalRecord) (model.MedicalRecord, error)
	DeleteMedicalRecord(ctx context.Context, id model.ID) error
}

// Deps are the services the application model drives.
type Deps struct {
	Session    *session.Store
	Backend    Backend
	Reconciler *reconcile.Reconciler
	Aggregator *dashboard.Aggregator
	Poller     *appsync.Poller
	Log        logrus.FieldLogger

	// Config and ConfigPath back the settings view.
	Config     *model.AppConfig
	ConfigPath string
}

// Model is the root Bubble Tea model. It owns routing: every route
// change passes through the access guard before a view mounts.
type Model struct {
	session    *session.Store
	backend    Backend
	reconciler *reconcile.Reconciler
	aggregator *dashboard.Aggregator
	poller     *appsync.Poller
	log        logrus.FieldLogger

	route        string
	startRoute   string
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	authForm      authform.Model
	homeView      home.Model
	recordsView   records.Model
	recordForm    recordform.Model
	messagesView  messages.Model
	notifications notifications.Model
	helpView      helpview.Model
	commandView   command.Model
	settingsView  settingsview.Model

	cancelLoad context.CancelFunc
	// loadGen identifies the current mount. Section results started
	// under an older mount are dropped.
	loadGen     int
	ready       bool
	unreadCount int
	errMsg      string
	notice      string
}

// New creates the root model. startRoute is the first route to
// navigate to; "/" sends the user through the login view.
func New(d Deps, startRoute string) Model {
	k := keys.DefaultKeyMap()
	if startRoute == "" {
		startRoute = guard.Root
	}
	cfg := model.DefaultAppConfig()
	if d.Config != nil {
		cfg = d.Config
	}
	return Model{
		session:       d.Session,
		backend:       d.Backend,
		reconciler:    d.Reconciler,
		aggregator:    d.Aggregator,
		poller:        d.Poller,
		log:           d.Log,
		startRoute:    startRoute,
		keys:          k,
		authForm:      authform.New(80, 24),
		homeView:      home.New(80, 24),
		recordsView:   records.New(k, 80, 24),
		recordForm:    recordform.New(80, 24),
		messagesView:  messages.New(k, 80, 24),
		notifications: notifications.New(k, 80, 24),
		helpView:      helpview.New(k, 80, 24),
		commandView:   command.New(80, 24),
		settingsView:  settingsview.New(d.ConfigPath, *cfg, 80, 24),
	}
}

// Route returns the route currently rendered.
func (m Model) Route() string { return m.route }

// CurrentView returns the active view.
func (m Model) CurrentView() ViewState { return m.currentView }

// Init navigates to the start route.
func (m Model) Init() tea.Cmd {
	return navigate(m.startRoute)
}

// self returns the signed-in identity, if known.
func (m Model) self() (model.Session, bool) {
	return m.session.Current()
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.authForm.SetSize(w, h)
		m.homeView.SetSize(w, h)
		m.recordsView.SetSize(w, h)
		m.recordForm.SetSize(w, h)
		m.messagesView.SetSize(w, h)
		m.notifications.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.settingsView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case navigateMsg:
		return m.navigate(msg.route)

	case authform.NavigateMsg:
		return m.navigate(msg.Route)

	case authform.LoginSubmitMsg:
		m.errMsg = ""
		return m, m.login(msg)

	case authform.RegisterSubmitMsg:
		m.errMsg = ""
		return m, m.register(msg)

	case authform.ResetSubmitMsg:
		m.errMsg = ""
		return m, m.resetPassword(msg)

	case authResultMsg:
		if !msg.ok {
			m.errMsg = m.session.Err()
			cmd := m.authForm.Retry()
			return m, cmd
		}
		sess, _ := m.self()
		welcome := m.session.TakeWelcome(context.Background())
		m2, cmd := m.navigate(sess.Role.DashboardPath())
		mm := m2.(Model)
		mm.notice = welcome
		return mm, cmd

	case resetResultMsg:
		if !msg.ok {
			m.errMsg = m.session.Err()
			cmd := m.authForm.Retry()
			return m, cmd
		}
		m2, cmd := m.navigate(guard.Login)
		mm := m2.(Model)
		mm.notice = "Password reset successful. Please sign in with your new password."
		return mm, cmd

	case identityMsg:
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("resolving session identity")
			if api.IsAuthError(msg.err) {
				return m, m.logout(true)
			}
			m.homeView.Unmount()
			m.errMsg = api.UserMessage(msg.err)
			return m, nil
		}
		return m.navigate(msg.route)

	case loggedOutMsg:
		m.unreadCount = 0
		m2, cmd := m.navigate(guard.Login)
		mm := m2.(Model)
		mm.errMsg = msg.reason
		return mm, cmd

	case home.LoadedMsg:
		if errors.Is(msg.Err, dashboard.ErrDiscarded) {
			return m, nil
		}
		var cmd tea.Cmd
		m.homeView, cmd = m.homeView.Update(msg)
		return m, cmd

	case records.AppointmentsLoadedMsg:
		if msg.Gen != m.loadGen {
			return m, nil
		}
		if msg.Err != nil {
			m.errMsg = api.UserMessage(msg.Err)
		}
		var cmd tea.Cmd
		m.recordsView, cmd = m.recordsView.Update(msg)
		return m, cmd

	case records.RecordsLoadedMsg:
		if msg.Gen != m.loadGen {
			return m, nil
		}
		if msg.Err != nil {
			m.errMsg = api.UserMessage(msg.Err)
		}
		var cmd tea.Cmd
		m.recordsView, cmd = m.recordsView.Update(msg)
		return m, cmd

	case records.CancelAppointmentMsg:
		return m, m.cancelAppointment(msg.Appointment)

	case records.DeleteRecordMsg:
		return m, m.deleteRecord(msg.ID)

	case records.NewEntryMsg:
		sess, ok := m.self()
		if !ok {
			return m, nil
		}
		var cmd tea.Cmd
		switch {
		case msg.Kind == records.KindAppointments:
			cmd = m.recordForm.StartAppointment(sess.Role)
		case sess.Role == model.RoleDoctor:
			cmd = m.recordForm.StartRecord()
		default:
			return m, nil
		}
		m.openForm()
		return m, cmd

	case records.EditAppointmentMsg:
		sess, _ := m.self()
		cmd := m.recordForm.StartEditAppointment(sess.Role, msg.Appointment)
		m.openForm()
		return m, cmd

	case records.EditRecordMsg:
		cmd := m.recordForm.StartEditRecord(msg.Record)
		m.openForm()
		return m, cmd

	case recordform.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case recordform.AppointmentSubmitMsg:
		m.currentView = m.previousView
		if self, ok := m.self(); ok {
			return m, m.saveAppointment(self, msg)
		}
		return m, nil

	case recordform.RecordSubmitMsg:
		m.currentView = m.previousView
		if self, ok := m.self(); ok {
			return m, m.saveRecord(self, msg)
		}
		return m, nil

	case notifications.LoadedMsg:
		if msg.Gen != m.loadGen {
			return m, nil
		}
		m.unreadCount = len(msg.Unread)
		var cmd tea.Cmd
		m.notifications, cmd = m.notifications.Update(msg)
		return m, cmd

	case notifications.MarkReadMsg:
		if self, ok := m.self(); ok {
			return m, m.markRead(self, msg.ID)
		}
		return m, nil

	case notifications.MarkAllReadMsg:
		if self, ok := m.self(); ok {
			return m, m.markAllRead(self)
		}
		return m, nil

	case messages.LoadedMsg:
		if msg.Gen != m.loadGen {
			return m, nil
		}
		var cmd tea.Cmd
		m.messagesView, cmd = m.messagesView.Update(msg)
		return m, cmd

	case messages.OpenMsg:
		if self, ok := m.self(); ok {
			return m, m.openConversation(self, msg.ConversationID)
		}
		return m, nil

	case messages.SendMsg:
		if self, ok := m.self(); ok {
			return m, m.sendMessage(self, msg)
		}
		return m, nil

	case contactsMsg:
		if msg.gen != m.loadGen {
			return m, nil
		}
		m.messagesView.SetContacts(msg.contacts)
		m.recordForm.SetContacts(msg.contacts)
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			if api.IsAuthError(msg.err) {
				return m, m.logout(true)
			}
			m.errMsg = api.UserMessage(msg.err)
		} else {
			m.errMsg = ""
			if msg.notice != "" {
				m.notice = msg.notice
			}
		}
		if msg.reload {
			cmd := m.reloadActive()
			return m, cmd
		}
		return m, nil

	case unreadCountMsg:
		m.unreadCount = msg.count
		return m, nil

	case appsync.SyncResultMsg:
		cmds := []tea.Cmd{m.poller.WaitForNextResult()}
		if self, ok := m.self(); ok {
			cmds = append(cmds, m.fetchUnreadCount(self.UserID))
			switch m.currentView {
			case ViewNotifications, ViewMessages:
				cmds = append(cmds, m.reloadActive())
			}
			if n := msg.NewNotifications; n > 0 {
				m.notice = fmt.Sprintf("%d new notifications", n)
			}
		}
		return m, tea.Batch(cmds...)

	case appsync.AuthErrorMsg:
		return m, m.logout(true)

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case settingsview.DoneMsg:
		m.currentView = m.previousView
		if msg.Saved {
			m.errMsg = ""
			m.notice = "Settings saved. Restart ehr to apply them."
		}
		return m, nil

	case tea.KeyMsg:
		if mm, cmd, handled := m.handleGlobalKey(msg); handled {
			return mm, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// capturing reports whether the active view is consuming raw text, in
// which case single-letter global keys are passed through.
func (m Model) capturing() bool {
	switch m.currentView {
	case ViewAuth, ViewCommand, ViewSettings, ViewForm:
		return true
	case ViewMessages:
		return m.messagesView.Capturing()
	case ViewAppointments, ViewRecords:
		return m.recordsView.Filtering()
	}
	return false
}

func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.poller.Stop()
		return m, tea.Quit, true
	case "esc":
		if m.currentView == ViewHelp || m.currentView == ViewCommand {
			m.currentView = m.previousView
			return m, nil, true
		}
	}

	if key.Matches(msg, m.keys.Settings) && m.currentView != ViewSettings {
		cmd := m.openSettings()
		return m, cmd, true
	}

	if m.capturing() {
		return m, nil, false
	}

	switch msg.String() {
	case "q":
		m.poller.Stop()
		return m, tea.Quit, true

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		sess, _ := m.self()
		m.helpView.SetRole(sess.Role)
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.commandView.Focus()
		return m, cmd, true

	case "r":
		m.poller.RefreshAll()
		cmd := m.reloadActive()
		return m, cmd, true
	}

	sess, ok := m.self()
	if !ok {
		return m, nil, false
	}
	sections := map[string]string{
		"1": SectionHome,
		"2": SectionAppointments,
		"3": SectionRecords,
		"4": SectionMessages,
		"5": SectionNotifications,
	}
	if section, ok := sections[msg.String()]; ok {
		return m, navigate(guard.Dashboard(sess.Role, section)), true
	}
	return m, nil, false
}

// navigate runs route through the guard and mounts the resulting view.
func (m Model) navigate(route string) (tea.Model, tea.Cmd) {
	d := guard.Check(route, m.effective())
	if d.Outcome != guard.Render {
		m.log.WithFields(logrus.Fields{
			"route":   route,
			"outcome": d.Outcome.String(),
			"target":  d.Target,
		}).Debug("route redirected")
		d = guard.Check(d.Target, m.effective())
	}

	m.unmount()
	m.errMsg = ""
	m.notice = ""
	m.route = d.Target

	if guard.IsPublic(d.Target) {
		m.currentView = ViewAuth
		mode := authform.ModeLogin
		switch d.Target {
		case guard.Register:
			mode = authform.ModeRegister
		case guard.ForgotPassword:
			mode = authform.ModeForgot
		}
		m.session.ClearErr()
		cmd := m.authForm.Start(mode)
		return m, cmd
	}

	if d.Provisional {
		m.currentView = ViewHome
		_, tick := m.homeView.Mount(model.Session{})
		return m, tea.Batch(tick, m.discoverIdentity(d.Target))
	}

	sess, _ := m.self()
	m.messagesView.SetSelf(sess)
	cmd := m.mount(guard.Section(d.Target), sess)
	return m, tea.Batch(cmd, m.startPolling())
}

// mount activates the view of a dashboard section and starts loading
// its data.
func (m *Model) mount(section string, sess model.Session) tea.Cmd {
	switch section {
	case SectionAppointments:
		m.currentView = ViewAppointments
		m.recordsView.Show(records.KindAppointments, sess.Role)
		return tea.Batch(m.loadAppointments(sess.Role), m.loadContacts(sess))
	case SectionRecords:
		m.currentView = ViewRecords
		m.recordsView.Show(records.KindRecords, sess.Role)
		return tea.Batch(m.loadRecords(sess.Role), m.loadContacts(sess))
	case SectionMessages:
		m.currentView = ViewMessages
		return tea.Batch(m.loadConversations(sess), m.loadContacts(sess))
	case SectionNotifications:
		m.currentView = ViewNotifications
		return m.loadNotifications(sess.UserID)
	default:
		m.currentView = ViewHome
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelLoad = cancel
		gen, tick := m.homeView.Mount(sess)
		return tea.Batch(tick, m.loadDashboard(ctx, gen, sess), m.fetchUnreadCount(sess.UserID))
	}
}

// unmount abandons every in-flight load of the current mount.
func (m *Model) unmount() {
	m.loadGen++
	if m.cancelLoad != nil {
		m.cancelLoad()
		m.cancelLoad = nil
	}
	m.homeView.Unmount()
}

// reloadActive re-reads the data of the active view.
func (m *Model) reloadActive() tea.Cmd {
	sess, ok := m.self()
	if !ok {
		return nil
	}
	switch m.currentView {
	case ViewHome:
		m.unmount()
		return m.mount(SectionHome, sess)
	case ViewAppointments:
		return m.loadAppointments(sess.Role)
	case ViewRecords:
		return m.loadRecords(sess.Role)
	case ViewMessages:
		return m.loadConversations(sess)
	case ViewNotifications:
		return m.loadNotifications(sess.UserID)
	}
	return nil
}

func (m Model) startPolling() tea.Cmd {
	if m.poller == nil || m.poller.Running() {
		return nil
	}
	return m.poller.Start()
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewAuth:
		m.authForm, cmd = m.authForm.Update(msg)
	case ViewHome:
		m.homeView, cmd = m.homeView.Update(msg)
	case ViewAppointments, ViewRecords:
		m.recordsView, cmd = m.recordsView.Update(msg)
	case ViewMessages:
		m.messagesView, cmd = m.messagesView.Update(msg)
	case ViewNotifications:
		m.notifications, cmd = m.notifications.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewForm:
		m.recordForm, cmd = m.recordForm.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Arogya Mithra"
	if m.unreadCount > 0 {
		title = fmt.Sprintf("Arogya Mithra [%d new]", m.unreadCount)
	}
	header := m.layout.RenderHeader(title, m.headerRight())
	banner := m.layout.RenderBanner(m.errMsg, m.notice)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, banner, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewAuth:
		return m.authForm.View()
	case ViewHome:
		return m.homeView.View()
	case ViewAppointments, ViewRecords:
		return m.recordsView.View()
	case ViewMessages:
		return m.messagesView.View()
	case ViewNotifications:
		return m.notifications.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewForm:
		return m.recordForm.View()
	default:
		return ""
	}
}

func (m Model) headerRight() string {
	sess, ok := m.self()
	if !ok {
		return m.route
	}
	name := sess.DisplayName
	if name == "" {
		name = sess.Email
	}
	return fmt.Sprintf("%s (%s) | %s", name, sess.Role.Title(), m.syncStatus())
}

// syncStatus returns a short string describing the combined sync state.
func (m Model) syncStatus() string {
	if m.poller == nil || !m.poller.Running() {
		return "offline"
	}

	running := 0
	var failing []string
	for _, s := range m.poller.GetStatuses() {
		switch s.State {
		case appsync.SyncRunning:
			running++
		case appsync.SyncError:
			failing = append(failing, string(s.Feed))
		}
	}

	if running > 0 {
		return "syncing"
	}
	if len(failing) > 0 {
		return fmt.Sprintf("unreachable: %s", strings.Join(failing, ", "))
	}
	return "synced"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewAuth:
		return "tab next field | enter submit | ctrl+s settings | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewSettings, ViewForm:
		return "tab next field | enter save | esc back"
	case ViewAppointments:
		return "j/k move | enter details | n book | e edit | C cancel | / filter | r refresh | 1-5 sections"
	case ViewRecords:
		if sess, _ := m.self(); sess.Role == model.RoleDoctor {
			return "j/k move | enter details | n new | e edit | d delete | / filter | r refresh | 1-5 sections"
		}
		return "j/k move | enter details | / filter | r refresh | 1-5 sections | ? help"
	case ViewMessages:
		return "enter open | c compose | / search | esc back | 1-5 sections"
	case ViewNotifications:
		return "x mark read | X mark all read | r refresh | 1-5 sections"
	default:
		return "q quit | ? help | : command | r refresh | 1-5 sections"
	}
}

// executeCommand handles a command from the command palette.
func (m Model) executeCommand(cmd command.CommandMsg) (tea.Model, tea.Cmd) {
	switch cmd.Name {
	case "refresh", "sync":
		m.poller.RefreshAll()
		cmd := m.reloadActive()
		return m, cmd
	case "logout", "signout":
		return m, m.logout(false)
	case "goto", "go":
		if cmd.Arg == "" {
			m.errMsg = "goto needs a route, e.g. goto /login"
			return m, nil
		}
		return m.navigate(cmd.Arg)
	case "settings", "config":
		cmd := m.openSettings()
		return m, cmd
	case "help":
		sess, _ := m.self()
		m.helpView.SetRole(sess.Role)
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil
	case "quit", "q":
		m.poller.Stop()
		return m, tea.Quit
	default:
		m.errMsg = fmt.Sprintf("Unknown command %q", cmd.Name)
		return m, nil
	}
}

// openForm shows the appointment/record form over the current view.
func (m *Model) openForm() {
	m.previousView = m.currentView
	m.currentView = ViewForm
}

// openSettings shows the settings form over the current view.
func (m *Model) openSettings() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewSettings
	return m.settingsView.Start()
}
