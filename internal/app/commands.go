package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/session"
	"github.com/nhle/ehr-terminal/internal/ui/authform"
	"github.com/nhle/ehr-terminal/internal/ui/home"
	"github.com/nhle/ehr-terminal/internal/ui/messages"
	"github.com/nhle/ehr-terminal/internal/ui/notifications"
	"github.com/nhle/ehr-terminal/internal/ui/recordform"
	"github.com/nhle/ehr-terminal/internal/ui/records"
)

// navigateMsg asks the router to go to a route.
type navigateMsg struct {
	route string
}

// authResultMsg is sent when a login or registration attempt settles.
type authResultMsg struct {
	ok bool
}

// resetResultMsg is sent when a password reset attempt settles.
type resetResultMsg struct {
	ok bool
}

// identityMsg carries the identity discovered for a token-only session.
type identityMsg struct {
	route string
	sess  model.Session
	err   error
}

// loggedOutMsg is sent once the session has been cleared.
type loggedOutMsg struct {
	reason string
}

// actionResultMsg reports the result of a user action such as marking
// a notification read. A non-empty notice is shown on success.
type actionResultMsg struct {
	notice string
	err    error
	reload bool
}

// contactsMsg carries the names of the people the user can message.
type contactsMsg struct {
	gen      int
	contacts map[model.ID]string
}

// unreadCountMsg carries the number of unread notifications to the UI.
type unreadCountMsg struct {
	count int
}

func navigate(route string) tea.Cmd {
	return func() tea.Msg { return navigateMsg{route: route} }
}

func (m *Model) login(msg authform.LoginSubmitMsg) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ok := s.Login(context.Background(), msg.Email, msg.Password, msg.Role)
		return authResultMsg{ok: ok}
	}
}

func (m *Model) register(msg authform.RegisterSubmitMsg) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		return authResultMsg{ok: s.Register(context.Background(), msg.Form)}
	}
}

func (m *Model) resetPassword(msg authform.ResetSubmitMsg) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		return resetResultMsg{ok: s.ResetPassword(context.Background(), msg.Email, msg.NewPassword)}
	}
}

// logout ends the session. expired skips the backend call and leaves
// the session store's expiry message in place.
func (m *Model) logout(expired bool) tea.Cmd {
	s := m.session
	p := m.poller
	log := m.log
	return func() tea.Msg {
		p.Stop()
		ctx := context.Background()
		var err error
		if expired {
			err = s.Expire(ctx)
		} else {
			err = s.Logout(ctx)
		}
		if err != nil {
			log.WithError(err).Error("clearing session")
		}
		return loggedOutMsg{reason: s.Err()}
	}
}

// discoverIdentity resolves a token-only session into a full one.
func (m *Model) discoverIdentity(route string) tea.Cmd {
	b := m.backend
	s := m.session
	return func() tea.Msg {
		ctx := context.Background()
		sess, err := b.Verify(ctx)
		if err == nil {
			err = s.Adopt(ctx, sess)
		}
		return identityMsg{route: route, sess: sess, err: err}
	}
}

// loadDashboard aggregates the dashboard for gen. The load is
// abandoned when ctx is cancelled by an unmount.
func (m *Model) loadDashboard(ctx context.Context, gen int, sess model.Session) tea.Cmd {
	agg := m.aggregator
	return func() tea.Msg {
		sum, err := agg.Load(ctx, sess)
		return home.LoadedMsg{Gen: gen, Summary: sum, Err: err}
	}
}

// Section loads are stamped with the mount they were started for.

func (m *Model) loadAppointments(role model.Role) tea.Cmd {
	b := m.backend
	gen := m.loadGen
	return func() tea.Msg {
		appts, err := b.RoleAppointments(context.Background(), role)
		return records.AppointmentsLoadedMsg{Gen: gen, Appointments: appts, Err: err}
	}
}

func (m *Model) loadRecords(role model.Role) tea.Cmd {
	b := m.backend
	gen := m.loadGen
	return func() tea.Msg {
		recs, err := b.MedicalRecords(context.Background(), role)
		return records.RecordsLoadedMsg{Gen: gen, Records: recs, Err: err}
	}
}

func (m *Model) cancelAppointment(a model.Appointment) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		a.Status = model.AppointmentCancelled
		if _, err := b.UpdateAppointment(context.Background(), a); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{notice: "Appointment cancelled.", reload: true}
	}
}

// saveAppointment books or updates an appointment. A booking is made
// in self's name.
func (m *Model) saveAppointment(self model.Session, msg recordform.AppointmentSubmitMsg) tea.Cmd {
	b := m.backend
	a := msg.Appointment
	return func() tea.Msg {
		ctx := context.Background()
		if !msg.New {
			if _, err := b.UpdateAppointment(ctx, a); err != nil {
				return actionResultMsg{err: err}
			}
			return actionResultMsg{notice: "Appointment updated.", reload: true}
		}
		if self.Role == model.RoleDoctor {
			a.DoctorID, a.DoctorName = self.UserID, self.DisplayName
		} else {
			a.PatientID, a.PatientName = self.UserID, self.DisplayName
		}
		if _, err := b.CreateAppointment(ctx, a); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{notice: "Appointment booked.", reload: true}
	}
}

// saveRecord adds or updates a medical record authored by self.
func (m *Model) saveRecord(self model.Session, msg recordform.RecordSubmitMsg) tea.Cmd {
	b := m.backend
	r := msg.Record
	return func() tea.Msg {
		ctx := context.Background()
		if !msg.New {
			if _, err := b.UpdateMedicalRecord(ctx, r); err != nil {
				return actionResultMsg{err: err}
			}
			return actionResultMsg{notice: "Record updated.", reload: true}
		}
		r.DoctorID = self.UserID
		if _, err := b.CreateMedicalRecord(ctx, r); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{notice: "Record added.", reload: true}
	}
}

func (m *Model) deleteRecord(id model.ID) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		if err := b.DeleteMedicalRecord(context.Background(), id); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{notice: "Record deleted.", reload: true}
	}
}

func (m *Model) loadNotifications(userID model.ID) tea.Cmd {
	r := m.reconciler
	log := m.log
	gen := m.loadGen
	return func() tea.Msg {
		unread, earlier, err := r.Notifications(context.Background(), userID)
		if err != nil {
			log.WithError(err).Error("loading notifications")
		}
		return notifications.LoadedMsg{Gen: gen, Unread: unread, Earlier: earlier}
	}
}

func (m *Model) loadConversations(self model.Session) tea.Cmd {
	r := m.reconciler
	log := m.log
	gen := m.loadGen
	return func() tea.Msg {
		convs, err := r.Conversations(context.Background(), self)
		if err != nil {
			log.WithError(err).Error("loading conversations")
		}
		return messages.LoadedMsg{Gen: gen, Conversations: convs}
	}
}

// loadContacts collects who self can message: a doctor's patients or
// the doctors on a patient's appointments.
func (m *Model) loadContacts(self model.Session) tea.Cmd {
	b := m.backend
	log := m.log
	gen := m.loadGen
	return func() tea.Msg {
		ctx := context.Background()
		contacts := make(map[model.ID]string)
		if self.Role == model.RoleDoctor {
			patients, err := b.Patients(ctx)
			if err != nil {
				log.WithError(err).Warn("loading contacts")
			}
			for _, p := range patients {
				contacts[p.ID] = p.Name
			}
			return contactsMsg{gen: gen, contacts: contacts}
		}
		appts, err := b.RoleAppointments(ctx, self.Role)
		if err != nil {
			log.WithError(err).Warn("loading contacts")
		}
		for _, a := range appts {
			if a.DoctorID != "" {
				contacts[a.DoctorID] = a.DoctorName
			}
		}
		return contactsMsg{gen: gen, contacts: contacts}
	}
}

func (m *Model) markRead(self model.Session, id model.ID) tea.Cmd {
	r := m.reconciler
	return func() tea.Msg {
		out, err := r.MarkRead(context.Background(), self.UserID, id)
		return syncOutcome(out.SyncErr, err, "")
	}
}

func (m *Model) markAllRead(self model.Session) tea.Cmd {
	r := m.reconciler
	return func() tea.Msg {
		out, err := r.MarkAllRead(context.Background(), self.UserID)
		notice := ""
		if err == nil && len(out.Changed) > 0 {
			notice = fmt.Sprintf("Marked %d notifications as read.", len(out.Changed))
		}
		return syncOutcome(out.SyncErr, err, notice)
	}
}

func (m *Model) openConversation(self model.Session, convID string) tea.Cmd {
	r := m.reconciler
	return func() tea.Msg {
		out, err := r.MarkConversationRead(context.Background(), self, convID)
		return syncOutcome(out.SyncErr, err, "")
	}
}

func (m *Model) sendMessage(self model.Session, msg messages.SendMsg) tea.Cmd {
	r := m.reconciler
	return func() tea.Msg {
		_, out, err := r.AppendMessage(context.Background(), self, msg.ConversationID, model.Message{Content: msg.Content})
		return syncOutcome(out.SyncErr, err, "")
	}
}

// syncOutcome turns a reconciler result into an action result. A
// change that applied locally but did not reach the backend is kept
// and retried by the poller, so it is reported as a notice.
func syncOutcome(syncErr, err error, notice string) actionResultMsg {
	if err != nil {
		return actionResultMsg{err: err, reload: true}
	}
	if syncErr != nil {
		if api.IsAuthError(syncErr) {
			return actionResultMsg{err: syncErr, reload: true}
		}
		return actionResultMsg{notice: "Saved offline; will sync when the server is reachable.", reload: true}
	}
	return actionResultMsg{notice: notice, reload: true}
}

func (m *Model) fetchUnreadCount(userID model.ID) tea.Cmd {
	r := m.reconciler
	return func() tea.Msg {
		unread, _, err := r.Notifications(context.Background(), userID)
		if err != nil {
			return unreadCountMsg{count: 0}
		}
		return unreadCountMsg{count: len(unread)}
	}
}

// effective reads the reconciled session state.
func (m *Model) effective() session.Effective {
	return m.session.Effective(context.Background())
}
