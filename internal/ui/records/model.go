package records

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
	"github.com/nhle/ehr-terminal/internal/ui/detail"
)

// Kind selects what the view lists.
type Kind int

const (
	KindAppointments Kind = iota
	KindRecords
)

// AppointmentsLoadedMsg carries the role's appointments. Gen is the
// mount the load was started for.
type AppointmentsLoadedMsg struct {
	Gen          int
	Appointments []model.Appointment
	Err          error
}

// RecordsLoadedMsg carries the role's medical records.
type RecordsLoadedMsg struct {
	Gen     int
	Records []model.MedicalRecord
	Err     error
}

// CancelAppointmentMsg asks the app to cancel an appointment.
type CancelAppointmentMsg struct {
	Appointment model.Appointment
}

// DeleteRecordMsg asks the app to delete a medical record.
type DeleteRecordMsg struct {
	ID model.ID
}

// NewEntryMsg asks the app to open a blank form for kind.
type NewEntryMsg struct {
	Kind Kind
}

// EditAppointmentMsg asks the app to open the form for an appointment.
type EditAppointmentMsg struct {
	Appointment model.Appointment
}

// EditRecordMsg asks the app to open the form for a medical record.
type EditRecordMsg struct {
	Record model.MedicalRecord
}

type appointmentItem struct {
	appt model.Appointment
	role model.Role
}

func (i appointmentItem) FilterValue() string {
	return i.appt.PatientName + " " + i.appt.DoctorName + " " + i.appt.Type
}

type recordItem struct {
	rec model.MedicalRecord
}

func (i recordItem) FilterValue() string { return i.rec.Title + " " + i.rec.Description }

type delegate struct{}

func (d delegate) Height() int                             { return 2 }
func (d delegate) Spacing() int                            { return 0 }
func (d delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	var title, desc string
	switch it := item.(type) {
	case appointmentItem:
		a := it.appt
		who := a.PatientName
		if it.role == model.RolePatient {
			who = a.DoctorName
		}
		title = fmt.Sprintf("%s  %s", who, theme.AppointmentStatusStyle(a.Status).Render(a.Status))
		when := a.Time
		if a.Date != nil {
			when = strings.TrimSpace(a.Date.Local().Format("Jan 2, 2006") + " " + a.Time)
		}
		desc = strings.Join(nonEmpty(a.Type, when, a.Notes), " | ")
	case recordItem:
		r := it.rec
		title = fmt.Sprintf("%s  %s", r.Title, theme.DimmedStyle.Render(r.Type))
		date := ""
		if r.Date != nil {
			date = r.Date.Local().Format("Jan 2, 2006")
		}
		desc = strings.Join(nonEmpty(date, r.Description), " | ")
	default:
		return
	}

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}
	fmt.Fprint(w, style.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		theme.DimmedStyle.MaxWidth(m.Width()-4).Render(desc),
	)))
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// Model lists appointments or medical records.
type Model struct {
	list    list.Model
	detail  detail.Model
	viewing bool
	keys    *keys.KeyMap
	kind    Kind
	role    model.Role
	loading bool
	err     error
	width   int
	height  int
}

// New creates a new records view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, delegate{}, width, height-2)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	l.SetFilteringEnabled(true)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		detail: detail.New(k, width, height),
		keys:   k,
		width:  width,
		height: height,
	}
}

// Show switches the view to kind for role and marks it loading.
func (m *Model) Show(kind Kind, role model.Role) {
	m.kind = kind
	m.role = role
	m.loading = true
	m.viewing = false
	m.err = nil
	m.list.ResetFilter()
	m.list.SetItems(nil)
	if kind == KindRecords {
		m.list.Title = "Medical Records"
	} else {
		m.list.Title = "Appointments"
	}
}

// Kind returns what the view currently lists.
func (m Model) Kind() Kind { return m.kind }

// Viewing reports whether the detail pane is open.
func (m Model) Viewing() bool { return m.viewing }

// Filtering reports whether the list's filter input has focus.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// Update handles messages for the records view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case AppointmentsLoadedMsg:
		if m.kind != KindAppointments {
			return m, nil
		}
		m.loading = false
		m.err = msg.Err
		items := make([]list.Item, len(msg.Appointments))
		for i, a := range msg.Appointments {
			items[i] = appointmentItem{appt: a, role: m.role}
		}
		return m, m.list.SetItems(items)

	case RecordsLoadedMsg:
		if m.kind != KindRecords {
			return m, nil
		}
		m.loading = false
		m.err = msg.Err
		items := make([]list.Item, len(msg.Records))
		for i, r := range msg.Records {
			items[i] = recordItem{rec: r}
		}
		return m, m.list.SetItems(items)

	case detail.BackMsg:
		m.viewing = false
		return m, nil

	case tea.KeyMsg:
		if m.viewing {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
		if m.Filtering() {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Select):
			switch it := m.list.SelectedItem().(type) {
			case appointmentItem:
				m.detail.SetEntry(detail.AppointmentEntry(it.appt, m.role))
			case recordItem:
				m.detail.SetEntry(detail.RecordEntry(it.rec))
			default:
				return m, nil
			}
			m.viewing = true
			return m, nil

		case key.Matches(msg, m.keys.Cancel) && m.kind == KindAppointments:
			it, ok := m.list.SelectedItem().(appointmentItem)
			if !ok || it.appt.Status == model.AppointmentCancelled || it.appt.Status == model.AppointmentCompleted {
				return m, nil
			}
			appt := it.appt
			return m, func() tea.Msg { return CancelAppointmentMsg{Appointment: appt} }

		case key.Matches(msg, m.keys.New) && (m.kind == KindAppointments || m.role == model.RoleDoctor):
			kind := m.kind
			return m, func() tea.Msg { return NewEntryMsg{Kind: kind} }

		case key.Matches(msg, m.keys.Edit) && m.kind == KindAppointments:
			it, ok := m.list.SelectedItem().(appointmentItem)
			if !ok || it.appt.Status == model.AppointmentCancelled || it.appt.Status == model.AppointmentCompleted {
				return m, nil
			}
			appt := it.appt
			return m, func() tea.Msg { return EditAppointmentMsg{Appointment: appt} }

		case key.Matches(msg, m.keys.Edit) && m.kind == KindRecords && m.role == model.RoleDoctor:
			it, ok := m.list.SelectedItem().(recordItem)
			if !ok {
				return m, nil
			}
			rec := it.rec
			return m, func() tea.Msg { return EditRecordMsg{Record: rec} }

		case key.Matches(msg, m.keys.Delete) && m.kind == KindRecords && m.role == model.RoleDoctor:
			it, ok := m.list.SelectedItem().(recordItem)
			if !ok {
				return m, nil
			}
			id := it.rec.ID
			return m, func() tea.Msg { return DeleteRecordMsg{ID: id} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the records view.
func (m Model) View() string {
	empty := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return empty.Render("Loading...")
	case m.err != nil && len(m.list.Items()) == 0:
		return empty.Render("Could not load " + strings.ToLower(m.list.Title) + ".\nPress r to try again.")
	case len(m.list.Items()) == 0:
		return empty.Render("Nothing here yet.")
	case m.viewing:
		return m.detail.View()
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.detail.SetSize(width, height)
}
