package home

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/dashboard"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// LoadedMsg carries a settled dashboard load. Gen is the mount
// generation the load was started for.
type LoadedMsg struct {
	Gen     int
	Summary model.DashboardSummary
	Err     error
}

// Model is the dashboard home view.
type Model struct {
	viewport viewport.Model
	spinner  spinner.Model
	session  model.Session
	summary  *model.DashboardSummary
	gen      int
	loading  bool
	width    int
	height   int
}

// New creates a new dashboard home model.
func New(width, height int) Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorTeal)

	return Model{
		viewport: vp,
		spinner:  sp,
		width:    width,
		height:   height,
	}
}

// Mount starts a new load for sess and returns its generation. Any
// result for an earlier generation is dropped when it arrives.
func (m *Model) Mount(sess model.Session) (int, tea.Cmd) {
	m.gen++
	m.session = sess
	m.summary = nil
	m.loading = true
	return m.gen, m.spinner.Tick
}

// Unmount invalidates the in-flight load, if any.
func (m *Model) Unmount() {
	m.gen++
	m.loading = false
}

// Generation returns the current mount generation.
func (m Model) Generation() int { return m.gen }

// Loading reports whether the view waits for a load to settle.
func (m Model) Loading() bool { return m.loading }

// Summary returns the rendered summary, if one arrived.
func (m Model) Summary() (model.DashboardSummary, bool) {
	if m.summary == nil {
		return model.DashboardSummary{}, false
	}
	return *m.summary, true
}

// Update handles messages for the home view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.loading = false
		if msg.Err != nil {
			return m, nil
		}
		sum := msg.Summary
		m.summary = &sum
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the home view.
func (m Model) View() string {
	if m.loading {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(m.spinner.View() + " Loading dashboard...")
	}
	if m.summary == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Dashboard unavailable.\nPress r to try again.")
	}
	return m.viewport.View()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
	if m.summary != nil {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m Model) renderContent() string {
	s := m.summary
	var b strings.Builder

	name := m.session.DisplayName
	if name == "" {
		name = m.session.Email
	}
	b.WriteString(theme.TitleStyle.Render(fmt.Sprintf("Welcome, %s", name)))
	b.WriteString("\n")

	if len(s.Fallbacks) > 0 {
		b.WriteString(theme.WarningStyle.Render(
			"Some data could not be loaded; showing sample values for: " + strings.Join(s.Fallbacks, ", ")))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderStats())
	b.WriteString("\n\n")
	b.WriteString(m.renderAppointments())

	switch s.Role {
	case model.RoleDoctor:
		b.WriteString("\n\n")
		b.WriteString(m.renderPatients())
	case model.RolePatient:
		b.WriteString("\n\n")
		b.WriteString(m.renderPrescriptions())
		b.WriteString("\n\n")
		b.WriteString(m.renderMetrics())
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderActivity())
	return b.String()
}

func card(label string, value int) string {
	return theme.PanelStyle.
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", value)),
			theme.DimmedStyle.Render(label),
		))
}

func (m Model) renderStats() string {
	st := m.summary.Stats
	var cards []string
	if m.summary.Role == model.RoleDoctor {
		cards = []string{
			card("Total patients", st.TotalPatients),
			card("Today's appointments", st.TodayAppointments),
			card("Pending reports", st.PendingReports),
			card("Unread messages", st.UnreadMessages),
		}
	} else {
		cards = []string{
			card("Upcoming appointments", st.UpcomingAppointments),
			card("Active prescriptions", st.ActivePrescriptions),
			card("Unread messages", st.UnreadMessages),
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m Model) renderAppointments() string {
	lines := []string{theme.SectionStyle.Render("Appointments")}
	if len(m.summary.Appointments) == 0 {
		lines = append(lines, theme.DimmedStyle.Render("  No upcoming appointments."))
	}
	for _, a := range m.summary.Appointments {
		who := a.PatientName
		if m.summary.Role == model.RolePatient {
			who = a.DoctorName
		}
		when := a.Time
		if when == "" && a.Date != nil {
			when = a.Date.Local().Format("Jan 2, 3:04 PM")
		}
		lines = append(lines, fmt.Sprintf("  %-20s %-20s %-14s %s",
			who, when, a.Type, theme.AppointmentStatusStyle(a.Status).Render(a.Status)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPatients() string {
	lines := []string{theme.SectionStyle.Render("Patients")}
	if len(m.summary.Patients) == 0 {
		lines = append(lines, theme.DimmedStyle.Render("  No patients yet."))
	}
	for _, p := range m.summary.Patients {
		detail := p.Gender
		if p.Age > 0 {
			detail = fmt.Sprintf("%d %s", p.Age, p.Gender)
		}
		lines = append(lines, fmt.Sprintf("  %-24s %-12s %s", p.Name, detail, theme.DimmedStyle.Render(p.Email)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPrescriptions() string {
	lines := []string{theme.SectionStyle.Render("Prescriptions")}
	if len(m.summary.Prescriptions) == 0 {
		lines = append(lines, theme.DimmedStyle.Render("  No active prescriptions."))
	}
	for _, rx := range m.summary.Prescriptions {
		lines = append(lines, fmt.Sprintf("  %-20s %-10s %-16s %s",
			rx.Medication, rx.Dosage, rx.Frequency,
			theme.DimmedStyle.Render(fmt.Sprintf("%d refills", rx.RefillsRemaining))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderMetrics() string {
	hm := m.summary.HealthMetrics
	lines := []string{theme.SectionStyle.Render("Health metrics")}
	series := []struct {
		label string
		data  []model.Reading
	}{
		{"Blood pressure", hm.BloodPressure},
		{"Blood glucose", hm.BloodGlucose},
		{"Weight", hm.Weight},
	}
	for _, s := range series {
		r, ok := model.Latest(s.data)
		if !ok {
			lines = append(lines, fmt.Sprintf("  %-16s %s", s.label, theme.DimmedStyle.Render("no readings")))
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-16s %-10s %s", s.label, r.Value,
			theme.DimmedStyle.Render(r.Date.Local().Format(dashboardDate))))
	}
	if len(hm.MedicationHistory) > 0 {
		lines = append(lines, fmt.Sprintf("  %-16s %s", "Medication", adherenceLine(hm.MedicationHistory)))
	}
	return strings.Join(lines, "\n")
}

const dashboardDate = "Jan 2, 2006"

func (m Model) renderActivity() string {
	lines := []string{theme.SectionStyle.Render("Recent activity")}
	if len(m.summary.Stats.RecentActivity) == 0 {
		lines = append(lines, theme.DimmedStyle.Render("  Nothing yet."))
	}
	for _, a := range m.summary.Stats.RecentActivity {
		lines = append(lines, fmt.Sprintf("  %s %s", a.Description, theme.DimmedStyle.Render(a.Time)))
	}
	return strings.Join(lines, "\n")
}

func adherenceLine(history []model.MedicationDay) string {
	pct := dashboard.Adherence(history)
	band := dashboard.AdherenceBand(pct)
	return theme.AdherenceStyle(band).Render(fmt.Sprintf("%d%% adherence", pct))
}
