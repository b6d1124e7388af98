package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Field is one labelled line of metadata.
type Field struct {
	Label string
	Value string
}

// Entry is what the detail view renders.
type Entry struct {
	Title       string
	Badge       string
	BadgeStyle  lipgloss.Style
	Fields      []Field
	Body        string
	Attachments []model.Attachment
}

// AppointmentEntry describes an appointment from role's point of view.
func AppointmentEntry(a model.Appointment, role model.Role) Entry {
	who := Field{Label: "Patient", Value: a.PatientName}
	if role == model.RolePatient {
		who = Field{Label: "Doctor", Value: a.DoctorName}
	}
	when := a.Time
	if a.Date != nil {
		when = strings.TrimSpace(a.Date.Format("Jan 2, 2006") + " " + a.Time)
	}
	title := a.Type
	if title == "" {
		title = "Appointment"
	}
	return Entry{
		Title:      title,
		Badge:      a.Status,
		BadgeStyle: theme.AppointmentStatusStyle(a.Status),
		Fields:     []Field{who, {Label: "When", Value: when}},
		Body:       a.Notes,
	}
}

// RecordEntry describes a medical record.
func RecordEntry(r model.MedicalRecord) Entry {
	date := ""
	if r.Date != nil {
		date = r.Date.Format("Jan 2, 2006")
	}
	return Entry{
		Title:       r.Title,
		Badge:       r.Type,
		BadgeStyle:  theme.NoticeStyle,
		Fields:      []Field{{Label: "Date", Value: date}, {Label: "Patient", Value: string(r.PatientID)}},
		Body:        r.Description,
		Attachments: r.Attachments,
	}
}

// Model is the detail view component.
type Model struct {
	entry    *Entry
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.entry == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("Nothing selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.entry == nil {
		return ""
	}
	e := m.entry

	var sections []string
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(e.Title))
	if e.Badge != "" {
		sections = append(sections, e.BadgeStyle.Render(e.Badge))
	}
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	for _, f := range e.Fields {
		if f.Value == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("%s  %s",
			metaStyle.Render(f.Label+":"),
			valStyle.Render(f.Value),
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := e.Body
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No notes")
	}
	sections = append(sections, body)

	if len(e.Attachments) > 0 {
		sections = append(sections, "", separator, "")
		sections = append(sections, theme.SectionStyle.Render(
			fmt.Sprintf("Attachments (%d)", len(e.Attachments)),
		))
		for _, a := range e.Attachments {
			line := fmt.Sprintf("[%s] %s", a.Kind, a.Name)
			if a.Size != "" {
				line += "  " + metaStyle.Render(a.Size)
			}
			sections = append(sections, line)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetEntry updates the entry being displayed and re-renders the content.
func (m *Model) SetEntry(e Entry) {
	m.entry = &e
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Entry returns the entry shown, if any.
func (m Model) Entry() (Entry, bool) {
	if m.entry == nil {
		return Entry{}, false
	}
	return *m.entry, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.entry != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
