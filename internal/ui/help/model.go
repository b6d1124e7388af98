package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	role   model.Role
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetRole selects the route list shown under the shortcuts.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// View renders the help overlay.
func (m Model) View() string {
	title := theme.TitleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	helpText := m.help.View(m.keys)

	sections := []string{title, helpText}
	if m.role.Valid() {
		base := m.role.DashboardPath()
		routes := lipgloss.JoinVertical(lipgloss.Left,
			theme.SectionStyle.Render("Routes"),
			theme.DimmedStyle.Render(base),
			theme.DimmedStyle.Render(base+"/appointments"),
			theme.DimmedStyle.Render(base+"/records"),
			theme.DimmedStyle.Render(base+"/messages"),
			theme.DimmedStyle.Render(base+"/notifications"),
		)
		sections = append(sections, "", routes)
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
