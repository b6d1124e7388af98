package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Arg  string
}

// Parse splits a palette line into a command name and its argument.
// Names are case-insensitive; the argument keeps its case.
func Parse(line string) CommandMsg {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, " ")
	return CommandMsg{
		Name: strings.ToLower(name),
		Arg:  strings.TrimSpace(arg),
	}
}

// Commands lists the palette entries shown as suggestions.
var Commands = []string{
	"refresh",
	"logout",
	"goto ",
	"help",
	"settings",
	"quit",
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "refresh | logout | goto <route> | settings | quit"
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Commands)
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		cmd := Parse(line)
		return m, func() tea.Msg { return cmd }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := theme.TitleStyle.Render("Command Palette")
	hint := theme.HelpStyle.Render("goto accepts a route such as /doctor-dashboard/messages")

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.input.View(), "", hint)

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
