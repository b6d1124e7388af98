package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// ConfigMode represents the current state of the settings view.
type ConfigMode int

const (
	ModeForm   ConfigMode = iota // Editing settings
	ModeSaving                   // Writing the config file
)

// DoneMsg signals the settings view should close. Saved is set when
// the config file was written.
type DoneMsg struct {
	Saved  bool
	Config model.AppConfig
}

// savedMsg is sent after the config file is written.
type savedMsg struct {
	cfg model.AppConfig
	err error
}

// formValues holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formValues struct {
	baseURL      string
	timeoutSec   string
	pollSec      string
	tokenBackend string
	logLevel     string
}

// Model is the Bubble Tea model for the settings view. It edits the
// config file the client was started with; changes apply on restart.
type Model struct {
	mode    ConfigMode
	path    string
	current model.AppConfig
	form    *huh.Form
	fv      *formValues
	spinner spinner.Model

	// Status message for transient feedback
	statusMsg string

	width, height int
}

// New creates a settings view for the config file at path.
func New(path string, cfg model.AppConfig, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		path:    path,
		current: cfg,
		fv:      &formValues{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Start opens the form prefilled from the current settings.
func (m *Model) Start() tea.Cmd {
	m.mode = ModeForm
	m.statusMsg = ""
	m.fv.baseURL = m.current.API.BaseURL
	m.fv.timeoutSec = strconv.Itoa(m.current.API.TimeoutSec)
	m.fv.pollSec = strconv.Itoa(m.current.Display.PollIntervalSec)
	m.fv.tokenBackend = m.current.Storage.TokenBackend
	m.fv.logLevel = m.current.Log.Level
	m.form = m.buildForm()
	return m.form.Init()
}

// Mode returns the current mode.
func (m Model) Mode() ConfigMode { return m.mode }

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedMsg:
		if msg.err != nil {
			cmd := m.Start()
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			return m, cmd
		}
		m.current = msg.cfg
		cfg := msg.cfg
		return m, func() tea.Msg { return DoneMsg{Saved: true, Config: cfg} }

	case spinner.TickMsg:
		if m.mode == ModeSaving {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "esc" {
			return m, func() tea.Msg { return DoneMsg{} }
		}
	}

	if m.mode != ModeForm || m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.mode = ModeSaving
		return m, tea.Batch(m.spinner.Tick, m.save())
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Description("EHR server root (e.g., http://127.0.0.1:5000)").
				Value(&m.fv.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Request timeout (seconds)").
				Value(&m.fv.timeoutSec).
				Validate(validatePositive("Timeout")),
			huh.NewInput().
				Title("Sync interval (seconds)").
				Description("How often notifications and messages are refreshed").
				Value(&m.fv.pollSec).
				Validate(validatePositive("Sync interval")),
			huh.NewSelect[string]().
				Title("Token storage").
				Options(
					huh.NewOption("System keyring", model.TokenBackendKeyring),
					huh.NewOption("Local database", model.TokenBackendStore),
				).
				Value(&m.fv.tokenBackend),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.fv.logLevel),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
}

// Apply returns cfg with the form values applied. The form validators
// guarantee the numbers parse.
func (m Model) Apply(cfg model.AppConfig) model.AppConfig {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(m.fv.baseURL), "/")
	if n, err := strconv.Atoi(strings.TrimSpace(m.fv.timeoutSec)); err == nil {
		cfg.API.TimeoutSec = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(m.fv.pollSec)); err == nil {
		cfg.Display.PollIntervalSec = n
	}
	cfg.Storage.TokenBackend = m.fv.tokenBackend
	cfg.Log.Level = m.fv.logLevel
	return cfg
}

// save returns a command that writes the edited settings.
func (m Model) save() tea.Cmd {
	path := m.path
	cfg := m.Apply(m.current)
	return func() tea.Msg {
		if path == "" {
			return savedMsg{err: fmt.Errorf("no config file")}
		}
		err := model.SaveConfig(path, &cfg)
		return savedMsg{cfg: cfg, err: err}
	}
}

// View renders the settings view based on the current mode.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render("Settings"))
	b.WriteString("\n")
	b.WriteString(theme.DimmedStyle.Render(m.path))
	b.WriteString("\n\n")

	switch m.mode {
	case ModeSaving:
		b.WriteString(fmt.Sprintf("%s Saving...", m.spinner.View()))
	default:
		if m.form != nil {
			b.WriteString(m.form.View())
		}
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(theme.ErrorStyle.Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(theme.HelpStyle.Render("enter next | esc back | changes apply on restart"))

	return style.Render(b.String())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validatePositive(fieldName string) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s must be a number", fieldName)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
		return nil
	}
}
