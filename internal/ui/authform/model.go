package authform

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
	"github.com/nhle/ehr-terminal/internal/validate"
)

// Mode selects which public form is shown.
type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
	ModeForgot
)

// LoginSubmitMsg is dispatched when the login form completes.
type LoginSubmitMsg struct {
	Email    string
	Password string
	Role     model.Role
}

// RegisterSubmitMsg is dispatched when the registration form completes.
type RegisterSubmitMsg struct {
	Form model.RegistrationForm
}

// ResetSubmitMsg is dispatched when the forgot-password form completes.
type ResetSubmitMsg struct {
	Email       string
	NewPassword string
}

// NavigateMsg asks the router to switch to another public route.
type NavigateMsg struct {
	Route string
}

// Routes the form links to. They mirror the guard's public routes.
const (
	routeLogin    = "/login"
	routeRegister = "/register"
	routeForgot   = "/forgot-password"
)

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	role           model.Role
	fullName       string
	email          string
	password       string
	confirm        string
	phone          string
	specialization string
}

// Model is the Bubble Tea model for the login, register and
// forgot-password forms.
type Model struct {
	form       *huh.Form
	fb         *formBindings
	mode       Mode
	submitting bool
	width      int
	height     int
}

// New creates a new auth form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{role: model.RolePatient},
		width:  width,
		height: height,
	}
}

// Mode returns the form currently shown.
func (m Model) Mode() Mode { return m.mode }

// Submitting reports whether a submitted form awaits its result.
func (m Model) Submitting() bool { return m.submitting }

// Start shows the form for mode with cleared secrets. The selected
// role, email and profile fields survive so a failed attempt can be
// retried without retyping them.
func (m *Model) Start(mode Mode) tea.Cmd {
	m.mode = mode
	m.submitting = false
	m.fb.password = ""
	m.fb.confirm = ""

	switch mode {
	case ModeRegister:
		m.form = m.buildRegisterForm()
	case ModeForgot:
		m.form = m.buildForgotForm()
	default:
		m.form = m.buildLoginForm()
	}
	return m.form.Init()
}

// Retry restarts the current form after a failed submission.
func (m *Model) Retry() tea.Cmd {
	return m.Start(m.mode)
}

// Update handles messages for the auth form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.submitting {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		if cmd := m.linkKey(msg.String()); cmd != nil {
			return m, cmd
		}
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.submitting = true
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, m.Retry()
	}

	return m, cmd
}

// linkKey maps the footer links of each form to navigation.
func (m Model) linkKey(k string) tea.Cmd {
	var route string
	switch {
	case k == "ctrl+n" && m.mode == ModeLogin:
		route = routeRegister
	case k == "ctrl+f" && m.mode == ModeLogin:
		route = routeForgot
	case k == "esc" && m.mode != ModeLogin:
		route = routeLogin
	default:
		return nil
	}
	return func() tea.Msg { return NavigateMsg{Route: route} }
}

// View renders the active form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	var title, footer string
	switch m.mode {
	case ModeRegister:
		title = "Create an account"
		footer = "esc back to sign in"
	case ModeForgot:
		title = "Reset your password"
		footer = "esc back to sign in"
	default:
		title = "Sign in to Arogya Mithra"
		footer = "ctrl+n create an account | ctrl+f forgot password"
	}

	body := m.form.View()
	if m.submitting {
		body = theme.DimmedStyle.Render("Please wait...")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.TitleStyle.Render(title),
		body,
		"",
		theme.HelpStyle.Render(footer),
	)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) roleField() huh.Field {
	return huh.NewSelect[model.Role]().
		Title("I am a").
		Options(
			huh.NewOption("Patient", model.RolePatient),
			huh.NewOption("Doctor", model.RoleDoctor),
		).
		Value(&m.fb.role).
		Validate(func(r model.Role) error { return shown(validate.Role(r)) })
}

func (m *Model) emailField() huh.Field {
	return huh.NewInput().
		Title("Email").
		Placeholder("you@example.com").
		Value(&m.fb.email).
		Validate(field(validate.Email))
}

func (m *Model) buildLoginForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			m.roleField(),
			m.emailField(),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(func(s string) error {
					return shown(validate.Required("password", "Password", s))
				}),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight()).WithShowHelp(false)
}

func (m *Model) buildRegisterForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			m.roleField(),
			huh.NewInput().
				Title("Full name").
				Value(&m.fb.fullName).
				Validate(func(s string) error {
					return shown(validate.Required("fullName", "Full name", s))
				}),
			m.emailField(),
			huh.NewInput().
				Title("Phone").
				Placeholder("+15551234567").
				Value(&m.fb.phone).
				Validate(field(validate.Phone)),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Specialization").
				Description("Required for doctors").
				Value(&m.fb.specialization),
		).WithHideFunc(func() bool { return m.fb.role != model.RoleDoctor }),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				Description("At least 8 characters with upper and lower case, a number and a symbol").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(field(validate.Password)),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirm).
				Validate(m.matchesPassword),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight()).WithShowHelp(false)
}

func (m *Model) buildForgotForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			m.emailField(),
			huh.NewInput().
				Title("New password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(field(validate.Password)),
			huh.NewInput().
				Title("Confirm new password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirm).
				Validate(m.matchesPassword),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight()).WithShowHelp(false)
}

func (m *Model) matchesPassword(s string) error {
	return shown(validate.Confirm(m.fb.password, s))
}

// shown strips the field prefix so huh prints the bare message.
func shown(err error) error {
	var ve *validate.Error
	if errors.As(err, &ve) {
		return errors.New(ve.UserMessage())
	}
	return err
}

func field(fn func(string) error) func(string) error {
	return func(s string) error { return shown(fn(s)) }
}

func (m Model) handleSubmit() tea.Cmd {
	fb := *m.fb
	email := strings.TrimSpace(fb.email)

	switch m.mode {
	case ModeRegister:
		form := model.RegistrationForm{
			FullName:        strings.TrimSpace(fb.fullName),
			Email:           email,
			Password:        fb.password,
			ConfirmPassword: fb.confirm,
			Phone:           strings.TrimSpace(fb.phone),
			Specialization:  strings.TrimSpace(fb.specialization),
			Role:            fb.role,
		}
		return func() tea.Msg { return RegisterSubmitMsg{Form: form} }
	case ModeForgot:
		return func() tea.Msg { return ResetSubmitMsg{Email: email, NewPassword: fb.password} }
	default:
		return func() tea.Msg {
			return LoginSubmitMsg{Email: email, Password: fb.password, Role: fb.role}
		}
	}
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 10 {
		h = 10
	}
	return h
}
