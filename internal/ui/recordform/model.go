package recordform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Kind selects what the form edits.
type Kind int

const (
	KindAppointment Kind = iota
	KindRecord
)

// AppointmentSubmitMsg is dispatched when the appointment form
// completes. New is set for a booking, otherwise it is an edit.
type AppointmentSubmitMsg struct {
	Appointment model.Appointment
	New         bool
}

// RecordSubmitMsg is dispatched when the medical record form completes.
type RecordSubmitMsg struct {
	Record model.MedicalRecord
	New    bool
}

// CancelMsg is dispatched when the user leaves the form.
type CancelMsg struct{}

// Appointment types offered when booking.
var appointmentTypes = []string{
	"Check-up", "Consultation", "Follow-up", "New Patient", "Specialist Referral",
}

// Record types offered for new and edited records.
var recordTypes = []struct{ label, value string }{
	{"Consultation", "consultation"},
	{"Test Results", "test-results"},
	{"Procedure", "procedure"},
	{"Surgery", "surgery"},
	{"Vaccination", "vaccination"},
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	counterpart string
	date        string
	clock       string
	apptType    string
	notes       string
	status      string
	recordType  string
	title       string
	description string
}

// Model is the Bubble Tea model for the appointment and medical record
// create/edit forms.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	kind     Kind
	editMode bool
	role     model.Role
	appt     model.Appointment
	rec      model.MedicalRecord
	contacts map[model.ID]string
	width    int
	height   int
}

// New creates a new form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// SetContacts sets the people a booking or a new record can be for.
func (m *Model) SetContacts(contacts map[model.ID]string) {
	m.contacts = contacts
}

// Kind returns what the form edits.
func (m Model) Kind() Kind { return m.kind }

// Editing reports whether the form edits an existing entry.
func (m Model) Editing() bool { return m.editMode }

// StartAppointment opens an empty booking form for role.
func (m *Model) StartAppointment(role model.Role) tea.Cmd {
	m.kind = KindAppointment
	m.editMode = false
	m.role = role
	m.appt = model.Appointment{}
	*m.fb = formBindings{apptType: appointmentTypes[0], status: model.AppointmentScheduled}
	m.form = m.buildAppointmentForm()
	return m.form.Init()
}

// StartEditAppointment opens the form prefilled from a.
func (m *Model) StartEditAppointment(role model.Role, a model.Appointment) tea.Cmd {
	m.kind = KindAppointment
	m.editMode = true
	m.role = role
	m.appt = a
	*m.fb = formBindings{apptType: a.Type, notes: a.Notes, status: a.Status, clock: a.Time}
	if a.Date != nil {
		local := a.Date.Local()
		m.fb.date = local.Format(dateLayout)
		if m.fb.clock == "" {
			m.fb.clock = local.Format(clockLayout)
		}
	}
	if m.fb.status == "" {
		m.fb.status = model.AppointmentScheduled
	}
	m.form = m.buildAppointmentForm()
	return m.form.Init()
}

// StartRecord opens an empty medical record form.
func (m *Model) StartRecord() tea.Cmd {
	m.kind = KindRecord
	m.editMode = false
	m.role = model.RoleDoctor
	m.rec = model.MedicalRecord{}
	*m.fb = formBindings{recordType: recordTypes[0].value}
	m.form = m.buildRecordForm()
	return m.form.Init()
}

// StartEditRecord opens the form prefilled from r.
func (m *Model) StartEditRecord(r model.MedicalRecord) tea.Cmd {
	m.kind = KindRecord
	m.editMode = true
	m.role = model.RoleDoctor
	m.rec = r
	*m.fb = formBindings{recordType: r.Type, title: r.Title, description: r.Description}
	if m.fb.recordType == "" {
		m.fb.recordType = recordTypes[0].value
	}
	m.form = m.buildRecordForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	var titleText string
	switch {
	case m.kind == KindRecord && m.editMode:
		titleText = "Edit Medical Record"
	case m.kind == KindRecord:
		titleText = "New Medical Record"
	case m.editMode:
		titleText = "Edit Appointment"
	default:
		titleText = "Book Appointment"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildAppointmentForm() *huh.Form {
	var fields []huh.Field
	if !m.editMode {
		label := "Doctor"
		if m.role == model.RoleDoctor {
			label = "Patient"
		}
		fields = append(fields, m.counterpartField(label))
	}

	typeOpts := huh.NewOptions(appointmentTypes...)
	if m.fb.apptType != "" && !contains(appointmentTypes, m.fb.apptType) {
		typeOpts = append(typeOpts, huh.NewOption(m.fb.apptType, m.fb.apptType))
	}

	fields = append(fields,
		huh.NewInput().
			Title("Date").
			Placeholder("YYYY-MM-DD").
			Value(&m.fb.date).
			Validate(validateDate),
		huh.NewInput().
			Title("Time").
			Placeholder("HH:MM (24h)").
			Value(&m.fb.clock).
			Validate(validateClock),
		huh.NewSelect[string]().
			Title("Type").
			Options(typeOpts...).
			Value(&m.fb.apptType),
		huh.NewText().
			Title("Notes").
			Placeholder("Optional details...").
			Value(&m.fb.notes),
	)

	if m.editMode && m.role == model.RoleDoctor {
		fields = append(fields,
			huh.NewSelect[string]().
				Title("Status").
				Options(
					huh.NewOption("Scheduled", model.AppointmentScheduled),
					huh.NewOption("Confirmed", model.AppointmentConfirmed),
					huh.NewOption("Completed", model.AppointmentCompleted),
					huh.NewOption("Cancelled", model.AppointmentCancelled),
				).
				Value(&m.fb.status),
		)
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight()).WithShowHelp(false)
}

func (m *Model) buildRecordForm() *huh.Form {
	var fields []huh.Field
	if !m.editMode {
		fields = append(fields, m.counterpartField("Patient"))
	}

	opts := make([]huh.Option[string], 0, len(recordTypes)+1)
	known := false
	for _, t := range recordTypes {
		opts = append(opts, huh.NewOption(t.label, t.value))
		known = known || t.value == m.fb.recordType
	}
	if !known {
		opts = append(opts, huh.NewOption(m.fb.recordType, m.fb.recordType))
	}

	fields = append(fields,
		huh.NewSelect[string]().
			Title("Type").
			Options(opts...).
			Value(&m.fb.recordType),
		huh.NewInput().
			Title("Title").
			Placeholder("e.g. Annual blood panel").
			Value(&m.fb.title).
			Validate(validateRequired("Title")),
		huh.NewText().
			Title("Description").
			Placeholder("Findings, diagnosis, prescription...").
			Value(&m.fb.description),
	)

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight()).WithShowHelp(false)
}

// counterpartField picks from the known contacts, or takes an id when
// none are known yet.
func (m *Model) counterpartField(label string) huh.Field {
	if len(m.contacts) == 0 {
		return huh.NewInput().
			Title(label + " ID").
			Value(&m.fb.counterpart).
			Validate(validateRequired(label))
	}

	ids := make([]model.ID, 0, len(m.contacts))
	for id := range m.contacts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return strings.ToLower(m.contacts[ids[i]]) < strings.ToLower(m.contacts[ids[j]])
	})

	opts := make([]huh.Option[string], len(ids))
	for i, id := range ids {
		name := m.contacts[id]
		if name == "" {
			name = string(id)
		}
		opts[i] = huh.NewOption(name, string(id))
	}
	if m.fb.counterpart == "" {
		m.fb.counterpart = string(ids[0])
	}
	return huh.NewSelect[string]().
		Title(label).
		Options(opts...).
		Value(&m.fb.counterpart)
}

func (m Model) handleSubmit() tea.Cmd {
	if m.kind == KindRecord {
		rec := m.buildRecord()
		isNew := !m.editMode
		return func() tea.Msg { return RecordSubmitMsg{Record: rec, New: isNew} }
	}
	appt := m.buildAppointment()
	isNew := !m.editMode
	return func() tea.Msg { return AppointmentSubmitMsg{Appointment: appt, New: isNew} }
}

// buildAppointment applies the form values to the appointment being
// edited, or to a new booking.
func (m Model) buildAppointment() model.Appointment {
	a := m.appt
	clock := strings.TrimSpace(m.fb.clock)
	if t, err := time.ParseInLocation(dateLayout+" "+clockLayout,
		strings.TrimSpace(m.fb.date)+" "+clock, time.Local); err == nil {
		a.Date = &t
	}
	a.Time = clock
	a.Type = m.fb.apptType
	a.Notes = strings.TrimSpace(m.fb.notes)

	if m.editMode {
		if m.role == model.RoleDoctor {
			a.Status = m.fb.status
		}
		return a
	}

	a.Status = model.AppointmentScheduled
	id := model.ID(strings.TrimSpace(m.fb.counterpart))
	if m.role == model.RoleDoctor {
		a.PatientID = id
		a.PatientName = m.contacts[id]
	} else {
		a.DoctorID = id
		a.DoctorName = m.contacts[id]
	}
	return a
}

func (m Model) buildRecord() model.MedicalRecord {
	r := m.rec
	r.Type = m.fb.recordType
	r.Title = strings.TrimSpace(m.fb.title)
	r.Description = strings.TrimSpace(m.fb.description)
	if !m.editMode {
		r.PatientID = model.ID(strings.TrimSpace(m.fb.counterpart))
		now := time.Now()
		r.Date = &now
	}
	return r
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

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Date is required")
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}

func validateClock(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Time is required")
	}
	if _, err := time.Parse(clockLayout, s); err != nil {
		return fmt.Errorf("invalid time, use HH:MM")
	}
	return nil
}
