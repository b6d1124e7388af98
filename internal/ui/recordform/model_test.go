package recordform

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/model"
)

func submit(t *testing.T, m Model) tea.Msg {
	t.Helper()
	cmd := m.handleSubmit()
	require.NotNil(t, cmd)
	return cmd()
}

func TestBookAppointmentAsPatient(t *testing.T) {
	m := New(80, 24)
	m.SetContacts(map[model.ID]string{"3": "Dr. Grey", "4": "Dr. Bailey"})
	m.StartAppointment(model.RolePatient)

	// Contacts are offered sorted by name, the first is preselected.
	assert.Equal(t, "4", m.fb.counterpart)

	m.fb.counterpart = "3"
	m.fb.date = "2026-04-01"
	m.fb.clock = "10:30"
	m.fb.notes = "  Fasting  "

	msg, ok := submit(t, m).(AppointmentSubmitMsg)
	require.True(t, ok)
	assert.True(t, msg.New)

	a := msg.Appointment
	assert.Equal(t, model.ID("3"), a.DoctorID)
	assert.Equal(t, "Dr. Grey", a.DoctorName)
	assert.Empty(t, a.PatientID)
	assert.Equal(t, "Check-up", a.Type)
	assert.Equal(t, model.AppointmentScheduled, a.Status)
	assert.Equal(t, "Fasting", a.Notes)
	require.NotNil(t, a.Date)
	assert.True(t, a.Date.Equal(time.Date(2026, 4, 1, 10, 30, 0, 0, time.Local)))
}

func TestBookAppointmentAsDoctorWithoutContacts(t *testing.T) {
	m := New(80, 24)
	m.StartAppointment(model.RoleDoctor)
	m.fb.counterpart = " 9 "
	m.fb.date = "2026-04-01"
	m.fb.clock = "09:00"

	msg := submit(t, m).(AppointmentSubmitMsg)
	assert.Equal(t, model.ID("9"), msg.Appointment.PatientID)
	assert.Empty(t, msg.Appointment.DoctorID)
}

func TestEditAppointmentKeepsIdentity(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 30, 0, 0, time.Local)
	orig := model.Appointment{
		ID: "a1", DoctorID: "3", PatientID: "9", Date: &at, Type: "Follow-up",
		Status: model.AppointmentScheduled,
	}

	m := New(80, 24)
	m.StartEditAppointment(model.RoleDoctor, orig)
	assert.Equal(t, "2026-04-01", m.fb.date)
	assert.Equal(t, "10:30", m.fb.clock)

	m.fb.status = model.AppointmentConfirmed
	m.fb.clock = "11:00"
	msg := submit(t, m).(AppointmentSubmitMsg)
	assert.False(t, msg.New)
	assert.Equal(t, model.ID("a1"), msg.Appointment.ID)
	assert.Equal(t, model.ID("9"), msg.Appointment.PatientID)
	assert.Equal(t, model.AppointmentConfirmed, msg.Appointment.Status)
	assert.Equal(t, 11, msg.Appointment.Date.Hour())

	// Patients reschedule but cannot change the status.
	m.StartEditAppointment(model.RolePatient, orig)
	m.fb.status = model.AppointmentCompleted
	msg = submit(t, m).(AppointmentSubmitMsg)
	assert.Equal(t, model.AppointmentScheduled, msg.Appointment.Status)
}

func TestRecordForm(t *testing.T) {
	m := New(80, 24)
	m.SetContacts(map[model.ID]string{"9": "Izzie"})
	m.StartRecord()
	m.fb.title = " Blood panel "
	m.fb.description = "Normal ranges"

	msg := submit(t, m).(RecordSubmitMsg)
	assert.True(t, msg.New)
	assert.Equal(t, model.ID("9"), msg.Record.PatientID)
	assert.Equal(t, "consultation", msg.Record.Type)
	assert.Equal(t, "Blood panel", msg.Record.Title)
	assert.NotNil(t, msg.Record.Date)

	m.StartEditRecord(model.MedicalRecord{ID: "r1", PatientID: "9", Type: "lab", Title: "Old"})
	assert.Equal(t, "lab", m.fb.recordType)
	m.fb.title = "New"
	msg = submit(t, m).(RecordSubmitMsg)
	assert.False(t, msg.New)
	assert.Equal(t, model.ID("r1"), msg.Record.ID)
	assert.Equal(t, model.ID("9"), msg.Record.PatientID)
	assert.Equal(t, "New", msg.Record.Title)
}

func TestEscCancels(t *testing.T) {
	m := New(80, 24)
	m.StartRecord()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateDate("2026-04-01"))
	assert.Error(t, validateDate(""))
	assert.Error(t, validateDate("01/04/2026"))

	assert.NoError(t, validateClock("09:30"))
	assert.Error(t, validateClock("9.30am"))
	assert.Error(t, validateClock(" "))

	assert.Error(t, validateRequired("Title")("  "))
}
