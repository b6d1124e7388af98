package dashboard

import "github.com/nhle/ehr-terminal/internal/model"

// Static values shown when a field's fetch fails.

func doctorStatsFallback() model.Stats {
	return model.Stats{
		TotalPatients:     42,
		TodayAppointments: 5,
		PendingReports:    3,
		UnreadMessages:    7,
		RecentActivity: []model.Activity{
			{Description: "Updated patient record for Jane Doe", Time: "2 hours ago"},
			{Description: "Completed appointment with John Smith", Time: "4 hours ago"},
			{Description: "Added new prescription for Mary Johnson", Time: "Yesterday"},
		},
	}
}

func patientStatsFallback() model.Stats {
	return model.Stats{
		UpcomingAppointments: 2,
		ActivePrescriptions:  3,
		UnreadMessages:       1,
		RecentActivity: []model.Activity{
			{Description: "Doctor Smith updated your treatment plan", Time: "Yesterday"},
			{Description: "New lab results available", Time: "2 days ago"},
			{Description: "Prescription refill available", Time: "3 days ago"},
		},
	}
}

func doctorAppointmentsFallback() []model.Appointment {
	return []model.Appointment{
		{ID: "1", PatientName: "Jane Doe", Time: "9:00 AM", Type: "Check-up", Status: model.AppointmentConfirmed},
		{ID: "2", PatientName: "John Smith", Time: "11:30 AM", Type: "Follow-up", Status: model.AppointmentConfirmed},
		{ID: "3", PatientName: "Emily Clark", Time: "2:00 PM", Type: "Consultation", Status: model.AppointmentPending},
	}
}

func patientAppointmentsFallback() []model.Appointment {
	return []model.Appointment{
		{ID: "1", DoctorName: "Dr. Smith", Time: "Tomorrow, 9:00 AM", Type: "Check-up", Status: model.AppointmentConfirmed},
		{ID: "2", DoctorName: "Dr. Johnson", Time: "Next Week, 2:00 PM", Type: "Follow-up", Status: model.AppointmentPending},
	}
}

// StatsFallback returns the static counters for role.
func StatsFallback(role model.Role) model.Stats {
	if role == model.RoleDoctor {
		return doctorStatsFallback()
	}
	return patientStatsFallback()
}

// AppointmentsFallback returns the static appointment list for role.
func AppointmentsFallback(role model.Role) []model.Appointment {
	if role == model.RoleDoctor {
		return doctorAppointmentsFallback()
	}
	return patientAppointmentsFallback()
}
