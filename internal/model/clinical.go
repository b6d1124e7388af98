package model

import "time"

// Appointment status values used by the backend.
const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentPending   = "pending"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
)

// Appointment is a scheduled visit between a doctor and a patient.
type Appointment struct {
	ID          ID         `json:"id"`
	PatientID   ID         `json:"patientId,omitempty"`
	DoctorID    ID         `json:"doctorId,omitempty"`
	PatientName string     `json:"patientName,omitempty"`
	DoctorName  string     `json:"doctorName,omitempty"`
	Time        string     `json:"time,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
}

// MedicalRecord is a single entry in a patient's chart.
type MedicalRecord struct {
	ID          ID           `json:"id"`
	PatientID   ID           `json:"patientId"`
	DoctorID    ID           `json:"doctorId,omitempty"`
	Date        *time.Time   `json:"date,omitempty"`
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Patient is the summary a doctor sees in their patient list.
type Patient struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Email     string `json:"email,omitempty"`
	BloodType string `json:"bloodType,omitempty"`
}

// Prescription is an active or past medication order.
type Prescription struct {
	ID               ID         `json:"id"`
	PatientID        ID         `json:"patientId,omitempty"`
	DoctorID         ID         `json:"doctorId,omitempty"`
	Medication       string     `json:"medication"`
	Dosage           string     `json:"dosage"`
	Frequency        string     `json:"frequency"`
	StartDate        *time.Time `json:"startDate,omitempty"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	Instructions     string     `json:"instructions,omitempty"`
	RefillsRemaining int        `json:"refillsRemaining"`
	Status           string     `json:"status,omitempty"`
}

// DoseStatus values recorded in a medication history.
const (
	DoseTaken  = "taken"
	DoseMissed = "missed"
)

// Dose is one scheduled intake in the medication history.
type Dose struct {
	Medication string `json:"name"`
	Status     string `json:"status"`
}

// MedicationDay groups the doses scheduled on one day.
type MedicationDay struct {
	Date  time.Time `json:"date"`
	Doses []Dose    `json:"medications"`
}

// Reading is a dated health measurement. Value is kept as text because
// blood pressure is reported as "120/80".
type Reading struct {
	Date  time.Time `json:"date"`
	Value string    `json:"value"`
}

// HealthMetrics holds the patient's tracked measurement series.
type HealthMetrics struct {
	BloodPressure []Reading `json:"bloodPressure"`
	BloodGlucose  []Reading `json:"bloodGlucose"`
	Weight        []Reading `json:"weight"`

	// MedicationHistory is the recent per-day dose log, oldest first.
	MedicationHistory []MedicationDay `json:"medicationHistory,omitempty"`
}

// Latest returns the most recent reading of a series.
func Latest(series []Reading) (Reading, bool) {
	if len(series) == 0 {
		return Reading{}, false
	}
	latest := series[0]
	for _, r := range series[1:] {
		if r.Date.After(latest.Date) {
			latest = r
		}
	}
	return latest, true
}
