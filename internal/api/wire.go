package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/ehr-terminal/internal/model"
)

// wireTime accepts the timestamp layouts the backend emits. Flask's
// isoformat() carries no zone; those values are UTC.
type wireTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("decoding time %s: %w", data, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("decoding time %q: unknown layout", s)
}

func (t wireTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// wireText accepts a JSON string or number and keeps it as text.
type wireText string

func (w *wireText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = wireText(s)
		return nil
	}
	*w = wireText(data)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstID(ids ...model.ID) model.ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstTime(ts ...wireTime) wireTime {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return wireTime{}
}

// wireUser is the user object of auth responses. The backend has used
// both camelCase and snake_case names for the same fields.
type wireUser struct {
	ID            model.ID `json:"id"`
	UserID        model.ID `json:"user_id"`
	Name          string   `json:"name"`
	FullName      string   `json:"fullName"`
	FullNameSnake string   `json:"full_name"`
	Email         string   `json:"email"`
	Type          string   `json:"type"`
	UserType      string   `json:"user_type"`
}

// session maps the payload to a Session. The requested role is used
// when the backend omits the account type.
func (u wireUser) session(requested model.Role) (model.Session, error) {
	s := model.Session{
		UserID:      firstID(u.ID, u.UserID),
		DisplayName: firstNonEmpty(u.Name, u.FullName, u.FullNameSnake),
		Email:       u.Email,
		Role:        requested,
	}
	if raw := firstNonEmpty(u.Type, u.UserType); raw != "" {
		role, err := model.ParseRole(raw)
		if err != nil {
			return model.Session{}, err
		}
		s.Role = role
	}
	if s.UserID == "" && s.Email == "" {
		return model.Session{}, fmt.Errorf("user payload has neither id nor email")
	}
	if !s.Role.Valid() {
		return model.Session{}, fmt.Errorf("user payload has no account type")
	}
	if s.DisplayName == "" {
		s.DisplayName = s.Email
	}
	return s, nil
}

type authResponse struct {
	Success *bool     `json:"success"`
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    *wireUser `json:"user"`
}

type wireNotification struct {
	ID        model.ID `json:"id"`
	UserID    model.ID `json:"userId"`
	UserIDAlt model.ID `json:"user_id"`
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Message   string   `json:"message"`
	Read      bool     `json:"read"`
	IsRead    bool     `json:"is_read"`
	Date      wireTime `json:"date"`
	CreatedAt wireTime `json:"created_at"`
}

func (w wireNotification) toModel() model.Notification {
	return model.Notification{
		ID:        w.ID,
		UserID:    firstID(w.UserID, w.UserIDAlt),
		Type:      model.ParseNotificationType(w.Type),
		Content:   firstNonEmpty(w.Content, w.Message, w.Title),
		Timestamp: firstTime(w.Date, w.CreatedAt).Time,
		Read:      w.Read || w.IsRead,
	}
}

type wireAttachment struct {
	ID   model.ID `json:"id"`
	Type string   `json:"type"`
	Name string   `json:"name"`
	Size wireText `json:"size"`
	URL  string   `json:"url"`
}

func (w wireAttachment) toModel() model.Attachment {
	kind := model.AttachmentKind(w.Type)
	switch kind {
	case model.AttachmentImage, model.AttachmentDocument:
	default:
		kind = model.AttachmentFile
	}
	return model.Attachment{
		ID:   string(w.ID),
		Kind: kind,
		Name: w.Name,
		Size: string(w.Size),
		URL:  w.URL,
	}
}

func attachmentsToModel(ws []wireAttachment) []model.Attachment {
	if len(ws) == 0 {
		return nil
	}
	out := make([]model.Attachment, len(ws))
	for i, w := range ws {
		out[i] = w.toModel()
	}
	return out
}

type wireMessage struct {
	ID             model.ID         `json:"id"`
	ConversationID string           `json:"conversationId"`
	ConvIDSnake    string           `json:"conversation_id"`
	SenderID       model.ID         `json:"senderId"`
	SenderIDSnake  model.ID         `json:"sender_id"`
	SenderRole     string           `json:"senderRole"`
	SenderType     string           `json:"sender_type"`
	ReceiverID     model.ID         `json:"receiverId"`
	ReceiverSnake  model.ID         `json:"receiver_id"`
	DoctorID       model.ID         `json:"doctorId"`
	PatientID      model.ID         `json:"patientId"`
	Content        string           `json:"content"`
	Attachments    []wireAttachment `json:"attachments"`
	Status         string           `json:"status"`
	Read           bool             `json:"read"`
	IsRead         bool             `json:"is_read"`
	Date           wireTime         `json:"date"`
	Timestamp      wireTime         `json:"timestamp"`
	CreatedAt      wireTime         `json:"created_at"`
}

// toModel normalizes a message as seen by self. When the backend does
// not say who sent it, a message from the other party is assumed only
// if the sender id differs from self.
func (w wireMessage) toModel(self model.Session) model.Message {
	m := model.Message{
		ID:          w.ID,
		SenderID:    firstID(w.SenderID, w.SenderIDSnake),
		RecipientID: firstID(w.ReceiverID, w.ReceiverSnake),
		Content:     w.Content,
		Timestamp:   firstTime(w.Date, w.Timestamp, w.CreatedAt).Time,
		Attachments: attachmentsToModel(w.Attachments),
		Status:      model.MessageSent,
	}
	if w.Status == string(model.MessageRead) || w.Read || w.IsRead {
		m.Status = model.MessageRead
	}

	if role, err := model.ParseRole(firstNonEmpty(w.SenderRole, w.SenderType)); err == nil {
		m.SenderRole = role
	} else if m.SenderID == self.UserID {
		m.SenderRole = self.Role
	} else {
		m.SenderRole = self.Role.Counterpart()
	}

	doctor, patient := m.SenderID, m.RecipientID
	if m.SenderRole == model.RolePatient {
		doctor, patient = m.RecipientID, m.SenderID
	}
	doctor = firstID(w.DoctorID, doctor)
	patient = firstID(w.PatientID, patient)
	m.ConversationID = firstNonEmpty(w.ConversationID, w.ConvIDSnake, model.ConversationID(doctor, patient))
	return m
}

type wireActivity struct {
	Description string `json:"description"`
	Time        string `json:"time"`
}

type wireStats struct {
	TotalPatients        int            `json:"totalPatients"`
	TodayAppointments    int            `json:"todayAppointments"`
	PendingReports       int            `json:"pendingReports"`
	UpcomingAppointments int            `json:"upcomingAppointments"`
	ActivePrescriptions  int            `json:"activePrescriptions"`
	UnreadMessages       int            `json:"unreadMessages"`
	RecentActivity       []wireActivity `json:"recentActivity"`
}

func (w wireStats) toModel() model.Stats {
	s := model.Stats{
		TotalPatients:        w.TotalPatients,
		TodayAppointments:    w.TodayAppointments,
		PendingReports:       w.PendingReports,
		UpcomingAppointments: w.UpcomingAppointments,
		ActivePrescriptions:  w.ActivePrescriptions,
		UnreadMessages:       w.UnreadMessages,
	}
	for _, a := range w.RecentActivity {
		s.RecentActivity = append(s.RecentActivity, model.Activity{Description: a.Description, Time: a.Time})
	}
	return s
}

type wireAppointment struct {
	ID             model.ID `json:"id"`
	PatientID      model.ID `json:"patientId"`
	PatientIDSnake model.ID `json:"patient_id"`
	DoctorID       model.ID `json:"doctorId"`
	DoctorIDSnake  model.ID `json:"doctor_id"`
	PatientName    string   `json:"patientName"`
	DoctorName     string   `json:"doctorName"`
	Time           string   `json:"time"`
	Date           wireTime `json:"date"`
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Notes          string   `json:"notes"`
	Description    string   `json:"description"`
}

func (w wireAppointment) toModel() model.Appointment {
	return model.Appointment{
		ID:          w.ID,
		PatientID:   firstID(w.PatientID, w.PatientIDSnake),
		DoctorID:    firstID(w.DoctorID, w.DoctorIDSnake),
		PatientName: w.PatientName,
		DoctorName:  w.DoctorName,
		Time:        w.Time,
		Date:        w.Date.ptr(),
		Type:        firstNonEmpty(w.Type, w.Title),
		Status:      w.Status,
		Notes:       firstNonEmpty(w.Notes, w.Description),
	}
}

// appointmentBody is the request payload for create and update.
type appointmentBody struct {
	PatientID model.ID `json:"patient_id,omitempty"`
	DoctorID  model.ID `json:"doctor_id,omitempty"`
	Date      string   `json:"date,omitempty"`
	Title     string   `json:"title"`
	Status    string   `json:"status,omitempty"`
	Notes     string   `json:"description,omitempty"`
}

func newAppointmentBody(a model.Appointment) appointmentBody {
	b := appointmentBody{
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Title:     a.Type,
		Status:    a.Status,
		Notes:     a.Notes,
	}
	if a.Date != nil {
		b.Date = a.Date.UTC().Format(time.RFC3339)
	}
	return b
}

type wireRecord struct {
	ID             model.ID         `json:"id"`
	PatientID      model.ID         `json:"patientId"`
	PatientIDSnake model.ID         `json:"patient_id"`
	DoctorID       model.ID         `json:"doctorId"`
	DoctorIDSnake  model.ID         `json:"doctor_id"`
	Date           wireTime         `json:"date"`
	CreatedAt      wireTime         `json:"created_at"`
	Type           string           `json:"type"`
	RecordType     string           `json:"record_type"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Attachments    []wireAttachment `json:"attachments"`
}

func (w wireRecord) toModel() model.MedicalRecord {
	return model.MedicalRecord{
		ID:          w.ID,
		PatientID:   firstID(w.PatientID, w.PatientIDSnake),
		DoctorID:    firstID(w.DoctorID, w.DoctorIDSnake),
		Date:        firstTime(w.Date, w.CreatedAt).ptr(),
		Type:        firstNonEmpty(w.Type, w.RecordType),
		Title:       w.Title,
		Description: w.Description,
		Attachments: attachmentsToModel(w.Attachments),
	}
}

type recordBody struct {
	PatientID   model.ID `json:"patient_id"`
	DoctorID    model.ID `json:"doctor_id,omitempty"`
	RecordType  string   `json:"record_type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

func newRecordBody(r model.MedicalRecord) recordBody {
	return recordBody{
		PatientID:   r.PatientID,
		DoctorID:    r.DoctorID,
		RecordType:  r.Type,
		Title:       r.Title,
		Description: r.Description,
	}
}

type wirePatient struct {
	ID        model.ID `json:"id"`
	Name      string   `json:"name"`
	FullName  string   `json:"fullName"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	Email     string   `json:"email"`
	BloodType string   `json:"bloodType"`
	BloodSnk  string   `json:"blood_type"`
}

func (w wirePatient) toModel() model.Patient {
	return model.Patient{
		ID:        w.ID,
		Name:      firstNonEmpty(w.Name, w.FullName),
		Age:       w.Age,
		Gender:    w.Gender,
		Email:     w.Email,
		BloodType: firstNonEmpty(w.BloodType, w.BloodSnk),
	}
}

type wirePrescription struct {
	ID               model.ID `json:"id"`
	PatientID        model.ID `json:"patientId"`
	DoctorID         model.ID `json:"doctorId"`
	Medication       string   `json:"medication"`
	Dosage           string   `json:"dosage"`
	Frequency        string   `json:"frequency"`
	StartDate        wireTime `json:"startDate"`
	EndDate          wireTime `json:"endDate"`
	Instructions     string   `json:"instructions"`
	RefillsRemaining int      `json:"refillsRemaining"`
	Status           string   `json:"status"`
}

func (w wirePrescription) toModel() model.Prescription {
	return model.Prescription{
		ID:               w.ID,
		PatientID:        w.PatientID,
		DoctorID:         w.DoctorID,
		Medication:       w.Medication,
		Dosage:           w.Dosage,
		Frequency:        w.Frequency,
		StartDate:        w.StartDate.ptr(),
		EndDate:          w.EndDate.ptr(),
		Instructions:     w.Instructions,
		RefillsRemaining: w.RefillsRemaining,
		Status:           w.Status,
	}
}

type wireReading struct {
	Date  wireTime `json:"date"`
	Value wireText `json:"value"`
}

type wireHealthMetrics struct {
	BloodPressure []wireReading `json:"bloodPressure"`
	BloodGlucose  []wireReading `json:"bloodGlucose"`
	Weight        []wireReading `json:"weight"`

	MedicationHistory []wireMedicationDay `json:"medicationHistory"`
}

type wireDose struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type wireMedicationDay struct {
	Date        wireTime   `json:"date"`
	Medications []wireDose `json:"medications"`
}

func readingsToModel(ws []wireReading) []model.Reading {
	out := make([]model.Reading, 0, len(ws))
	for _, w := range ws {
		out = append(out, model.Reading{Date: w.Date.Time, Value: string(w.Value)})
	}
	return out
}

func (w wireHealthMetrics) toModel() model.HealthMetrics {
	return model.HealthMetrics{
		BloodPressure: readingsToModel(w.BloodPressure),
		BloodGlucose:  readingsToModel(w.BloodGlucose),
		Weight:        readingsToModel(w.Weight),

		MedicationHistory: historyToModel(w.MedicationHistory),
	}
}

func historyToModel(ws []wireMedicationDay) []model.MedicationDay {
	out := make([]model.MedicationDay, 0, len(ws))
	for _, w := range ws {
		day := model.MedicationDay{Date: w.Date.Time}
		for _, d := range w.Medications {
			day.Doses = append(day.Doses, model.Dose{Medication: d.Name, Status: strings.ToLower(d.Status)})
		}
		out = append(out, day)
	}
	return out
}

// decodeList accepts either a bare JSON array or an object holding the
// array under key.
func decodeList(raw json.RawMessage, key string, out interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	inner, ok := envelope[key]
	if !ok {
		return fmt.Errorf("response has no %q list", key)
	}
	if bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		return nil
	}
	return json.Unmarshal(inner, out)
}
