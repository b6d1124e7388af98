package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/ehr-terminal/internal/model"
)

// CreateAppointment books a new appointment and returns it as stored.
func (c *Client) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	var w wireAppointment
	if err := c.post(ctx, "create appointment", "/api/appointments", newAppointmentBody(a), &w); err != nil {
		return model.Appointment{}, err
	}
	return w.toModel(), nil
}

// UpdateAppointment replaces an appointment's editable fields.
func (c *Client) UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	var w wireAppointment
	path := fmt.Sprintf("/api/appointments/%s", a.ID)
	if err := c.put(ctx, "update appointment", path, newAppointmentBody(a), &w); err != nil {
		return model.Appointment{}, err
	}
	if w.ID == "" {
		return a, nil
	}
	return w.toModel(), nil
}

// MedicalRecords lists the records visible to the caller for role.
func (c *Client) MedicalRecords(ctx context.Context, role model.Role) ([]model.MedicalRecord, error) {
	const op = "medical records"
	var raw json.RawMessage
	if err := c.get(ctx, op, fmt.Sprintf("/api/%s/medical-records", role), &raw); err != nil {
		return nil, err
	}
	var ws []wireRecord
	if err := decodeList(raw, "records", &ws); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	out := make([]model.MedicalRecord, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toModel())
	}
	return out, nil
}

// CreateMedicalRecord adds a record to a patient's chart.
func (c *Client) CreateMedicalRecord(ctx context.Context, r model.MedicalRecord) (model.MedicalRecord, error) {
	var w wireRecord
	if err := c.post(ctx, "create medical record", "/api/medical-records", newRecordBody(r), &w); err != nil {
		return model.MedicalRecord{}, err
	}
	return w.toModel(), nil
}

// UpdateMedicalRecord replaces a record's editable fields.
func (c *Client) UpdateMedicalRecord(ctx context.Context, r model.MedicalRecord) (model.MedicalRecord, error) {
	var w wireRecord
	path := fmt.Sprintf("/api/medical-records/%s", r.ID)
	if err := c.put(ctx, "update medical record", path, newRecordBody(r), &w); err != nil {
		return model.MedicalRecord{}, err
	}
	if w.ID == "" {
		return r, nil
	}
	return w.toModel(), nil
}

// DeleteMedicalRecord removes a record.
func (c *Client) DeleteMedicalRecord(ctx context.Context, id model.ID) error {
	return c.delete(ctx, "delete medical record", fmt.Sprintf("/api/medical-records/%s", id))
}
