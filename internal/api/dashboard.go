package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/ehr-terminal/internal/model"
)

// Stats fetches the dashboard counters for role.
func (c *Client) Stats(ctx context.Context, role model.Role) (model.Stats, error) {
	var w wireStats
	if err := c.get(ctx, "stats", fmt.Sprintf("/api/%s/stats", role), &w); err != nil {
		return model.Stats{}, err
	}
	return w.toModel(), nil
}

// RoleAppointments fetches the appointments shown on role's dashboard.
func (c *Client) RoleAppointments(ctx context.Context, role model.Role) ([]model.Appointment, error) {
	const op = "appointments"
	var raw json.RawMessage
	if err := c.get(ctx, op, fmt.Sprintf("/api/%s/appointments", role), &raw); err != nil {
		return nil, err
	}
	var ws []wireAppointment
	if err := decodeList(raw, "appointments", &ws); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	out := make([]model.Appointment, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toModel())
	}
	return out, nil
}

// Patients fetches a doctor's patient list.
func (c *Client) Patients(ctx context.Context) ([]model.Patient, error) {
	const op = "patients"
	var raw json.RawMessage
	if err := c.get(ctx, op, "/api/doctor/patients", &raw); err != nil {
		return nil, err
	}
	var ws []wirePatient
	if err := decodeList(raw, "patients", &ws); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	out := make([]model.Patient, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toModel())
	}
	return out, nil
}

// Prescriptions fetches a patient's prescriptions.
func (c *Client) Prescriptions(ctx context.Context) ([]model.Prescription, error) {
	const op = "prescriptions"
	var raw json.RawMessage
	if err := c.get(ctx, op, "/api/patient/prescriptions", &raw); err != nil {
		return nil, err
	}
	var ws []wirePrescription
	if err := decodeList(raw, "prescriptions", &ws); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	out := make([]model.Prescription, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toModel())
	}
	return out, nil
}

// HealthMetrics fetches a patient's measurement series.
func (c *Client) HealthMetrics(ctx context.Context) (model.HealthMetrics, error) {
	var w wireHealthMetrics
	if err := c.get(ctx, "health metrics", "/api/patient/health-metrics", &w); err != nil {
		return model.HealthMetrics{}, err
	}
	return w.toModel(), nil
}
