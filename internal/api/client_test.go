package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/tests/testutil"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient(model.APIConfig{
		BaseURL:    srv.URL + "/",
		TimeoutSec: 5,
		MaxRetries: 2,
	}, testutil.NewLogger())
	c.backoffUnit = time.Millisecond
	c.SetTokenSource(TokenFunc(func(context.Context) string { return "tok-123" }))
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginSendsCredentialsAndMapsUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asha@example.com", body["email"])
		assert.Equal(t, "patient", body["user_type"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"token":   "jwt-token",
			"user": map[string]interface{}{
				"id":       7,
				"fullName": "Asha Rao",
				"email":    "asha@example.com",
				"type":     "patient",
			},
		})
	}))

	res, err := c.Login(context.Background(), "asha@example.com", "secret", model.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", res.Token)
	assert.Equal(t, model.Session{
		UserID:      "7",
		DisplayName: "Asha Rao",
		Email:       "asha@example.com",
		Role:        model.RolePatient,
	}, res.Session)
}

func TestLoginRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Invalid email, password, or user type",
		})
	}))

	_, err := c.Login(context.Background(), "a@b.co", "x", model.RoleDoctor)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, "Invalid email, password, or user type", UserMessage(err))
}

func TestLoginRejectedWithoutMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Login(context.Background(), "a@b.co", "x", model.RoleDoctor)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, "Invalid email or password", UserMessage(err))
}

func TestLoginMissingToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}))

	_, err := c.Login(context.Background(), "a@b.co", "x", model.RoleDoctor)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Equal(t, "Invalid response from server. Please try again.", UserMessage(err))
}

func TestBearerTokenIsSent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"totalPatients": 12, "unreadMessages": 2})
	}))

	stats, err := c.Stats(context.Background(), model.RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.TotalPatients)
	assert.Equal(t, 2, stats.UnreadMessages)
}

func TestRetryOn429(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": 1, "patientName": "Jane Doe", "time": "9:00 AM", "type": "Check-up", "status": "confirmed"},
		})
	}))

	appts, err := c.RoleAppointments(context.Background(), model.RoleDoctor)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "Jane Doe", appts[0].PatientName)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Patients(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestStatusKinds(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
		{http.StatusInternalServerError, KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "nope"})
			}))
			err := c.DeleteMedicalRecord(context.Background(), "4")
			assert.Equal(t, tt.want, KindOf(err))
			assert.Equal(t, "nope", UserMessage(err))
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(model.APIConfig{BaseURL: url, TimeoutSec: 1}, testutil.NewLogger())
	_, err := c.HealthMetrics(context.Background())
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, "Network error occurred. Please check if the server is running.", UserMessage(err))
}

func TestCancelledContext(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Prescriptions(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNotificationsAcceptBackendShapes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"notifications": []map[string]interface{}{
				{"id": 1, "user_id": 3, "title": "Reminder", "message": "Visit tomorrow", "type": "appointment", "is_read": true, "created_at": "2026-03-14T09:30:00.123456"},
				{"id": "2", "content": "New message", "type": "chat", "date": "2026-03-14T10:00:00Z"},
			},
		})
	}))

	ns, err := c.Notifications(context.Background(), model.Session{UserID: "3", Role: model.RolePatient})
	require.NoError(t, err)
	require.Len(t, ns, 2)

	assert.Equal(t, model.ID("1"), ns[0].ID)
	assert.Equal(t, "Visit tomorrow", ns[0].Content)
	assert.True(t, ns[0].Read)
	assert.Equal(t, 9, ns[0].Timestamp.Hour())

	assert.Equal(t, model.ID("3"), ns[1].UserID)
	assert.Equal(t, model.NotificationOther, ns[1].Type)
	assert.False(t, ns[1].Read)
}

func TestMessagesDeriveConversation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": 1, "senderId": 10, "receiverId": 20, "content": "Hello", "date": "2026-03-14T09:00:00Z", "read": true},
			{"id": 2, "sender_id": 20, "receiver_id": 10, "sender_type": "patient", "content": "Hi", "created_at": "2026-03-14T09:05:00"},
		})
	}))

	self := model.Session{UserID: "20", Role: model.RolePatient}
	ms, err := c.Messages(context.Background(), self)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.Equal(t, model.RoleDoctor, ms[0].SenderRole)
	assert.Equal(t, "10:20", ms[0].ConversationID)
	assert.True(t, ms[0].IsRead())
	assert.Equal(t, "10:20", ms[1].ConversationID)
	assert.True(t, ms[1].SentBy("20", model.RolePatient))
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "See you Monday", body["content"])
		assert.Equal(t, "20", body["receiver_id"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id": 99, "senderId": 10, "receiverId": 20, "senderRole": "doctor", "content": "See you Monday", "date": "2026-03-14T09:00:00Z",
		})
	}))

	self := model.Session{UserID: "10", Role: model.RoleDoctor}
	sent, err := c.SendMessage(context.Background(), self, model.Message{
		ID: "local", ConversationID: "10:20", SenderID: "10", SenderRole: model.RoleDoctor, RecipientID: "20", Content: "See you Monday",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ID("99"), sent.ID)
	assert.Equal(t, "10:20", sent.ConversationID)
}

func TestRegisterOmitsSpecializationForPatients(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, has := body["specialization"]
		assert.False(t, has)
		assert.Equal(t, "Asha Rao", body["name"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"token": "t", "user": map[string]interface{}{"id": 1, "name": "Asha Rao", "user_type": "patient"},
		})
	}))

	res, err := c.Register(context.Background(), model.RegistrationForm{
		FullName: "Asha Rao", Email: "asha@example.com", Password: "Str0ng!pw", Specialization: "ignored", Role: model.RolePatient,
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", res.Session.DisplayName)
}

func TestMarkNotificationsReadSendsIDs(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/notifications/read-all", r.URL.Path)
		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"1", "2"}, body.IDs)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.MarkNotificationsRead(context.Background(), []model.ID{"1", "2"}))
	require.NoError(t, c.MarkNotificationsRead(context.Background(), nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateAppointment(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/appointments", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "3", body["doctor_id"])
		assert.Equal(t, "Check-up", body["title"])
		assert.Equal(t, "2026-04-01T10:30:00Z", body["date"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id": 31, "doctor_id": 3, "patient_id": 9, "title": "Check-up", "status": "scheduled", "date": "2026-04-01T10:30:00Z",
		})
	}))

	at := time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)
	got, err := c.CreateAppointment(context.Background(), model.Appointment{
		DoctorID: "3", PatientID: "9", Date: &at, Type: "Check-up",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ID("31"), got.ID)
	assert.Equal(t, model.ID("3"), got.DoctorID)
	assert.Equal(t, model.AppointmentScheduled, got.Status)
}

func TestCreateAndUpdateMedicalRecord(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Blood panel", body["title"])
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/api/medical-records", r.URL.Path)
			writeJSON(w, http.StatusCreated, map[string]interface{}{
				"id": 5, "patient_id": 9, "title": "Blood panel", "record_type": "lab",
			})
		case http.MethodPut:
			assert.Equal(t, "/api/medical-records/5", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	rec, err := c.CreateMedicalRecord(context.Background(), model.MedicalRecord{
		PatientID: "9", Type: "lab", Title: "Blood panel",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ID("5"), rec.ID)

	rec.Description = "Normal ranges"
	updated, err := c.UpdateMedicalRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "Normal ranges", updated.Description)
}
