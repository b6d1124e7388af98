package model

import "time"

// NotificationType classifies what a notification refers to.
type NotificationType string

const (
	NotificationAppointment NotificationType = "appointment"
	NotificationMessage     NotificationType = "message"
	NotificationRecord      NotificationType = "record"
	NotificationOther       NotificationType = "other"
)

// ParseNotificationType maps unknown values to NotificationOther.
func ParseNotificationType(s string) NotificationType {
	switch t := NotificationType(s); t {
	case NotificationAppointment, NotificationMessage, NotificationRecord:
		return t
	default:
		return NotificationOther
	}
}

// Notification represents an alert surfaced to a user about activity
// on their appointments, messages or records.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID ID `json:"id" db:"id"`

	// UserID is the owner. Read-state changes never cross owners.
	UserID ID `json:"userId" db:"user_id"`

	// Type identifies the kind of activity.
	Type NotificationType `json:"type" db:"type"`

	// Content is the human-readable notification text.
	Content string `json:"content" db:"content"`

	// Timestamp is when the notification was generated.
	Timestamp time.Time `json:"date" db:"created_at"`

	// Read indicates whether the user has seen this notification.
	// It only ever moves from false to true.
	Read bool `json:"read" db:"read"`
}
