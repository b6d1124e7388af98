package model

import (
	"fmt"
	"strings"
)

// Role determines which dashboard and API routes a session may use.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// ParseRole normalizes a role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDoctor:
		return RoleDoctor, nil
	case RolePatient:
		return RolePatient, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// Counterpart returns the role on the other side of a conversation.
func (r Role) Counterpart() Role {
	if r == RoleDoctor {
		return RolePatient
	}
	return RoleDoctor
}

// DashboardPath returns the root route of the role's dashboard.
func (r Role) DashboardPath() string {
	return "/" + string(r) + "-dashboard"
}

// Title returns the role name for display.
func (r Role) Title() string {
	switch r {
	case RoleDoctor:
		return "Doctor"
	case RolePatient:
		return "Patient"
	default:
		return "Unknown"
	}
}

// Session is the authenticated identity for the running client. It is
// also the serialized form stored in the durable "user" slot, so the
// JSON names match what the backend returns.
type Session struct {
	// UserID is the backend user identifier.
	UserID ID `json:"id"`

	// DisplayName is the full name shown in headers and greetings.
	DisplayName string `json:"name"`

	// Email is the login address.
	Email string `json:"email"`

	// Role is the account partition the user signed in under.
	Role Role `json:"type"`
}

// IsZero reports whether s carries no identity.
func (s Session) IsZero() bool {
	return s.UserID == "" && s.Email == "" && s.Role == ""
}

// RegistrationForm carries the fields collected by the register view.
// Password material only lives here until the request is sent.
type RegistrationForm struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
	Phone           string
	Specialization  string
	Role            Role
}
