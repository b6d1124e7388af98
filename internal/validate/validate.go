package validate

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mcnijman/go-emailaddress"

	"github.com/nhle/ehr-terminal/internal/model"
)

// Error is a field-level input problem. Its message is safe to show to
// the user verbatim.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// UserMessage returns the text shown next to the form.
func (e *Error) UserMessage() string {
	return e.Message
}

func fail(field, msg string) *Error {
	return &Error{Field: field, Message: msg}
}

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// Required fails when value is blank.
func Required(field, label, value string) error {
	if strings.TrimSpace(value) == "" {
		return fail(field, label+" is required")
	}
	return nil
}

// Email checks the syntax of an address. Blank input reports as missing.
func Email(value string) error {
	if err := Required("email", "Email", value); err != nil {
		return err
	}
	if _, err := emailaddress.Parse(strings.TrimSpace(value)); err != nil {
		return fail("email", "Please enter a valid email address")
	}
	return nil
}

// Password enforces the registration password policy.
func Password(value string) error {
	if len(value) < MinPasswordLength {
		return fail("password", "Password must be at least 8 characters long")
	}

	var upper, lower, digit, special bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	switch {
	case !upper:
		return fail("password", "Password must contain at least one uppercase letter")
	case !lower:
		return fail("password", "Password must contain at least one lowercase letter")
	case !digit:
		return fail("password", "Password must contain at least one number")
	case !special:
		return fail("password", "Password must contain at least one special character")
	}
	return nil
}

// Phone checks an E.164-style number, with or without the leading "+".
func Phone(value string) error {
	if !phonePattern.MatchString(strings.TrimSpace(value)) {
		return fail("phone", "Please enter a valid phone number")
	}
	return nil
}

// Role checks that a role was chosen.
func Role(r model.Role) error {
	if !r.Valid() {
		return fail("role", "Please select doctor or patient")
	}
	return nil
}

// Login validates the sign-in form before any request is made.
func Login(email, password string, role model.Role) error {
	if err := Email(email); err != nil {
		return err
	}
	if password == "" {
		return fail("password", "Password is required")
	}
	return Role(role)
}

// Confirm fails when the repeated password differs.
func Confirm(password, confirm string) error {
	if password != confirm {
		return fail("confirmPassword", "Passwords do not match")
	}
	return nil
}

// Registration validates the register form. The first failing rule is
// reported.
func Registration(f model.RegistrationForm) error {
	if err := Required("fullName", "Full name", f.FullName); err != nil {
		return err
	}
	if err := Role(f.Role); err != nil {
		return err
	}
	if err := Confirm(f.Password, f.ConfirmPassword); err != nil {
		return err
	}
	if err := Password(f.Password); err != nil {
		return err
	}
	if err := Email(f.Email); err != nil {
		return err
	}
	if err := Phone(f.Phone); err != nil {
		return err
	}
	if f.Role == model.RoleDoctor && strings.TrimSpace(f.Specialization) == "" {
		return fail("specialization", "Specialization is required for doctors")
	}
	return nil
}
