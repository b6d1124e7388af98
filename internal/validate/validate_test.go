package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/ehr-terminal/internal/model"
)

func validForm() model.RegistrationForm {
	return model.RegistrationForm{
		FullName:        "Asha Rao",
		Email:           "asha@example.com",
		Password:        "Str0ng!pass",
		ConfirmPassword: "Str0ng!pass",
		Phone:           "+919876543210",
		Role:            model.RolePatient,
	}
}

func messageOf(err error) string {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.UserMessage()
	}
	return ""
}

func TestRegistration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *model.RegistrationForm)
		want   string
	}{
		{"valid patient", func(f *model.RegistrationForm) {}, ""},
		{"mismatch", func(f *model.RegistrationForm) { f.ConfirmPassword = "other" }, "Passwords do not match"},
		{"short", func(f *model.RegistrationForm) { f.Password, f.ConfirmPassword = "S0!a", "S0!a" }, "Password must be at least 8 characters long"},
		{"no upper", func(f *model.RegistrationForm) { f.Password, f.ConfirmPassword = "str0ng!pass", "str0ng!pass" }, "Password must contain at least one uppercase letter"},
		{"no lower", func(f *model.RegistrationForm) { f.Password, f.ConfirmPassword = "STR0NG!PASS", "STR0NG!PASS" }, "Password must contain at least one lowercase letter"},
		{"no digit", func(f *model.RegistrationForm) { f.Password, f.ConfirmPassword = "Strong!pass", "Strong!pass" }, "Password must contain at least one number"},
		{"no special", func(f *model.RegistrationForm) { f.Password, f.ConfirmPassword = "Str0ngpass", "Str0ngpass" }, "Password must contain at least one special character"},
		{"bad email", func(f *model.RegistrationForm) { f.Email = "asha@" }, "Please enter a valid email address"},
		{"bad phone", func(f *model.RegistrationForm) { f.Phone = "0123" }, "Please enter a valid phone number"},
		{"doctor without specialization", func(f *model.RegistrationForm) { f.Role = model.RoleDoctor }, "Specialization is required for doctors"},
		{"doctor with specialization", func(f *model.RegistrationForm) {
			f.Role = model.RoleDoctor
			f.Specialization = "Cardiology"
		}, ""},
		{"missing name", func(f *model.RegistrationForm) { f.FullName = " " }, "Full name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)
			err := Registration(f)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, messageOf(err))
		})
	}
}

func TestLogin(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Email is required", messageOf(Login("", "x", model.RoleDoctor)))
	assert.Equal("Password is required", messageOf(Login("a@b.co", "", model.RoleDoctor)))
	assert.Equal("Please select doctor or patient", messageOf(Login("a@b.co", "x", "")))
	assert.NoError(Login("a@b.co", "x", model.RolePatient))
}
