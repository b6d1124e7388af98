package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/session"
)

func withSession(role model.Role, token bool) session.Effective {
	return session.Effective{
		Session:  &model.Session{UserID: "1", Role: role},
		HasToken: token,
		Source:   session.SourceMemory,
	}
}

func TestCheck(t *testing.T) {
	anonymous := session.Effective{}
	tokenOnly := session.Effective{HasToken: true, Source: session.SourceDurable}

	tests := []struct {
		name  string
		route string
		eff   session.Effective
		want  Decision
	}{
		{"root redirects", "/", withSession(model.RoleDoctor, true), Decision{Outcome: RedirectLogin, Target: Login}},
		{"unknown redirects", "/admin", withSession(model.RoleDoctor, true), Decision{Outcome: RedirectLogin, Target: Login}},
		{"login is public", "/login", anonymous, Decision{Outcome: Render, Target: Login}},
		{"register is public", "/register/", anonymous, Decision{Outcome: Render, Target: Register}},
		{"forgot is public", "/forgot-password?x=1", anonymous, Decision{Outcome: Render, Target: ForgotPassword}},
		{"no session no token", "/doctor-dashboard", anonymous, Decision{Outcome: RedirectLogin, Target: Login}},
		{"no session no token nested", "/patient-dashboard/messages", anonymous, Decision{Outcome: RedirectLogin, Target: Login}},
		{"patient on doctor route", "/doctor-dashboard/patients", withSession(model.RolePatient, true), Decision{Outcome: RedirectDashboard, Target: "/patient-dashboard"}},
		{"doctor on patient route", "/patient-dashboard", withSession(model.RoleDoctor, false), Decision{Outcome: RedirectDashboard, Target: "/doctor-dashboard"}},
		{"matching role", "/doctor-dashboard/messages", withSession(model.RoleDoctor, true), Decision{Outcome: Render, Target: "/doctor-dashboard/messages"}},
		{"session without token still renders", "/patient-dashboard", withSession(model.RolePatient, false), Decision{Outcome: Render, Target: "/patient-dashboard"}},
		{"token only is provisional", "/doctor-dashboard", tokenOnly, Decision{Outcome: Render, Target: "/doctor-dashboard", Provisional: true}},
		{"prefix lookalike is unknown", "/doctor-dashboards", withSession(model.RoleDoctor, true), Decision{Outcome: RedirectLogin, Target: Login}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.route, tt.eff))
		})
	}
}

func TestCheckNeverRendersForeignDashboard(t *testing.T) {
	for _, section := range []string{"", "appointments", "patients", "records", "messages", "notifications"} {
		d := Check(Dashboard(model.RoleDoctor, section), withSession(model.RolePatient, true))
		assert.Equal(t, RedirectDashboard, d.Outcome, section)
		assert.Equal(t, "/patient-dashboard", d.Target, section)
	}
}

func TestSection(t *testing.T) {
	assert.Equal(t, "", Section("/doctor-dashboard"))
	assert.Equal(t, "messages", Section("/patient-dashboard/messages/"))
	assert.Equal(t, "", Section("/login"))
	assert.Equal(t, "/patient-dashboard/records", Dashboard(model.RolePatient, "records"))
}
