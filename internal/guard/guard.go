package guard

import (
	"strings"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/session"
)

// Public routes.
const (
	Root           = "/"
	Login          = "/login"
	Register       = "/register"
	ForgotPassword = "/forgot-password"
)

// Outcome is what the router should do with a navigation.
type Outcome int

const (
	Render Outcome = iota
	RedirectLogin
	RedirectDashboard
)

func (o Outcome) String() string {
	switch o {
	case RedirectLogin:
		return "redirect-login"
	case RedirectDashboard:
		return "redirect-dashboard"
	default:
		return "render"
	}
}

// Decision is the result of Check.
type Decision struct {
	Outcome Outcome

	// Target is the route to go to for redirects, and the normalized
	// requested route for Render.
	Target string

	// Provisional is set when a protected route renders on a token
	// alone; the view must discover the identity itself.
	Provisional bool
}

// Normalize strips query, fragment and trailing slashes.
func Normalize(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	route = strings.TrimSpace(route)
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	for len(route) > 1 && strings.HasSuffix(route, "/") {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}

// IsPublic reports whether route is reachable without a session.
func IsPublic(route string) bool {
	switch Normalize(route) {
	case Login, Register, ForgotPassword:
		return true
	}
	return false
}

// RequiredRole returns the role a protected route needs.
func RequiredRole(route string) (model.Role, bool) {
	route = Normalize(route)
	for _, role := range []model.Role{model.RoleDoctor, model.RolePatient} {
		base := role.DashboardPath()
		if route == base || strings.HasPrefix(route, base+"/") {
			return role, true
		}
	}
	return "", false
}

// Section returns the dashboard sub-route, e.g. "messages" for
// "/doctor-dashboard/messages". The dashboard root is "".
func Section(route string) string {
	route = Normalize(route)
	role, ok := RequiredRole(route)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(strings.TrimPrefix(route, role.DashboardPath()), "/")
}

// Dashboard builds the route of a dashboard section for role.
func Dashboard(role model.Role, section string) string {
	if section == "" {
		return role.DashboardPath()
	}
	return role.DashboardPath() + "/" + strings.Trim(section, "/")
}

// Check decides whether route may render for the effective session.
func Check(route string, eff session.Effective) Decision {
	route = Normalize(route)

	if IsPublic(route) {
		return Decision{Outcome: Render, Target: route}
	}

	required, protected := RequiredRole(route)
	if !protected {
		// "/" and unknown routes both land on the login view.
		return Decision{Outcome: RedirectLogin, Target: Login}
	}

	if eff.Session == nil {
		if eff.HasToken {
			return Decision{Outcome: Render, Target: route, Provisional: true}
		}
		return Decision{Outcome: RedirectLogin, Target: Login}
	}

	if eff.Session.Role != required {
		if !eff.Session.Role.Valid() {
			return Decision{Outcome: RedirectLogin, Target: Login}
		}
		return Decision{Outcome: RedirectDashboard, Target: eff.Session.Role.DashboardPath()}
	}

	return Decision{Outcome: Render, Target: route}
}
