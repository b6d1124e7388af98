package model

// Activity is one line of the recent-activity log.
type Activity struct {
	Description string `json:"description"`
	Time        string `json:"time"`
}

// Stats is the per-role aggregate returned by /api/{role}/stats.
// Doctor and patient dashboards each use a subset of the counters.
type Stats struct {
	TotalPatients        int        `json:"totalPatients,omitempty"`
	TodayAppointments    int        `json:"todayAppointments,omitempty"`
	PendingReports       int        `json:"pendingReports,omitempty"`
	UpcomingAppointments int        `json:"upcomingAppointments,omitempty"`
	ActivePrescriptions  int        `json:"activePrescriptions,omitempty"`
	UnreadMessages       int        `json:"unreadMessages"`
	RecentActivity       []Activity `json:"recentActivity"`
}

// DashboardSummary is the fully resolved content of a dashboard home
// view. It is recomputed on every mount.
type DashboardSummary struct {
	Role          Role
	Stats         Stats
	Appointments  []Appointment
	Patients      []Patient
	Prescriptions []Prescription
	HealthMetrics HealthMetrics

	// Fallbacks names the fields that were filled from static defaults
	// because their fetch failed.
	Fallbacks []string
}

// UsedFallback reports whether the named field fell back.
func (s DashboardSummary) UsedFallback(field string) bool {
	for _, f := range s.Fallbacks {
		if f == field {
			return true
		}
	}
	return false
}
