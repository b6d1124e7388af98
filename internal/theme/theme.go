package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorTeal    = lipgloss.AdaptiveColor{Dark: "#38D9A9", Light: "#0F766E"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorTeal).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps a content panel.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// TitleStyle is the bold heading at the top of a view.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	MarginBottom(1)

// SectionStyle heads a group inside a view ("Unread", "Today").
var SectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorTeal)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// DimmedStyle renders secondary text such as timestamps.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// ErrorStyle renders user-facing error messages.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// NoticeStyle renders non-error banners such as the welcome message.
var NoticeStyle = lipgloss.NewStyle().
	Foreground(ColorGreen)

// WarningStyle renders the "showing sample data" banner.
var WarningStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// OwnMessageStyle and PeerMessageStyle render chat bubbles.
var (
	OwnMessageStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Background(ColorBlue).
			Padding(0, 1)
	PeerMessageStyle = lipgloss.NewStyle().
				Foreground(ColorWhite).
				Background(ColorSubtle).
				Padding(0, 1)
)

// AppointmentStatusStyle returns a color-coded style for an
// appointment status.
func AppointmentStatusStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case "confirmed", "completed":
		return base.Foreground(ColorGreen)
	case "pending", "scheduled":
		return base.Foreground(ColorYellow)
	case "cancelled":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// NotificationTypeStyle returns a color-coded style for a notification
// type label.
func NotificationTypeStyle(kind string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch kind {
	case "appointment":
		return base.Foreground(ColorBlue)
	case "message":
		return base.Foreground(ColorGreen)
	case "record":
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}

// AdherenceStyle colors an adherence band.
func AdherenceStyle(band string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch band {
	case "good":
		return base.Foreground(ColorGreen)
	case "fair":
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorRed)
	}
}

// RoleStyle returns the label style for a role badge.
func RoleStyle(role string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch role {
	case "doctor":
		return base.Foreground(ColorBlue)
	case "patient":
		return base.Foreground(ColorOrange)
	default:
		return base.Foreground(ColorGray)
	}
}
