package notifications

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// Item wraps a notification for the list. Header is set on the first
// item of the "Unread" and "Earlier" sections.
type Item struct {
	Notification model.Notification
	Header       string
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Content }

// Delegate implements list.ItemDelegate for notifications.
type Delegate struct{}

// Height returns the number of lines each item takes. Items that open
// a section take an extra line for the header.
func (d Delegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a notification line, preceded by its section header.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	header := ""
	if it.Header != "" {
		header = theme.SectionStyle.Render(it.Header)
	}

	marker := "  "
	if !n.Read {
		marker = lipgloss.NewStyle().Foreground(theme.ColorTeal).Render("● ")
	}
	line := fmt.Sprintf("%s%s %s %s",
		marker,
		theme.NotificationTypeStyle(string(n.Type)).Render(string(n.Type)),
		n.Content,
		theme.DimmedStyle.Render(relativeTime(n.Timestamp)),
	)

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}
	fmt.Fprintf(w, "%s\n%s", header, style.Render(line))
}

// relativeTime formats t relative to now, as "5m ago" or a date.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}
