package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/theme"
)

// Layout manages the terminal frame: header, optional banner, content
// and status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header, the banner line and the status bar.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight - 1
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the top bar: the title on the left and the
// signed-in user plus sync state on the right.
func (l Layout) RenderHeader(title, right string) string {
	return l.fill(theme.HeaderStyle, theme.HeaderStyle.Render(title), theme.HeaderStyle.Render(right))
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.fill(theme.StatusBarStyle, theme.StatusBarStyle.Render(hints), "")
}

// RenderBanner renders a one-line message under the header. Errors win
// over notices; an empty banner still takes its line so the content
// does not jump.
func (l Layout) RenderBanner(errMsg, notice string) string {
	switch {
	case errMsg != "":
		return lipgloss.NewStyle().Width(l.Width).Padding(0, 1).Render(theme.ErrorStyle.Render(errMsg))
	case notice != "":
		return lipgloss.NewStyle().Width(l.Width).Padding(0, 1).Render(theme.NoticeStyle.Render(notice))
	default:
		return lipgloss.NewStyle().Width(l.Width).Render("")
	}
}

func (l Layout) fill(style lipgloss.Style, left, right string) string {
	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, banner, content area and status bar.
func (l Layout) RenderWithFrame(header, banner, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		banner,
		content,
		statusBar,
	)
}
