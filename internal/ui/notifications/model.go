package notifications

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// LoadedMsg carries the cached notifications split by read state.
type LoadedMsg struct {
	Gen     int
	Unread  []model.Notification
	Earlier []model.Notification
}

// MarkReadMsg asks the app to mark one notification read.
type MarkReadMsg struct {
	ID model.ID
}

// MarkAllReadMsg asks the app to mark every notification read.
type MarkAllReadMsg struct{}

// Model is the notifications view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	unread int
	width  int
	height int
}

// New creates a new notifications view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Unread returns the number of unread notifications shown.
func (m Model) Unread() int { return m.unread }

// Items returns the notifications in display order.
func (m Model) Items() []model.Notification {
	items := m.list.Items()
	out := make([]model.Notification, 0, len(items))
	for _, it := range items {
		if n, ok := it.(Item); ok {
			out = append(out, n.Notification)
		}
	}
	return out
}

// Update handles messages for the notifications view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.unread = len(msg.Unread)
		items := make([]list.Item, 0, len(msg.Unread)+len(msg.Earlier))
		for i, n := range msg.Unread {
			it := Item{Notification: n}
			if i == 0 {
				it.Header = "Unread"
			}
			items = append(items, it)
		}
		for i, n := range msg.Earlier {
			it := Item{Notification: n}
			if i == 0 {
				it.Header = "Earlier"
			}
			items = append(items, it)
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.MarkRead), key.Matches(msg, m.keys.Select):
			it, ok := m.list.SelectedItem().(Item)
			if !ok || it.Notification.Read {
				return m, nil
			}
			id := it.Notification.ID
			return m, func() tea.Msg { return MarkReadMsg{ID: id} }

		case key.Matches(msg, m.keys.MarkAllRead):
			if m.unread == 0 {
				return m, nil
			}
			return m, func() tea.Msg { return MarkAllReadMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the notifications view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notifications.\nYou're all caught up.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
