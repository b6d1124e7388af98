package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Search
	Search key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// Settings form
	Settings key.Binding

	// Dashboard sections
	Home          key.Binding
	Appointments  key.Binding
	Records       key.Binding
	Messages      key.Binding
	Notifications key.Binding

	// Actions
	MarkRead    key.Binding
	MarkAllRead key.Binding
	Compose     key.Binding
	Cancel      key.Binding
	Delete      key.Binding
	New         key.Binding
	Edit        key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Home: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "dashboard"),
		),
		Appointments: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "appointments"),
		),
		Records: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "medical records"),
		),
		Messages: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "messages"),
		),
		Notifications: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "notifications"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "mark read"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "mark all read"),
		),
		Compose: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "compose"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "cancel appointment"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Settings: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "settings"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.Quit, k.Help, k.Command,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.Search, k.Command, k.Help, k.Refresh, k.Settings},
		{k.Home, k.Appointments, k.Records, k.Messages, k.Notifications},
		{k.MarkRead, k.MarkAllRead, k.Compose, k.Cancel, k.Delete},
		{k.New, k.Edit},
	}
}
