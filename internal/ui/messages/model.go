package messages

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/reconcile"
	"github.com/nhle/ehr-terminal/internal/theme"
)

// LoadedMsg carries the cached conversations of the signed-in user.
type LoadedMsg struct {
	Gen           int
	Conversations []model.Conversation
}

// OpenMsg is dispatched when a conversation is opened.
type OpenMsg struct {
	ConversationID string
}

// SendMsg asks the app to append and send a message.
type SendMsg struct {
	ConversationID string
	Content        string
}

type focus int

const (
	focusList focus = iota
	focusThread
	focusCompose
	focusSearch
)

// Model is the messages view: a searchable conversation list next to
// the open thread and a compose line.
type Model struct {
	keys     *keys.KeyMap
	self     model.Session
	contacts map[model.ID]string
	all      []model.Conversation
	shown    []model.Conversation
	cursor   int
	openID   string
	focus    focus
	search   textinput.Model
	compose  textinput.Model
	thread   viewport.Model
	now      func() time.Time
	width    int
	height   int
}

// New creates a new messages view.
func New(k *keys.KeyMap, width, height int) Model {
	si := textinput.New()
	si.Placeholder = "search conversations..."
	si.Prompt = "/ "

	ci := textinput.New()
	ci.Placeholder = "type a message..."
	ci.Prompt = "> "
	ci.CharLimit = 2000

	m := Model{
		keys:     k,
		contacts: make(map[model.ID]string),
		search:   si,
		compose:  ci,
		thread:   viewport.New(width, height),
		now:      time.Now,
	}
	m.SetSize(width, height)
	return m
}

// SetSelf sets the signed-in user the conversations belong to.
func (m *Model) SetSelf(self model.Session) {
	if m.self.UserID != self.UserID || m.self.Role != self.Role {
		m.openID = ""
		m.cursor = 0
	}
	m.self = self
}

// SetContacts names the people self can message. Contacts without a
// conversation yet are listed as empty conversations.
func (m *Model) SetContacts(contacts map[model.ID]string) {
	m.contacts = contacts
	m.refilter()
}

// Conversations returns the conversations currently listed.
func (m Model) Conversations() []model.Conversation { return m.shown }

// OpenID returns the id of the open conversation.
func (m Model) OpenID() string { return m.openID }

// Capturing reports whether a text input has focus, so global keys
// must not be intercepted.
func (m Model) Capturing() bool {
	return m.focus == focusCompose || m.focus == focusSearch
}

// Update handles messages for the messages view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.all = msg.Conversations
		m.refilter()
		m.renderThread()
		return m, nil

	case tea.KeyMsg:
		switch m.focus {
		case focusSearch:
			return m.updateSearch(msg)
		case focusCompose:
			return m.updateCompose(msg)
		case focusThread:
			return m.updateThread(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.shown)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Search):
		m.focus = focusSearch
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Select):
		if m.cursor >= len(m.shown) {
			return m, nil
		}
		m.openID = m.shown[m.cursor].ID
		m.focus = focusThread
		m.renderThread()
		id := m.openID
		return m, func() tea.Msg { return OpenMsg{ConversationID: id} }
	}
	return m, nil
}

func (m Model) updateThread(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.focus = focusList
		return m, nil
	case key.Matches(msg, m.keys.Compose):
		m.focus = focusCompose
		return m, m.compose.Focus()
	}
	var cmd tea.Cmd
	m.thread, cmd = m.thread.Update(msg)
	return m, cmd
}

func (m Model) updateCompose(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.compose.Blur()
		m.focus = focusThread
		return m, nil
	case "enter":
		content := strings.TrimSpace(m.compose.Value())
		if content == "" || m.openID == "" {
			return m, nil
		}
		m.compose.Reset()
		id := m.openID
		return m, func() tea.Msg { return SendMsg{ConversationID: id, Content: content} }
	}
	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.Reset()
		m.search.Blur()
		m.focus = focusList
		m.refilter()
		return m, nil
	case "enter":
		m.search.Blur()
		m.focus = focusList
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.refilter()
	return m, cmd
}

// nameOf resolves a counterpart's display name.
func (m Model) nameOf(id model.ID) string {
	if name, ok := m.contacts[id]; ok && name != "" {
		return name
	}
	if m.self.Role == model.RolePatient {
		return fmt.Sprintf("Doctor #%s", id)
	}
	return fmt.Sprintf("Patient #%s", id)
}

// withContacts adds an empty conversation for every contact self has
// not talked to yet. They sort after the active conversations.
func (m Model) withContacts(convs []model.Conversation) []model.Conversation {
	seen := make(map[model.ID]bool, len(convs))
	for _, c := range convs {
		seen[c.Counterpart(m.self.Role)] = true
	}

	var extra []model.Conversation
	for id := range m.contacts {
		if seen[id] || id == "" {
			continue
		}
		c := model.Conversation{DoctorID: m.self.UserID, PatientID: id}
		if m.self.Role == model.RolePatient {
			c = model.Conversation{DoctorID: id, PatientID: m.self.UserID}
		}
		c.ID = model.ConversationID(c.DoctorID, c.PatientID)
		extra = append(extra, c)
	}
	sort.Slice(extra, func(a, b int) bool {
		return m.nameOf(extra[a].Counterpart(m.self.Role)) < m.nameOf(extra[b].Counterpart(m.self.Role))
	})

	return append(append([]model.Conversation(nil), convs...), extra...)
}

func (m *Model) refilter() {
	m.shown = reconcile.FilterConversations(m.withContacts(m.all), m.self.Role, m.search.Value(), m.nameOf)
	if m.cursor >= len(m.shown) {
		m.cursor = len(m.shown) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) openConversation() (model.Conversation, bool) {
	for _, c := range m.withContacts(m.all) {
		if c.ID == m.openID {
			return c, true
		}
	}
	return model.Conversation{}, false
}

func (m *Model) renderThread() {
	c, ok := m.openConversation()
	if !ok {
		m.thread.SetContent(theme.DimmedStyle.Render("Select a conversation to start messaging."))
		return
	}

	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render(m.nameOf(c.Counterpart(m.self.Role))))
	b.WriteString("\n")
	if len(c.Messages) == 0 {
		b.WriteString(theme.DimmedStyle.Render("No messages yet. Press c to write one."))
	}

	bubbleWidth := m.thread.Width * 2 / 3
	for _, g := range reconcile.GroupByDate(c.Messages, m.now()) {
		b.WriteString(lipgloss.PlaceHorizontal(m.thread.Width, lipgloss.Center, theme.DimmedStyle.Render(g.Label)))
		b.WriteString("\n")
		for _, msg := range g.Messages {
			b.WriteString(m.renderMessage(msg, bubbleWidth))
			b.WriteString("\n")
		}
	}
	m.thread.SetContent(b.String())
	m.thread.GotoBottom()
}

func (m Model) renderMessage(msg model.Message, width int) string {
	own := msg.SentBy(m.self.UserID, m.self.Role)
	style := theme.PeerMessageStyle
	align := lipgloss.Left
	if own {
		style = theme.OwnMessageStyle
		align = lipgloss.Right
	}

	body := msg.Content
	for _, a := range msg.Attachments {
		body += fmt.Sprintf("\n[%s] %s %s", a.Kind, a.Name, a.Size)
	}

	meta := msg.Timestamp.Local().Format("3:04 PM")
	if own && msg.IsRead() {
		meta += " · read"
	}

	bubble := lipgloss.JoinVertical(align,
		style.MaxWidth(width).Render(body),
		theme.DimmedStyle.Render(meta),
	)
	return lipgloss.PlaceHorizontal(m.thread.Width, align, bubble)
}

// View renders the messages view.
func (m Model) View() string {
	listWidth := m.width / 3
	if listWidth < 24 {
		listWidth = 24
	}

	var rows []string
	if m.focus == focusSearch || m.search.Value() != "" {
		rows = append(rows, m.search.View())
	}
	if len(m.shown) == 0 {
		rows = append(rows, theme.DimmedStyle.Render("No conversations."))
	}
	for i, c := range m.shown {
		name := m.nameOf(c.Counterpart(m.self.Role))
		preview := ""
		if last, ok := c.LastMessage(); ok {
			preview = last.Content
			if preview == "" && len(last.Attachments) > 0 {
				preview = "[attachment]"
			}
		}
		if unread := c.UnreadFor(m.self.UserID, m.self.Role); unread > 0 {
			name = fmt.Sprintf("%s (%d)", name, unread)
		}
		line := lipgloss.JoinVertical(lipgloss.Left,
			name,
			theme.DimmedStyle.MaxWidth(listWidth-4).Render(preview),
		)
		style := theme.ListItemStyle
		if i == m.cursor {
			style = theme.SelectedItemStyle
		}
		rows = append(rows, style.Render(line))
	}

	list := lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height).
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	right := m.thread.View()
	if m.openID != "" {
		right = lipgloss.JoinVertical(lipgloss.Left, right, m.compose.View())
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, list, right)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height

	listWidth := width / 3
	if listWidth < 24 {
		listWidth = 24
	}
	m.thread.Width = width - listWidth - 2
	m.thread.Height = height - 2
	m.search.Width = listWidth - 4
	m.compose.Width = m.thread.Width - 4
	m.renderThread()
}
