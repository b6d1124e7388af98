package messages

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/keys"
	"github.com/nhle/ehr-terminal/internal/model"
)

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func newDoctorView(t *testing.T) Model {
	t.Helper()
	m := New(keys.DefaultKeyMap(), 100, 30)
	m.SetSelf(model.Session{UserID: "1", DisplayName: "Dr. Smith", Role: model.RoleDoctor})

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := model.Conversation{
		ID:        model.ConversationID("1", "10"),
		DoctorID:  "1",
		PatientID: "10",
		Messages: []model.Message{
			{ID: "m1", SenderID: "10", SenderRole: model.RolePatient, RecipientID: "1", Content: "My knee still hurts", Timestamp: at},
		},
	}
	m, _ = m.Update(LoadedMsg{Conversations: []model.Conversation{conv}})
	m.SetContacts(map[model.ID]string{"10": "Jane Doe", "11": "John Smith"})
	return m
}

func TestContactsWithoutConversationAreListed(t *testing.T) {
	m := newDoctorView(t)

	convs := m.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, model.ID("10"), convs[0].PatientID, "active conversation first")
	assert.Equal(t, model.ID("11"), convs[1].PatientID)
	assert.Empty(t, convs[1].Messages)
	assert.Equal(t, model.ConversationID("1", "11"), convs[1].ID)
}

func TestSearchByNameAndContent(t *testing.T) {
	m := newDoctorView(t)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	require.True(t, m.Capturing())

	m = typeText(m, "john")
	require.Len(t, m.Conversations(), 1)
	assert.Equal(t, model.ID("11"), m.Conversations()[0].PatientID)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.Capturing())
	assert.Len(t, m.Conversations(), 2)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m = typeText(m, "KNEE")
	require.Len(t, m.Conversations(), 1)
	assert.Equal(t, model.ID("10"), m.Conversations()[0].PatientID)
}

func TestOpenAndSend(t *testing.T) {
	m := newDoctorView(t)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, OpenMsg{ConversationID: "1:10"}, cmd())
	assert.Equal(t, "1:10", m.OpenID())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.True(t, m.Capturing())

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "blank message is not sent")

	m = typeText(m, "Ice it twice a day")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SendMsg{ConversationID: "1:10", Content: "Ice it twice a day"}, cmd())
}

func TestNameFallback(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetSelf(model.Session{UserID: "10", Role: model.RolePatient})
	assert.Equal(t, "Doctor #4", m.nameOf("4"))

	m.SetSelf(model.Session{UserID: "1", Role: model.RoleDoctor})
	assert.Equal(t, "Patient #4", m.nameOf("4"))
}
