package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want CommandMsg
	}{
		{"refresh", CommandMsg{Name: "refresh"}},
		{"  Logout  ", CommandMsg{Name: "logout"}},
		{"goto /Doctor-Dashboard/messages", CommandMsg{Name: "goto", Arg: "/Doctor-Dashboard/messages"}},
		{"GO   /login ", CommandMsg{Name: "go", Arg: "/login"}},
		{"", CommandMsg{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.line))
		})
	}
}

func TestEnterEmitsCommand(t *testing.T) {
	m := New(80, 24)
	m.Focus()
	for _, r := range "goto /register" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: "goto", Arg: "/register"}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "empty line runs nothing")
}
