package home

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/model"
)

func doctor() model.Session {
	return model.Session{UserID: "1", DisplayName: "Dr. Smith", Role: model.RoleDoctor}
}

func TestStaleGenerationIgnored(t *testing.T) {
	m := New(80, 24)
	first, _ := m.Mount(doctor())
	m.Unmount()
	second, _ := m.Mount(doctor())
	require.NotEqual(t, first, second)

	m, _ = m.Update(LoadedMsg{Gen: first, Summary: model.DashboardSummary{Role: model.RoleDoctor}})
	_, ok := m.Summary()
	assert.False(t, ok)
	assert.True(t, m.Loading())

	m, _ = m.Update(LoadedMsg{Gen: second, Summary: model.DashboardSummary{
		Role:  model.RoleDoctor,
		Stats: model.Stats{TotalPatients: 42},
	}})
	sum, ok := m.Summary()
	require.True(t, ok)
	assert.Equal(t, 42, sum.Stats.TotalPatients)
	assert.False(t, m.Loading())
	assert.Contains(t, m.View(), "42")
}

func TestUnmountDropsInFlightResult(t *testing.T) {
	m := New(80, 24)
	gen, _ := m.Mount(doctor())
	m.Unmount()

	m, _ = m.Update(LoadedMsg{Gen: gen})
	_, ok := m.Summary()
	assert.False(t, ok)
}

func TestFailedLoadStopsSpinner(t *testing.T) {
	m := New(80, 24)
	gen, _ := m.Mount(doctor())

	m, _ = m.Update(LoadedMsg{Gen: gen, Err: errors.New("boom")})
	assert.False(t, m.Loading())
	_, ok := m.Summary()
	assert.False(t, ok)
}

func TestAdherenceLine(t *testing.T) {
	history := []model.MedicationDay{
		{Doses: []model.Dose{{Status: model.DoseTaken}, {Status: model.DoseTaken}}},
		{Doses: []model.Dose{{Status: model.DoseMissed}, {Status: model.DoseTaken}}},
	}
	assert.Contains(t, adherenceLine(history), "75%")
	assert.Contains(t, adherenceLine(nil), "0% adherence")
}
