package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/model"
)

func at(id model.ID, ts time.Time) model.Message {
	return model.Message{ID: id, Timestamp: ts}
}

func TestGroupByDateLabels(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		at("1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
		at("2", time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)),
		at("3", time.Date(2026, 3, 13, 23, 59, 0, 0, time.UTC)),
		at("4", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)),
	}

	groups := GroupByDate(msgs, now)
	require.Len(t, groups, 3)
	assert.Equal(t, "Mar 10, 2026", groups[0].Label)
	assert.Equal(t, "Yesterday", groups[1].Label)
	assert.Len(t, groups[1].Messages, 2)
	assert.Equal(t, "Today", groups[2].Label)
}

func TestGroupByDateIsPartition(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(3))

	for run := 0; run < 50; run++ {
		n := rng.Intn(30)
		msgs := make([]model.Message, n)
		for i := range msgs {
			// Unsorted on purpose: grouping must never reorder.
			ts := now.Add(-time.Duration(rng.Intn(96)) * time.Hour)
			msgs[i] = at(model.ID(rune('a'+i)), ts)
		}

		var flat []model.Message
		for _, g := range GroupByDate(msgs, now) {
			require.NotEmpty(t, g.Messages)
			flat = append(flat, g.Messages...)
		}
		if n == 0 {
			assert.Empty(t, flat)
			continue
		}
		assert.Equal(t, msgs, flat)
	}
}

func TestBuildConversations(t *testing.T) {
	self := model.Session{UserID: "p1", Role: model.RolePatient}
	msgs := []model.Message{
		{ID: "1", SenderID: "d1", SenderRole: model.RoleDoctor, RecipientID: "p1", Content: "older thread", Timestamp: base},
		{ID: "2", SenderID: "d2", SenderRole: model.RoleDoctor, RecipientID: "p1", Content: "newer thread", Timestamp: base.Add(time.Hour)},
		{ID: "3", SenderID: "p1", SenderRole: model.RolePatient, RecipientID: "d1", Content: "reply", Timestamp: base.Add(-time.Hour)},
		{ID: "4", SenderID: "d9", SenderRole: model.RoleDoctor, RecipientID: "p9", Content: "not mine", Timestamp: base},
	}

	convs := BuildConversations(self, msgs)
	require.Len(t, convs, 2)
	assert.Equal(t, "d2:p1", convs[0].ID)
	assert.Equal(t, "d1:p1", convs[1].ID)
	assert.Equal(t, model.ID("d1"), convs[1].Counterpart(model.RolePatient))
	require.Len(t, convs[1].Messages, 2)
	assert.Equal(t, model.ID("3"), convs[1].Messages[0].ID)
	assert.Equal(t, 1, convs[1].UnreadFor("p1", model.RolePatient))
}

func TestFilterConversations(t *testing.T) {
	convs := []model.Conversation{
		{ID: "d1:p1", DoctorID: "d1", PatientID: "p1", Messages: []model.Message{{Content: "Blood test results"}}},
		{ID: "d2:p1", DoctorID: "d2", PatientID: "p1", Messages: []model.Message{{Content: "See you soon"}}},
	}
	names := map[model.ID]string{"d1": "Dr. Smith", "d2": "Dr. Johnson"}
	nameOf := func(id model.ID) string { return names[id] }

	assert.Len(t, FilterConversations(convs, model.RolePatient, "", nameOf), 2)

	got := FilterConversations(convs, model.RolePatient, "JOHN", nameOf)
	require.Len(t, got, 1)
	assert.Equal(t, "d2:p1", got[0].ID)

	got = FilterConversations(convs, model.RolePatient, "blood", nil)
	require.Len(t, got, 1)
	assert.Equal(t, "d1:p1", got[0].ID)
}
