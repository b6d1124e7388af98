package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/nhle/ehr-terminal/internal/model"
)

// DateLayout formats days older than yesterday.
const DateLayout = "Jan 2, 2006"

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayLabel names the calendar day of t relative to now.
func DayLabel(t, now time.Time) string {
	loc := now.Location()
	day := midnight(t, loc)
	today := midnight(now, loc)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(time.Date(today.Year(), today.Month(), today.Day()-1, 0, 0, 0, 0, loc)):
		return "Yesterday"
	default:
		return day.Format(DateLayout)
	}
}

// GroupByDate splits messages into runs of the same calendar day,
// evaluated in now's location. Input order is kept exactly: the groups
// concatenated reproduce messages. Input is expected to be sorted; it
// is not re-sorted.
func GroupByDate(messages []model.Message, now time.Time) []model.MessageGroup {
	var groups []model.MessageGroup
	loc := now.Location()
	for _, m := range messages {
		day := midnight(m.Timestamp, loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, model.MessageGroup{
			Day:      day,
			Label:    DayLabel(m.Timestamp, now),
			Messages: []model.Message{m},
		})
	}
	return groups
}

// participants returns the doctor and patient of a message.
func participants(m model.Message) (doctor, patient model.ID) {
	if m.SenderRole == model.RolePatient {
		return m.RecipientID, m.SenderID
	}
	return m.SenderID, m.RecipientID
}

// BuildConversations derives self's conversations from a flat message
// list. Messages inside a conversation are ordered by time (stable for
// equal times); conversations are ordered by their last message, most
// recent first.
func BuildConversations(self model.Session, messages []model.Message) []model.Conversation {
	index := make(map[string]int)
	var convs []model.Conversation

	for _, m := range messages {
		doctor, patient := participants(m)
		if self.Role == model.RoleDoctor && doctor != self.UserID {
			continue
		}
		if self.Role == model.RolePatient && patient != self.UserID {
			continue
		}

		id := m.ConversationID
		if id == "" {
			id = model.ConversationID(doctor, patient)
			m.ConversationID = id
		}
		i, ok := index[id]
		if !ok {
			i = len(convs)
			index[id] = i
			convs = append(convs, model.Conversation{ID: id, DoctorID: doctor, PatientID: patient})
		}
		convs[i].Messages = append(convs[i].Messages, m)
	}

	for i := range convs {
		msgs := convs[i].Messages
		sort.SliceStable(msgs, func(a, b int) bool {
			return msgs[a].Timestamp.Before(msgs[b].Timestamp)
		})
	}

	sort.SliceStable(convs, func(a, b int) bool {
		la, _ := convs[a].LastMessage()
		lb, _ := convs[b].LastMessage()
		return la.Timestamp.After(lb.Timestamp)
	})
	return convs
}

// FilterConversations keeps conversations whose counterpart name or
// any message contains term, ignoring case. nameOf resolves the
// counterpart's display name and may be nil.
func FilterConversations(
	convs []model.Conversation,
	self model.Role,
	term string,
	nameOf func(model.ID) string,
) []model.Conversation {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return convs
	}

	var out []model.Conversation
	for _, c := range convs {
		if nameOf != nil && strings.Contains(strings.ToLower(nameOf(c.Counterpart(self))), term) {
			out = append(out, c)
			continue
		}
		for _, m := range c.Messages {
			if strings.Contains(strings.ToLower(m.Content), term) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
