package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/nhle/ehr-terminal/internal/model"
)

type memNotification struct {
	n       model.Notification
	pending bool
}

type memMessage struct {
	m       model.Message
	pending string
}

// MemoryStore is an in-process Store. Each instance is independent, so
// tests and short-lived sessions get their own table.
type MemoryStore struct {
	mu            gosync.Mutex
	slots         map[string]string
	notifications []*memNotification
	messages      []*memMessage
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]string)}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetSlot(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.slots[key]
	return v, ok, nil
}

func (s *MemoryStore) PutSlots(_ context.Context, slots map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range slots {
		s.slots[k] = v
	}
	return nil
}

func (s *MemoryStore) DeleteSlots(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.slots, k)
	}
	return nil
}

func (s *MemoryStore) findNotification(id model.ID) *memNotification {
	for _, n := range s.notifications {
		if n.n.ID == id {
			return n
		}
	}
	return nil
}

func (s *MemoryStore) UpsertNotifications(_ context.Context, ns []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range ns {
		if n.ID == "" {
			n.ID = model.ID(uuid.New().String())
		}
		n.Type = model.ParseNotificationType(string(n.Type))
		existing := s.findNotification(n.ID)
		if existing == nil {
			s.notifications = append(s.notifications, &memNotification{n: n})
			continue
		}
		read := existing.n.Read || n.Read
		if n.Read {
			existing.pending = false
		}
		existing.n = n
		existing.n.Read = read
	}
	return nil
}

func (s *MemoryStore) GetNotifications(_ context.Context, f NotificationFilter) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.notifications {
		if n.n.UserID != f.UserID {
			continue
		}
		if f.UnreadOnly && n.n.Read {
			continue
		}
		if f.Type != nil && n.n.Type != *f.Type {
			continue
		}
		out = append(out, n.n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID model.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.notifications {
		if n.n.UserID == userID && !n.n.Read {
			total++
		}
	}
	return total, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, id model.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.findNotification(id)
	if n == nil || n.n.UserID != userID {
		return false, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if n.n.Read {
		return false, nil
	}
	n.n.Read = true
	n.pending = true
	return true, nil
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID model.ID) ([]model.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []model.ID
	for _, n := range s.notifications {
		if n.n.UserID != userID || n.n.Read {
			continue
		}
		n.n.Read = true
		n.pending = true
		changed = append(changed, n.n.ID)
	}
	return changed, nil
}

func (s *MemoryStore) PendingNotificationReads(_ context.Context, userID model.ID) ([]model.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []model.ID
	for _, n := range s.notifications {
		if n.n.UserID == userID && n.pending {
			ids = append(ids, n.n.ID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) ClearPendingNotificationReads(_ context.Context, ids []model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if n := s.findNotification(id); n != nil {
			n.pending = false
		}
	}
	return nil
}

func (s *MemoryStore) findMessage(id model.ID) *memMessage {
	for _, m := range s.messages {
		if m.m.ID == id {
			return m
		}
	}
	return nil
}

func (s *MemoryStore) UpsertMessages(_ context.Context, ms []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		if m.ID == "" {
			m.ID = model.ID(uuid.New().String())
		}
		if m.Status != model.MessageRead {
			m.Status = model.MessageSent
		}
		existing := s.findMessage(m.ID)
		if existing == nil {
			s.messages = append(s.messages, &memMessage{m: m})
			continue
		}
		existing.m.Content = m.Content
		existing.m.Attachments = m.Attachments
		if m.Status == model.MessageRead {
			if existing.pending == PendingRead {
				existing.pending = PendingNone
			}
			existing.m.Status = model.MessageRead
		}
	}
	return nil
}

func (s *MemoryStore) GetMessages(_ context.Context, f MessageFilter) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []model.Message
	for _, mm := range s.messages {
		m := mm.m
		if f.ConversationID != "" && m.ConversationID != f.ConversationID {
			continue
		}
		if f.UserID != "" {
			sent := m.SenderID == f.UserID && m.SenderRole == f.Role
			received := m.RecipientID == f.UserID && m.SenderRole == f.Role.Counterpart()
			if !sent && !received {
				continue
			}
		}
		if q != "" && !strings.Contains(strings.ToLower(m.Content), q) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = model.ID(uuid.New().String())
	}
	if s.findMessage(m.ID) != nil {
		return fmt.Errorf("appending message %s: duplicate id", m.ID)
	}
	if m.Status != model.MessageRead {
		m.Status = model.MessageSent
	}
	s.messages = append(s.messages, &memMessage{m: m, pending: PendingSend})
	return nil
}

func (s *MemoryStore) AckMessage(_ context.Context, localID, serverID model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(localID)
	if m == nil {
		return fmt.Errorf("message %s: %w", localID, ErrNotFound)
	}
	if serverID != "" && serverID != localID && s.findMessage(serverID) != nil {
		for i, mm := range s.messages {
			if mm == m {
				s.messages = append(s.messages[:i], s.messages[i+1:]...)
				break
			}
		}
		return nil
	}
	if serverID != "" {
		m.m.ID = serverID
	}
	m.pending = PendingNone
	return nil
}

func (s *MemoryStore) MarkConversationRead(
	_ context.Context,
	conversationID string,
	readerID model.ID,
	readerRole model.Role,
) ([]model.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []model.ID
	for _, mm := range s.messages {
		m := &mm.m
		if m.ConversationID != conversationID || m.IsRead() || m.SentBy(readerID, readerRole) {
			continue
		}
		m.Status = model.MessageRead
		if mm.pending != PendingSend {
			mm.pending = PendingRead
		}
		changed = append(changed, m.ID)
	}
	return changed, nil
}

func (s *MemoryStore) PendingMessages(_ context.Context, state string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.pending == state {
			out = append(out, m.m)
		}
	}
	return out, nil
}

func (s *MemoryStore) ClearPendingMessages(_ context.Context, ids []model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m := s.findMessage(id); m != nil {
			m.pending = PendingNone
		}
	}
	return nil
}
