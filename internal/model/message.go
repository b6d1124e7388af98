package model

import "time"

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageSent MessageStatus = "sent"
	MessageRead MessageStatus = "read"
)

// AttachmentKind classifies an attachment for display.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentFile     AttachmentKind = "file"
)

// Attachment is a file reference carried by a message.
type Attachment struct {
	ID   string         `json:"id"`
	Kind AttachmentKind `json:"type"`
	Name string         `json:"name"`
	Size string         `json:"size"`
	URL  string         `json:"url"`
}

// Message is a single entry in a doctor/patient conversation.
type Message struct {
	ID             ID            `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       ID            `json:"senderId"`
	SenderRole     Role          `json:"senderRole"`
	RecipientID    ID            `json:"receiverId"`
	Content        string        `json:"content"`
	Timestamp      time.Time     `json:"date"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Status         MessageStatus `json:"status"`
}

// IsRead reports whether the message has been seen by its recipient.
func (m Message) IsRead() bool {
	return m.Status == MessageRead
}

// SentBy reports whether the message was written by the given user.
func (m Message) SentBy(userID ID, role Role) bool {
	return m.SenderID == userID && m.SenderRole == role
}

// Conversation pairs one doctor with one patient. It is derived from
// the flat message list rather than stored.
type Conversation struct {
	ID        string    `json:"id"`
	DoctorID  ID        `json:"doctorId"`
	PatientID ID        `json:"patientId"`
	Messages  []Message `json:"messages"`
}

// ConversationID returns the identifier of the doctor/patient pair.
func ConversationID(doctorID, patientID ID) string {
	return string(doctorID) + ":" + string(patientID)
}

// Counterpart returns the id of the participant who is not self.
func (c Conversation) Counterpart(self Role) ID {
	if self == RoleDoctor {
		return c.PatientID
	}
	return c.DoctorID
}

// LastMessage returns the tail of the conversation.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// UnreadFor counts messages addressed to self that are still unread.
func (c Conversation) UnreadFor(selfID ID, self Role) int {
	n := 0
	for _, m := range c.Messages {
		if !m.SentBy(selfID, self) && !m.IsRead() {
			n++
		}
	}
	return n
}

// MessageGroup is one date bucket produced when rendering a thread.
type MessageGroup struct {
	// Day is local midnight of the bucket's calendar date.
	Day time.Time

	// Label is "Today", "Yesterday" or a formatted absolute date.
	Label string

	Messages []Message
}
