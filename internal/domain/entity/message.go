package entity

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// SystemSenderID is the sender id reserved for system-authored messages.
const SystemSenderID int64 = 0

type Message struct {
	ID         string      `json:"id"`
	SenderID   int64       `json:"sender_id"`
	SenderRole Role        `json:"sender_role"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	FileURL    string      `json:"file_url,omitempty"`
	FileName   string      `json:"file_name,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ReadAt     *time.Time  `json:"read_at,omitempty"`
	// Pending is set while the store has not confirmed the write yet.
	Pending bool `json:"pending,omitempty"`
}

// HasPayload reports whether the message carries text or an attachment.
func (m *Message) HasPayload() bool {
	return m.Content != "" || m.FileURL != ""
}

func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}
