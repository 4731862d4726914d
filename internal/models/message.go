package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageType distinguishes one-to-one messages from community messages
type MessageType string

const (
	MessageDirect MessageType = "direct"
	MessageGroup  MessageType = "group"
)

// Message is a persisted chat message. ReceiverID is a user id for direct
// messages and a community id for group messages.
type Message struct {
	ID         string      `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	SenderID   string      `gorm:"type:varchar(36);not null;index" bson:"sender_id" json:"sender_id"`
	ReceiverID string      `gorm:"type:varchar(36);not null;index" bson:"receiver_id" json:"receiver_id"`
	Type       MessageType `gorm:"type:varchar(16);not null;default:direct" bson:"type" json:"type"`
	Content    string      `gorm:"type:text" bson:"content,omitempty" json:"content,omitempty"`
	MediaURL   string      `gorm:"type:text" bson:"media_url,omitempty" json:"media_url,omitempty"`
	MediaType  string      `gorm:"type:varchar(16)" bson:"media_type,omitempty" json:"media_type,omitempty"` // "photo" or "video"
	IsRead     bool        `gorm:"default:false" bson:"is_read" json:"is_read"`
	Timestamp  time.Time   `gorm:"index" bson:"timestamp" json:"timestamp"`
}

// NewMessage builds an unsaved message with id and timestamp assigned
func NewMessage(senderID, receiverID string, kind MessageType, content string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Type:       kind,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
}

// HasBody reports whether the message carries text or media
func (m *Message) HasBody() bool {
	return m.Content != "" || m.MediaURL != ""
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}
