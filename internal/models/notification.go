package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemSender is the from_system tag used for server-generated notifications
const SystemSender = "system"

var (
	ErrNotificationRecipient = errors.New("notification recipient is required")
	ErrNotificationMessage   = errors.New("notification message is required")
	ErrNotificationSenders   = errors.New("notification cannot have both a user and a system sender")
)

// Notification is the durable record written for every notifiable action.
// Exactly one of FromUserID / FromSystem is set, or neither.
type Notification struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	FromUserID *string   `gorm:"type:varchar(36);index" bson:"from,omitempty" json:"from,omitempty"`
	FromSystem *string   `gorm:"type:varchar(64)" bson:"from_system,omitempty" json:"from_system,omitempty"`
	ToUserID   string    `gorm:"type:varchar(36);not null;index:idx_notifications_to_read" bson:"to" json:"to"`
	Message    string    `gorm:"type:text;not null" bson:"message" json:"message"`
	IsRead     bool      `gorm:"default:false;index:idx_notifications_to_read" bson:"is_read" json:"is_read"`
	CreatedAt  time.Time `gorm:"index" bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// NewNotification builds an unsaved notification with id and timestamps assigned,
// so every store backend persists identical records.
func NewNotification(from, fromSystem *string, to, message string) *Notification {
	now := time.Now().UTC()
	return &Notification{
		ID:         uuid.NewString(),
		FromUserID: from,
		FromSystem: fromSystem,
		ToUserID:   to,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate enforces the record invariants before any write
func (n *Notification) Validate() error {
	if strings.TrimSpace(n.ToUserID) == "" {
		return ErrNotificationRecipient
	}
	if strings.TrimSpace(n.Message) == "" {
		return ErrNotificationMessage
	}
	if n.FromUserID != nil && n.FromSystem != nil {
		return ErrNotificationSenders
	}
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return n.Validate()
}
