package repository

import (
	"context"
	"errors"

	"github.com/zfogg/beacon/internal/models"
	"gorm.io/gorm"
)

// MessageStore persists chat messages. Conversations are oldest first.
type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	Conversation(ctx context.Context, userA, userB string) ([]*models.Message, error)
	GroupConversation(ctx context.Context, communityID string) ([]*models.Message, error)
	Get(ctx context.Context, messageID string) (*models.Message, error)
	MarkRead(ctx context.Context, messageID string) (*models.Message, error)
	Count(ctx context.Context) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a gorm-backed message store
func NewMessageRepository(db *gorm.DB) MessageStore {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, m *models.Message) error {
	if m == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) Conversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	var out []*models.Message
	err := r.db.WithContext(ctx).
		Where("type = ?", models.MessageDirect).
		Where(
			r.db.Where("sender_id = ? AND receiver_id = ?", userA, userB).
				Or("sender_id = ? AND receiver_id = ?", userB, userA),
		).
		Order("timestamp ASC").
		Find(&out).Error
	return out, err
}

func (r *messageRepository) GroupConversation(ctx context.Context, communityID string) ([]*models.Message, error) {
	var out []*models.Message
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND type = ?", communityID, models.MessageGroup).
		Order("timestamp ASC").
		Find(&out).Error
	return out, err
}

func (r *messageRepository) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).Where("id = ?", messageID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	m, err := r.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !m.IsRead {
		if err := r.db.WithContext(ctx).Model(m).Update("is_read", true).Error; err != nil {
			return nil, err
		}
		m.IsRead = true
	}
	return m, nil
}

func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Count(&n).Error
	return n, err
}
