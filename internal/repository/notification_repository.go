package repository

import (
	"context"
	"errors"

	"github.com/zfogg/beacon/internal/models"
	"gorm.io/gorm"
)

// NotificationStore persists notification records. Lists are newest first.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	// CreateBatch inserts all records or none
	CreateBatch(ctx context.Context, ns []*models.Notification) error
	ListByRecipient(ctx context.Context, toUserID string) ([]*models.Notification, error)
	ListUnread(ctx context.Context, toUserID string) ([]*models.Notification, error)
	Page(ctx context.Context, toUserID string, skip, limit int) ([]*models.Notification, error)
	MarkAllRead(ctx context.Context, toUserID string) (int64, error)
	MarkRead(ctx context.Context, toUserID, notificationID string) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a gorm-backed notification store
func NewNotificationRepository(db *gorm.DB) NotificationStore {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) CreateBatch(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&ns).Error
	})
}

func (r *notificationRepository) newestFirst(ctx context.Context, toUserID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("to_user_id = ?", toUserID).
		Order("created_at DESC").
		Order("id DESC")
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, toUserID string) ([]*models.Notification, error) {
	var out []*models.Notification
	err := r.newestFirst(ctx, toUserID).Find(&out).Error
	return out, err
}

func (r *notificationRepository) ListUnread(ctx context.Context, toUserID string) ([]*models.Notification, error) {
	var out []*models.Notification
	err := r.newestFirst(ctx, toUserID).
		Where("is_read = ?", false).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) Page(ctx context.Context, toUserID string, skip, limit int) ([]*models.Notification, error) {
	if skip < 0 || limit <= 0 {
		return nil, ErrInvalidInput
	}
	var out []*models.Notification
	err := r.newestFirst(ctx, toUserID).
		Offset(skip).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, toUserID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("to_user_id = ? AND is_read = ?", toUserID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkRead flips a single record; records addressed to another user are reported as not found
func (r *notificationRepository) MarkRead(ctx context.Context, toUserID, notificationID string) error {
	var n models.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND to_user_id = ?", notificationID, toUserID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&n).
		Update("is_read", true).Error
}
