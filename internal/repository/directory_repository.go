package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zfogg/beacon/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectoryRepository is the read side of users, follows, communities and blocks
// used to resolve recipient sets and sender names
type DirectoryRepository interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error

	// Follow relationship
	CreateFollow(ctx context.Context, followerID, followeeID string) error
	FollowerIDs(ctx context.Context, userID string) ([]string, error)

	// Blocks
	Block(ctx context.Context, blockerID, blockedID string) error
	IsBlocked(ctx context.Context, userA, userB string) (bool, error)

	// Communities
	CreateCommunity(ctx context.Context, community *models.Community) error
	GetCommunity(ctx context.Context, communityID string) (*models.Community, error)
	AddMember(ctx context.Context, communityID, userID string, admin bool) error
	RemoveMember(ctx context.Context, communityID, userID string) error
	MemberIDs(ctx context.Context, communityID string) ([]string, error)
	AdminIDs(ctx context.Context, communityID string) ([]string, error)
}

type directoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

// CreateUser creates a new user
func (r *directoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUser gets a user by ID
func (r *directoryRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &user, err
}

// GetUsers gets multiple users by IDs
func (r *directoryRepository) GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error) {
	var users []*models.User
	if len(userIDs) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&users).Error
	return users, err
}

// SetOnline records connection activity for a user
func (r *directoryRepository) SetOnline(ctx context.Context, userID string, online bool) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":      online,
			"last_active_at": now,
		}).Error
}

// CreateFollow creates a follow relationship; repeating it is a no-op
func (r *directoryRepository) CreateFollow(ctx context.Context, followerID, followeeID string) error {
	if followerID == "" || followeeID == "" || followerID == followeeID {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Follow{FollowerID: followerID, FolloweeID: followeeID}).Error
}

// FollowerIDs returns the ids of users following userID
func (r *directoryRepository) FollowerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followee_id = ?", userID).
		Order("created_at ASC").
		Pluck("follower_id", &ids).Error
	return ids, err
}

// Block records that blockerID blocks blockedID
func (r *directoryRepository) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == "" || blockedID == "" || blockerID == blockedID {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserBlock{BlockerID: blockerID, BlockedID: blockedID}).Error
}

// IsBlocked reports whether either user has blocked the other
func (r *directoryRepository) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserBlock{}).
		Where(
			r.db.Where("blocker_id = ? AND blocked_id = ?", userA, userB).
				Or("blocker_id = ? AND blocked_id = ?", userB, userA),
		).
		Count(&count).Error
	return count > 0, err
}

func (r *directoryRepository) CreateCommunity(ctx context.Context, community *models.Community) error {
	if community == nil || community.Name == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(community).Error
}

func (r *directoryRepository) GetCommunity(ctx context.Context, communityID string) (*models.Community, error) {
	var community models.Community
	err := r.db.WithContext(ctx).Where("id = ?", communityID).First(&community).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &community, err
}

// AddMember joins a user to a community; re-adding updates the admin flag
func (r *directoryRepository) AddMember(ctx context.Context, communityID, userID string, admin bool) error {
	member := &models.CommunityMember{CommunityID: communityID, UserID: userID, IsAdmin: admin}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "community_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_admin"}),
		}).
		Create(member).Error
}

// RemoveMember drops a membership; ErrNotFound when the user was not a member
func (r *directoryRepository) RemoveMember(ctx context.Context, communityID, userID string) error {
	result := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&models.CommunityMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *directoryRepository) MemberIDs(ctx context.Context, communityID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.CommunityMember{}).
		Where("community_id = ?", communityID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *directoryRepository) AdminIDs(ctx context.Context, communityID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.CommunityMember{}).
		Where("community_id = ? AND is_admin = ?", communityID, true).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
