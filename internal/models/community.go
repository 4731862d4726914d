package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Community is a group whose members receive community-wide fan-out
type Community struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	Members []CommunityMember `gorm:"foreignKey:CommunityID" json:"members,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CommunityMember links a user to a community; admins are members with IsAdmin set
type CommunityMember struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CommunityID string    `gorm:"not null;index;uniqueIndex:idx_community_member" json:"community_id"`
	UserID      string    `gorm:"not null;index;uniqueIndex:idx_community_member" json:"user_id"`
	IsAdmin     bool      `gorm:"default:false" json:"is_admin"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (c *Community) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (m *CommunityMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
