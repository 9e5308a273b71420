package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project represents one managed social account
type Project struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`
	Name   string `gorm:"not null" json:"name"`

	// Encrypted generation-backend API key (AES-GCM, base64). Nullable: a
	// project without a key cannot post.
	GenerationKey string `gorm:"column:generation_key" json:"-"`

	PostingRule    *PostingRule    `gorm:"constraint:OnDelete:CASCADE" json:"posting_rule,omitempty"`
	XCredential    *XCredential    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Categories     []Category      `gorm:"constraint:OnDelete:CASCADE" json:"categories,omitempty"`
	ScheduledPosts []ScheduledPost `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	PostLogs       []PostLog       `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ActiveCategory returns the project's active category, or nil if none is active
func (p *Project) ActiveCategory() *Category {
	for i := range p.Categories {
		if p.Categories[i].IsActive {
			return &p.Categories[i]
		}
	}
	return nil
}

// XCredential holds the encrypted OAuth 1.0a user-context secrets for a project.
// All four fields are AES-GCM encrypted at rest.
type XCredential struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string `gorm:"uniqueIndex;not null" json:"project_id"`

	APIKey            string `gorm:"not null" json:"-"`
	APIKeySecret      string `gorm:"not null" json:"-"`
	AccessToken       string `gorm:"not null" json:"-"`
	AccessTokenSecret string `gorm:"not null" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key
func (c *XCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
