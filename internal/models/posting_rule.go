package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostingMode selects how daily slot times are computed
type PostingMode string

const (
	PostingModeFixed  PostingMode = "fixed"
	PostingModeRandom PostingMode = "random"
)

// ImageMode selects whether posts carry a generated image
type ImageMode string

const (
	ImageModeNone      ImageMode = "none"
	ImageModeWithImage ImageMode = "with_image"
)

// HardDailyLimit is the ceiling applied when a rule's MaxPostsPerDay is out of range
const HardDailyLimit = 3

// PostingRule is the one-to-one posting configuration for a project
type PostingRule struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string `gorm:"uniqueIndex;not null" json:"project_id"`

	MaxPostsPerDay int         `gorm:"default:1" json:"max_posts_per_day"` // 1..3
	PostingMode    PostingMode `gorm:"default:'fixed'" json:"posting_mode"`
	FixedTimes     string      `gorm:"default:''" json:"fixed_times"` // "09:00,12:00,18:00" local time
	ImageMode      ImageMode   `gorm:"default:'none'" json:"image_mode"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key
func (r *PostingRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// DailyLimit returns MaxPostsPerDay clamped to the valid range 1..HardDailyLimit
func (r *PostingRule) DailyLimit() int {
	if r.MaxPostsPerDay < 1 || r.MaxPostsPerDay > HardDailyLimit {
		return HardDailyLimit
	}
	return r.MaxPostsPerDay
}

// FixedTimeList parses FixedTimes into its non-empty "HH:MM" entries, in order
func (r *PostingRule) FixedTimeList() []string {
	var times []string
	for _, t := range strings.Split(r.FixedTimes, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			times = append(times, t)
		}
	}
	return times
}
