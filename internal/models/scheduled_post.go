package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleStatus represents the dispatch state of a scheduled post.
// Transitions: PENDING -> PROCESSING -> POSTED | FAILED. POSTED and FAILED
// are terminal; only the dispatcher mutates status.
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "PENDING"
	ScheduleProcessing ScheduleStatus = "PROCESSING"
	SchedulePosted     ScheduleStatus = "POSTED"
	ScheduleFailed     ScheduleStatus = "FAILED"
)

// ScheduledPost is one posting slot created by the scheduler for a project.
// ScheduledAt is stored in UTC but computed from the operating timezone.
type ScheduledPost struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	ProjectID  string `gorm:"index;not null" json:"project_id"`
	CategoryID string `gorm:"index;not null" json:"category_id"`

	ScheduledAt time.Time      `gorm:"index;not null" json:"scheduled_at"`
	Status      ScheduleStatus `gorm:"default:'PENDING';index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key
func (s *ScheduledPost) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
