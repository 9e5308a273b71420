package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogStatus represents the outcome recorded in a post log entry
type LogStatus string

const (
	LogSuccess LogStatus = "SUCCESS"
	LogFailed  LogStatus = "FAILED"
	LogPending LogStatus = "PENDING"
)

// PlatformX tags log entries published to X
const PlatformX = "x"

// PostLog is the append-only publication record. It feeds quota counting,
// duplicate avoidance and audit display; the pipeline never updates or
// deletes entries.
type PostLog struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string `gorm:"index;not null" json:"project_id"`

	// Nullable: failures before a category is resolved log without one, and a
	// category may be deleted independently of its logs.
	CategoryID *string `gorm:"index" json:"category_id,omitempty"`

	Content     string    `gorm:"type:text" json:"content"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Status      LogStatus `gorm:"index;not null" json:"status"`
	Platform    string    `gorm:"default:'x'" json:"platform"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	TrendSource *string   `gorm:"type:text" json:"trend_source,omitempty"`

	PostedAt time.Time `gorm:"autoCreateTime;index" json:"posted_at"`
}

// BeforeCreate assigns a UUID primary key
func (l *PostLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
