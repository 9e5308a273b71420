package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HashtagMode controls whether hashtags are generated or taken verbatim
type HashtagMode string

const (
	HashtagModeAuto   HashtagMode = "auto"
	HashtagModeManual HashtagMode = "manual"
)

// PostLength selects the length directive for generated posts
type PostLength string

const (
	PostLengthShort  PostLength = "short"
	PostLengthNormal PostLength = "normal"
	PostLengthLong   PostLength = "long"
)

// TrendMode selects how trend context is used in generation
type TrendMode string

const (
	// TrendModeTopicOnly asks for an original post inspired by the trend theme
	TrendModeTopicOnly TrendMode = "topic_only"
	// TrendModeQuoteWithComment asks for a comment to accompany a quote-repost
	TrendModeQuoteWithComment TrendMode = "quote_with_comment"
)

// Category is a content strategy template owned by a project.
// At most one category per project has IsActive = true; the repository
// enforces this transactionally in ActivateCategory.
type Category struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string `gorm:"index;not null" json:"project_id"`

	Name           string `gorm:"not null" json:"name"`
	TargetAudience string `json:"target_audience"`
	Tone           string `gorm:"default:'professional'" json:"tone"`
	Goal           string `json:"goal"`
	NGWords        string `json:"ng_words"` // comma separated

	HashtagMode HashtagMode `gorm:"default:'auto'" json:"hashtag_mode"`
	Hashtags    string      `json:"hashtags"` // used when HashtagMode is manual

	PostLength PostLength `gorm:"default:'normal'" json:"post_length"`

	TrendInspired    bool      `gorm:"default:false" json:"trend_inspired"`
	TrendMode        TrendMode `json:"trend_mode,omitempty"`
	TrendSearchQuery string    `json:"trend_search_query"`

	UseLatestNews      bool   `gorm:"default:false" json:"use_latest_news"`
	CustomInstructions string `gorm:"type:text" json:"custom_instructions"`
	ImagePrompt        string `gorm:"type:text" json:"image_prompt"`

	IsActive bool `gorm:"default:false;index" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
