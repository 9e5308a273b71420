package storage

import (
	"context"
	"time"

	"github.com/autopost-agent/internal/models"
)

// Repository defines the interface for data persistence
type Repository interface {
	// Project operations
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByID(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	DeleteProject(ctx context.Context, id string) error

	// Category operations
	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, category *models.Category) error
	ListCategories(ctx context.Context, projectID string) ([]*models.Category, error)
	// ActivateCategory activates one category and deactivates all of its
	// siblings in the same project, in a single transaction.
	ActivateCategory(ctx context.Context, projectID, categoryID string) error

	// Posting rule operations
	SavePostingRule(ctx context.Context, rule *models.PostingRule) error

	// Credential operations
	SaveXCredential(ctx context.Context, cred *models.XCredential) error
	GetXCredential(ctx context.Context, projectID string) (*models.XCredential, error)

	// Scheduled post operations
	CreateScheduledPost(ctx context.Context, post *models.ScheduledPost) error
	GetScheduledPostByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	CountScheduledPosts(ctx context.Context, projectID string, from, to time.Time) (int64, error)
	ListDueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	// ClaimScheduledPost flips PENDING to PROCESSING conditionally; it
	// returns false if the row was no longer PENDING.
	ClaimScheduledPost(ctx context.Context, id string) (bool, error)
	UpdateScheduledPostStatus(ctx context.Context, id string, status models.ScheduleStatus) error

	// Post log operations (append-only)
	CreatePostLog(ctx context.Context, log *models.PostLog) error
	CountPostLogs(ctx context.Context, filter PostLogFilter) (int64, error)
	ListPostLogs(ctx context.Context, filter PostLogFilter) ([]*models.PostLog, error)

	// Maintenance
	Close() error
	Migrate() error
}

// PostLogFilter defines filtering options for post logs
type PostLogFilter struct {
	ProjectID   *string
	CategoryID  *string
	Status      *models.LogStatus
	PostedAfter *time.Time
	Limit       int
	OrderDesc   bool
}

// DefaultPostLogFilter returns a filter with sensible defaults
func DefaultPostLogFilter() PostLogFilter {
	return PostLogFilter{
		Limit:     50,
		OrderDesc: true,
	}
}
