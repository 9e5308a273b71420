package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists (skip for in-memory databases)
	if !strings.Contains(dsn, ":memory:") {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Project{},
		&models.Category{},
		&models.PostingRule{},
		&models.XCredential{},
		&models.ScheduledPost{},
		&models.PostLog{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Project operations

func (r *Repository) CreateProject(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *Repository) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).
		Preload("PostingRule").
		Preload("XCredential").
		Preload("Categories").
		First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *Repository) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	if err := r.db.WithContext(ctx).
		Preload("PostingRule").
		Preload("Categories").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	// Cascade children explicitly: SQLite foreign keys may be off.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&models.PostLog{}, &models.ScheduledPost{}, &models.Category{},
			&models.PostingRule{}, &models.XCredential{},
		} {
			if err := tx.Where("project_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Project{}, "id = ?", id).Error
	})
}

// Category operations

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *Repository) UpdateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

func (r *Repository) ListCategories(ctx context.Context, projectID string) ([]*models.Category, error) {
	var categories []*models.Category
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// ActivateCategory activates one category and deactivates its siblings in a
// single transaction, preserving the at-most-one-active invariant.
func (r *Repository) ActivateCategory(ctx context.Context, projectID, categoryID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Category{}).
			Where("project_id = ? AND id <> ?", projectID, categoryID).
			Update("is_active", false).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Category{}).
			Where("project_id = ? AND id = ?", projectID, categoryID).
			Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Posting rule operations

func (r *Repository) SavePostingRule(ctx context.Context, rule *models.PostingRule) error {
	var existing models.PostingRule
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", rule.ProjectID).
		First(&existing).Error; err == nil {
		rule.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(rule).Error
}

// Credential operations

func (r *Repository) SaveXCredential(ctx context.Context, cred *models.XCredential) error {
	var existing models.XCredential
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", cred.ProjectID).
		First(&existing).Error; err == nil {
		cred.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(cred).Error
}

func (r *Repository) GetXCredential(ctx context.Context, projectID string) (*models.XCredential, error) {
	var cred models.XCredential
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// Scheduled post operations

func (r *Repository) CreateScheduledPost(ctx context.Context, post *models.ScheduledPost) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *Repository) GetScheduledPostByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	if err := r.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *Repository) CountScheduledPosts(ctx context.Context, projectID string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScheduledPost{}).
		Where("project_id = ? AND scheduled_at >= ? AND scheduled_at < ?", projectID, from, to).
		Count(&count).Error
	return count, err
}

func (r *Repository) ListDueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	var posts []*models.ScheduledPost
	query := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.SchedulePending, now).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ClaimScheduledPost performs the conditional PENDING -> PROCESSING
// transition. The WHERE clause on status makes the claim safe against a
// concurrent dispatcher invocation: only one update can see PENDING.
func (r *Repository) ClaimScheduledPost(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ScheduledPost{}).
		Where("id = ? AND status = ?", id, models.SchedulePending).
		Update("status", models.ScheduleProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) UpdateScheduledPostStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledPost{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Post log operations

func (r *Repository) CreatePostLog(ctx context.Context, log *models.PostLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *Repository) CountPostLogs(ctx context.Context, filter storage.PostLogFilter) (int64, error) {
	var count int64
	err := r.applyLogFilter(ctx, filter).Count(&count).Error
	return count, err
}

func (r *Repository) ListPostLogs(ctx context.Context, filter storage.PostLogFilter) ([]*models.PostLog, error) {
	var logs []*models.PostLog
	query := r.applyLogFilter(ctx, filter)

	if filter.OrderDesc {
		query = query.Order("posted_at DESC")
	} else {
		query = query.Order("posted_at ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *Repository) applyLogFilter(ctx context.Context, filter storage.PostLogFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.PostLog{})
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PostedAfter != nil {
		query = query.Where("posted_at >= ?", *filter.PostedAfter)
	}
	return query
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
