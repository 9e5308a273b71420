// Package safety holds the posting guards: the daily quota check and the
// duplicate-avoidance lookup.
//
// The two guards deliberately use different clocks. Quota counting is
// anchored to local (JST) midnight so the budget resets with the calendar
// day; duplicate avoidance uses a rolling 24 hour window so an early-morning
// post still steers the next evening's generation.
package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/storage"
	"github.com/autopost-agent/internal/timeutil"
	"github.com/autopost-agent/pkg/logger"
)

// Guard answers quota and duplicate questions against the post log
type Guard struct {
	repo storage.Repository
	now  func() time.Time
	log  *logger.Logger
}

// NewGuard creates a Guard. nowFn may be nil to use the wall clock.
func NewGuard(repo storage.Repository, nowFn func() time.Time, log *logger.Logger) *Guard {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Guard{
		repo: repo,
		now:  nowFn,
		log:  log.WithComponent("safety"),
	}
}

// CanPostToday reports whether the project is under its daily success quota.
// Only SUCCESS log entries since local midnight count. No side effects.
func (g *Guard) CanPostToday(ctx context.Context, project *models.Project) (bool, error) {
	if project.PostingRule == nil {
		return false, fmt.Errorf("project %s has no posting rule", project.ID)
	}
	limit := project.PostingRule.DailyLimit()

	startOfToday := timeutil.StartOfDay(g.now())
	status := models.LogSuccess
	count, err := g.repo.CountPostLogs(ctx, storage.PostLogFilter{
		ProjectID:   &project.ID,
		Status:      &status,
		PostedAfter: &startOfToday,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count today's posts: %w", err)
	}

	g.log.Debug().
		Str("project_id", project.ID).
		Int64("posted_today", count).
		Int("limit", limit).
		Msg("Daily quota check")

	return count < int64(limit), nil
}

// LastPostContent returns the content of the category's most recent log
// entry within the last 24 hours, regardless of status, or nil if there is
// none. Fed to the generator as a negative example.
func (g *Guard) LastPostContent(ctx context.Context, categoryID string) (*string, error) {
	since := g.now().Add(-24 * time.Hour)
	logs, err := g.repo.ListPostLogs(ctx, storage.PostLogFilter{
		CategoryID:  &categoryID,
		PostedAfter: &since,
		Limit:       5,
		OrderDesc:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up recent posts: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0].Content, nil
}

// RetryDelay returns the wait before a manual retry attempt (quadratic
// backoff: 1 min, 4 min, 9 min, ...)
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt*attempt) * time.Minute
}
