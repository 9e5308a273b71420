package safety

import (
	"context"
	"testing"
	"time"

	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/storage/sqlite"
	"github.com/autopost-agent/internal/timeutil"
	"github.com/autopost-agent/pkg/logger"
)

var testLog = logger.New(logger.Config{Level: "error", Format: "console", Output: "stdout"})

func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedProject(t *testing.T, repo *sqlite.Repository, maxPerDay int) *models.Project {
	t.Helper()
	ctx := context.Background()

	project := &models.Project{UserID: "u", Name: "p"}
	if err := repo.CreateProject(ctx, project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if err := repo.SavePostingRule(ctx, &models.PostingRule{ProjectID: project.ID, MaxPostsPerDay: maxPerDay}); err != nil {
		t.Fatalf("failed to save rule: %v", err)
	}

	loaded, err := repo.GetProjectByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("failed to reload project: %v", err)
	}
	return loaded
}

func addLog(t *testing.T, repo *sqlite.Repository, projectID string, categoryID *string, status models.LogStatus, at time.Time) {
	t.Helper()
	err := repo.CreatePostLog(context.Background(), &models.PostLog{
		ProjectID:  projectID,
		CategoryID: categoryID,
		Content:    "content at " + at.Format(time.RFC3339),
		Status:     status,
		PostedAt:   at,
	})
	if err != nil {
		t.Fatalf("failed to create post log: %v", err)
	}
}

// Fixed clock: 12:00 JST.
var guardNow = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

func TestCanPostTodayUnderQuota(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 2)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)

	addLog(t, repo, project.ID, nil, models.LogSuccess, guardNow.Add(-1*time.Hour))

	ok, err := guard.CanPostToday(context.Background(), project)
	if err != nil {
		t.Fatalf("CanPostToday: %v", err)
	}
	if !ok {
		t.Error("1 of 2 posts used, expected quota available")
	}
}

func TestCanPostTodayAtQuota(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 2)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)

	addLog(t, repo, project.ID, nil, models.LogSuccess, guardNow.Add(-2*time.Hour))
	addLog(t, repo, project.ID, nil, models.LogSuccess, guardNow.Add(-1*time.Hour))

	ok, err := guard.CanPostToday(context.Background(), project)
	if err != nil {
		t.Fatalf("CanPostToday: %v", err)
	}
	if ok {
		t.Error("quota exhausted, expected false")
	}
}

func TestCanPostTodayIgnoresFailures(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 1)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)

	addLog(t, repo, project.ID, nil, models.LogFailed, guardNow.Add(-2*time.Hour))
	addLog(t, repo, project.ID, nil, models.LogFailed, guardNow.Add(-1*time.Hour))

	ok, err := guard.CanPostToday(context.Background(), project)
	if err != nil {
		t.Fatalf("CanPostToday: %v", err)
	}
	if !ok {
		t.Error("failed attempts must not consume quota")
	}
}

func TestCanPostTodayResetsAtLocalMidnight(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 1)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)

	// Success at 23:00 JST yesterday: 4 hours ago on the wall clock, but a
	// different calendar day, so the quota is fresh.
	yesterday := timeutil.StartOfDay(guardNow).Add(-1 * time.Hour)
	addLog(t, repo, project.ID, nil, models.LogSuccess, yesterday)

	ok, err := guard.CanPostToday(context.Background(), project)
	if err != nil {
		t.Fatalf("CanPostToday: %v", err)
	}
	if !ok {
		t.Error("yesterday's post must not count against today's quota")
	}
}

func TestCanPostTodayWithoutRule(t *testing.T) {
	repo := newTestRepo(t)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)

	project := &models.Project{ID: "no-rule"}
	if _, err := guard.CanPostToday(context.Background(), project); err == nil {
		t.Error("expected error for a project without a posting rule")
	}
}

func TestLastPostContentRollingWindow(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 3)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)
	categoryID := "cat-1"

	// 30 hours ago: outside the rolling window even though only one local
	// calendar day has passed.
	addLog(t, repo, project.ID, &categoryID, models.LogSuccess, guardNow.Add(-30*time.Hour))

	content, err := guard.LastPostContent(context.Background(), categoryID)
	if err != nil {
		t.Fatalf("LastPostContent: %v", err)
	}
	if content != nil {
		t.Errorf("post 30h ago should be outside the window, got %q", *content)
	}

	// 2 hours ago: inside.
	addLog(t, repo, project.ID, &categoryID, models.LogSuccess, guardNow.Add(-2*time.Hour))

	content, err = guard.LastPostContent(context.Background(), categoryID)
	if err != nil {
		t.Fatalf("LastPostContent: %v", err)
	}
	if content == nil {
		t.Fatal("post 2h ago should be inside the window")
	}
}

func TestLastPostContentIncludesFailures(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 3)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)
	categoryID := "cat-1"

	// Duplicate avoidance looks at any status: a failed attempt's content
	// still steers the next generation away.
	addLog(t, repo, project.ID, &categoryID, models.LogFailed, guardNow.Add(-1*time.Hour))

	content, err := guard.LastPostContent(context.Background(), categoryID)
	if err != nil {
		t.Fatalf("LastPostContent: %v", err)
	}
	if content == nil {
		t.Fatal("failed entry should be visible to duplicate avoidance")
	}
}

func TestLastPostContentNewestWins(t *testing.T) {
	repo := newTestRepo(t)
	project := seedProject(t, repo, 3)
	guard := NewGuard(repo, func() time.Time { return guardNow }, testLog)
	categoryID := "cat-1"

	addLog(t, repo, project.ID, &categoryID, models.LogSuccess, guardNow.Add(-5*time.Hour))
	addLog(t, repo, project.ID, &categoryID, models.LogSuccess, guardNow.Add(-1*time.Hour))

	content, err := guard.LastPostContent(context.Background(), categoryID)
	if err != nil {
		t.Fatalf("LastPostContent: %v", err)
	}
	want := "content at " + guardNow.Add(-1*time.Hour).Format(time.RFC3339)
	if content == nil || *content != want {
		t.Errorf("LastPostContent = %v, want %q", content, want)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Minute},
		{2, 4 * time.Minute},
		{3, 9 * time.Minute},
		{0, 1 * time.Minute}, // clamped
	}

	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
