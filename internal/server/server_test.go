package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/autopost-agent/internal/dispatcher"
	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/scheduler"
	"github.com/autopost-agent/internal/storage/sqlite"
	"github.com/autopost-agent/pkg/logger"
)

var testLog = logger.New(logger.Config{Level: "error", Format: "console", Output: "stdout"})

type fakeScheduler struct {
	result *scheduler.Result
	err    error
}

func (f *fakeScheduler) ScheduleDailyPosts(ctx context.Context) (*scheduler.Result, error) {
	return f.result, f.err
}

type fakeDispatch struct {
	runResult  *dispatcher.RunResult
	runErr     error
	tweetID    string
	postNowErr error
}

func (f *fakeDispatch) Run(ctx context.Context) (*dispatcher.RunResult, error) {
	return f.runResult, f.runErr
}

func (f *fakeDispatch) PostNow(ctx context.Context, projectID string) (string, error) {
	if f.postNowErr != nil {
		return "", f.postNowErr
	}
	return f.tweetID, nil
}

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

func newTestRouter(t *testing.T, sched SchedulerService, disp DispatchService) http.Handler {
	t.Helper()
	return newRouter(sched, disp, newTestRepo(t), nil, testLog)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &fakeScheduler{}, &fakeDispatch{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCronDaily(t *testing.T) {
	sched := &fakeScheduler{result: &scheduler.Result{
		ProjectsSeen:      3,
		ProjectsScheduled: 2,
		SlotsCreated:      4,
		Errors:            []error{errors.New("project x: boom")},
	}}
	router := newTestRouter(t, sched, &fakeDispatch{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/daily", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		ProjectsSeen int      `json:"projects_seen"`
		SlotsCreated int      `json:"slots_created"`
		Errors       []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.ProjectsSeen != 3 || body.SlotsCreated != 4 || len(body.Errors) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestCronDailyError(t *testing.T) {
	router := newTestRouter(t, &fakeScheduler{err: errors.New("db down")}, &fakeDispatch{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/daily", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCronDispatch(t *testing.T) {
	disp := &fakeDispatch{runResult: &dispatcher.RunResult{
		Processed: 1,
		Results:   []dispatcher.ItemResult{{ScheduledPostID: "s1", Status: "SUCCESS", TweetID: "t1"}},
	}}
	router := newTestRouter(t, &fakeScheduler{}, disp)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/dispatch", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body dispatcher.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Processed != 1 || body.Results[0].TweetID != "t1" {
		t.Errorf("body = %+v", body)
	}
}

func TestPostNowSuccess(t *testing.T) {
	router := newTestRouter(t, &fakeScheduler{}, &fakeDispatch{tweetID: "tweet-42"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/projects/p1/post-now", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["tweet_id"] != "tweet-42" {
		t.Errorf("tweet_id = %q", body["tweet_id"])
	}
}

func TestPostNowQuotaExceededReturns429(t *testing.T) {
	disp := &fakeDispatch{postNowErr: &dispatcher.QuotaExceededError{Hours: 5, Minutes: 30}}
	router := newTestRouter(t, &fakeScheduler{}, disp)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/projects/p1/post-now", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body struct {
		Error     string `json:"error"`
		ResetTime struct {
			Hours   int `json:"hours"`
			Minutes int `json:"minutes"`
		} `json:"resetTime"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.ResetTime.Hours != 5 || body.ResetTime.Minutes != 30 {
		t.Errorf("resetTime = %+v, want 5h30m", body.ResetTime)
	}
	if body.Error == "" {
		t.Error("error message missing")
	}
}

func TestPostNowGenericError(t *testing.T) {
	disp := &fakeDispatch{postNowErr: errors.New("publish failed")}
	router := newTestRouter(t, &fakeScheduler{}, disp)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/projects/p1/post-now", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListLogs(t *testing.T) {
	repo := newTestRepo(t)
	router := newRouter(&fakeScheduler{}, &fakeDispatch{}, repo, nil, testLog)
	ctx := context.Background()

	project := &models.Project{UserID: "u", Name: "p"}
	if err := repo.CreateProject(ctx, project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	now := time.Now().UTC()
	for i, status := range []models.LogStatus{models.LogSuccess, models.LogFailed} {
		err := repo.CreatePostLog(ctx, &models.PostLog{
			ProjectID: project.ID,
			Content:   "entry",
			Status:    status,
			PostedAt:  now.Add(time.Duration(-i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to create log: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID+"/logs?status=SUCCESS", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count int               `json:"count"`
		Logs  []*models.PostLog `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 1 || body.Logs[0].Status != models.LogSuccess {
		t.Errorf("body = %+v, want one SUCCESS entry", body)
	}
}

func TestListLogsInvalidLimit(t *testing.T) {
	router := newTestRouter(t, &fakeScheduler{}, &fakeDispatch{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/p1/logs?limit=zero", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
