// Package dispatcher drives the posting pipeline: it ensures today's
// schedule exists, claims due slots, and runs each through quota check,
// context assembly, generation, publication and logging. It is the only
// component that mutates scheduled-post status.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autopost-agent/internal/ai"
	"github.com/autopost-agent/internal/crypto"
	"github.com/autopost-agent/internal/image"
	"github.com/autopost-agent/internal/metrics"
	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/publisher"
	"github.com/autopost-agent/internal/safety"
	"github.com/autopost-agent/internal/scheduler"
	"github.com/autopost-agent/internal/storage"
	"github.com/autopost-agent/internal/timeutil"
	"github.com/autopost-agent/pkg/logger"
)

// ContentGenerator produces post text from category configuration and context
type ContentGenerator interface {
	GeneratePost(ctx context.Context, apiKey string, params ai.GenerateParams) (*ai.GeneratedContent, error)
}

// PostPublisher publishes text plus an optional image for a project
type PostPublisher interface {
	Publish(ctx context.Context, project *models.Project, text string, img *image.Image) (string, error)
}

// NewsSource supplies best-effort news context
type NewsSource interface {
	FetchLatestNews(ctx context.Context, query string) []string
}

// TrendSource supplies best-effort trend context
type TrendSource interface {
	Enabled() bool
	FetchTrends(ctx context.Context, query string) []string
}

// ImageProviderFor selects the image backend for a project
type ImageProviderFor func(project *models.Project) image.Provider

// QuotaExceededError is returned by PostNow when the daily quota is
// exhausted; it carries the countdown until the next local midnight
type QuotaExceededError struct {
	Hours   int
	Minutes int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily limit reached; resets in %dh%dm", e.Hours, e.Minutes)
}

var errDailyLimit = fmt.Errorf("daily limit reached")

// stageError tags a pipeline failure with the stage it happened in, so
// metrics can tell where posts die. Messages pass through unchanged.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Dispatcher is the periodic pipeline entry point
type Dispatcher struct {
	repo      storage.Repository
	guard     *safety.Guard
	scheduler *scheduler.Scheduler
	generator ContentGenerator
	publisher PostPublisher
	news      NewsSource
	trends    TrendSource
	imageFor  ImageProviderFor
	decrypter crypto.Decrypter
	batchSize int
	now       func() time.Time
	metrics   metrics.Collector
	log       *logger.Logger
}

// Deps bundles the dispatcher's collaborators
type Deps struct {
	Repo      storage.Repository
	Guard     *safety.Guard
	Scheduler *scheduler.Scheduler
	Generator ContentGenerator
	Publisher PostPublisher
	News      NewsSource
	Trends    TrendSource
	ImageFor  ImageProviderFor
	Decrypter crypto.Decrypter
	BatchSize int
	Now       func() time.Time
	Metrics   metrics.Collector
}

// New creates a Dispatcher
func New(d Deps, log *logger.Logger) *Dispatcher {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 5
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	if d.ImageFor == nil {
		d.ImageFor = func(*models.Project) image.Provider { return image.NoneProvider{} }
	}
	return &Dispatcher{
		repo:      d.Repo,
		guard:     d.Guard,
		scheduler: d.Scheduler,
		generator: d.Generator,
		publisher: d.Publisher,
		news:      d.News,
		trends:    d.Trends,
		imageFor:  d.ImageFor,
		decrypter: d.Decrypter,
		batchSize: d.BatchSize,
		now:       d.Now,
		metrics:   d.Metrics,
		log:       log.WithComponent("dispatcher"),
	}
}

// ItemResult is the outcome of one claimed slot
type ItemResult struct {
	ScheduledPostID string `json:"id"`
	Status          string `json:"status"` // SUCCESS or FAILED
	TweetID         string `json:"tweet_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// RunResult summarizes one dispatch invocation
type RunResult struct {
	Processed int          `json:"processed"`
	Results   []ItemResult `json:"results"`
}

// Run is the periodic entry point: ensure the schedule, claim due slots and
// process each. One item's failure never aborts its siblings; the invocation
// itself only fails on schedule/query errors.
func (d *Dispatcher) Run(ctx context.Context) (*RunResult, error) {
	if _, err := d.scheduler.ScheduleDailyPosts(ctx); err != nil {
		return nil, fmt.Errorf("scheduling failed: %w", err)
	}

	due, err := d.repo.ListDueScheduledPosts(ctx, d.now(), d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query due posts: %w", err)
	}
	d.metrics.RecordDispatchBatch(len(due))

	result := &RunResult{}
	for _, slot := range due {
		// Claim before any external work. A slot that is no longer PENDING
		// was taken by a concurrent invocation; skip it.
		claimed, err := d.repo.ClaimScheduledPost(ctx, slot.ID)
		if err != nil {
			result.Results = append(result.Results, ItemResult{
				ScheduledPostID: slot.ID, Status: "FAILED", Error: err.Error(),
			})
			continue
		}
		if !claimed {
			continue
		}

		item := d.processSlot(ctx, slot)
		result.Results = append(result.Results, item)
	}
	result.Processed = len(result.Results)

	d.log.Info().Int("processed", result.Processed).Msg("Dispatch completed")
	return result, nil
}

// processSlot runs one claimed slot to a terminal status
func (d *Dispatcher) processSlot(ctx context.Context, slot *models.ScheduledPost) ItemResult {
	log := d.log.WithSlot(slot.ID)

	outcome, err := d.runPipeline(ctx, slot.ProjectID, &slot.CategoryID)
	if err != nil {
		d.recordFailure(ctx, slot.ProjectID, &slot.CategoryID, err)
		if uerr := d.repo.UpdateScheduledPostStatus(ctx, slot.ID, models.ScheduleFailed); uerr != nil {
			log.Error().Err(uerr).Msg("Failed to mark slot FAILED")
		}
		log.Error().Err(err).Msg("Slot processing failed")
		return ItemResult{ScheduledPostID: slot.ID, Status: "FAILED", Error: err.Error()}
	}

	if err := d.repo.UpdateScheduledPostStatus(ctx, slot.ID, models.SchedulePosted); err != nil {
		log.Error().Err(err).Msg("Failed to mark slot POSTED")
	}
	log.Info().Str("tweet_id", outcome.tweetID).Msg("Slot processed")
	return ItemResult{ScheduledPostID: slot.ID, Status: "SUCCESS", TweetID: outcome.tweetID}
}

// PostNow runs the immediate-post path for a project: same pipeline, no
// scheduled-post record. Quota exhaustion is returned as
// *QuotaExceededError carrying the reset countdown.
func (d *Dispatcher) PostNow(ctx context.Context, projectID string) (string, error) {
	outcome, err := d.runPipeline(ctx, projectID, nil)
	if err != nil {
		// The immediate path logs pre-category failures without one.
		d.recordFailure(ctx, projectID, nil, err)
		if err == errDailyLimit {
			hours, minutes := timeutil.ResetCountdown(d.now())
			return "", &QuotaExceededError{Hours: hours, Minutes: minutes}
		}
		return "", err
	}
	return outcome.tweetID, nil
}

type pipelineOutcome struct {
	tweetID string
}

// runPipeline executes quota check, context assembly, generation, optional
// image generation, publication and the SUCCESS log for one post.
// categoryID selects the slot's category; nil means the immediate path
// (active category, else the project's first).
func (d *Dispatcher) runPipeline(ctx context.Context, projectID string, categoryID *string) (*pipelineOutcome, error) {
	project, err := d.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, &stageError{stage: "project", err: fmt.Errorf("project not found: %w", err)}
	}

	category, err := resolveCategory(project, categoryID)
	if err != nil {
		return nil, &stageError{stage: "category", err: err}
	}
	log := d.log.WithProject(project.ID).WithCategory(category.ID)

	// Quota first: exhaustion must not contact any external backend.
	ok, err := d.guard.CanPostToday(ctx, project)
	if err != nil {
		return nil, &stageError{stage: "store", err: err}
	}
	if !ok {
		return nil, errDailyLimit
	}

	if project.GenerationKey == "" {
		return nil, &stageError{stage: "credentials",
			err: fmt.Errorf("generation API key is not configured for project %s", project.ID)}
	}
	generationKey, err := d.decrypter.Decrypt(project.GenerationKey)
	if err != nil {
		return nil, &stageError{stage: "credentials",
			err: fmt.Errorf("failed to decrypt generation API key: %w", err)}
	}

	// Best-effort context. Both fetchers return empty on failure.
	var trendContext, newsContext []string
	if category.TrendInspired && category.TrendMode != "" && d.trends != nil && d.trends.Enabled() {
		query := category.TrendSearchQuery
		if query == "" {
			query = "trending"
		}
		trendContext = d.trends.FetchTrends(ctx, query)
	}
	if category.UseLatestNews && d.news != nil {
		newsContext = d.news.FetchLatestNews(ctx, category.Name)
	}

	lastPost, err := d.guard.LastPostContent(ctx, category.ID)
	if err != nil {
		return nil, &stageError{stage: "store", err: err}
	}

	content, err := d.generator.GeneratePost(ctx, generationKey, ai.GenerateParams{
		Category:        *category,
		TrendContext:    trendContext,
		NewsContext:     newsContext,
		LastPostContent: lastPost,
		Now:             d.now(),
	})
	if err != nil {
		return nil, &stageError{stage: "generation", err: fmt.Errorf("content generation failed: %w", err)}
	}

	// Image generation is non-fatal: on failure the post goes out text-only.
	var img *image.Image
	if project.PostingRule != nil && project.PostingRule.ImageMode == models.ImageModeWithImage {
		provider := d.imageFor(project)
		img, err = provider.Generate(ctx, ai.BuildImagePrompt(content.XText, *category))
		if err != nil {
			d.metrics.RecordImageFailure()
			log.Warn().Err(err).Msg("Image generation failed, publishing text-only")
			img = nil
		}
	}

	tweetID, err := d.publisher.Publish(ctx, project, content.XText, img)
	if err != nil {
		return nil, &stageError{stage: "publish", err: err}
	}

	d.recordSuccess(ctx, project.ID, category.ID, content.XText, img, trendContext)
	d.metrics.RecordPublishSuccess()

	return &pipelineOutcome{tweetID: tweetID}, nil
}

// resolveCategory picks the category for a run: the slot's category when
// given, otherwise the active category, otherwise the project's first
func resolveCategory(project *models.Project, categoryID *string) (*models.Category, error) {
	if categoryID != nil {
		for i := range project.Categories {
			if project.Categories[i].ID == *categoryID {
				return &project.Categories[i], nil
			}
		}
		return nil, fmt.Errorf("category %s not found in project %s", *categoryID, project.ID)
	}

	if len(project.Categories) == 0 {
		return nil, fmt.Errorf("no categories found: create at least one category")
	}
	if active := project.ActiveCategory(); active != nil {
		return active, nil
	}
	return &project.Categories[0], nil
}

func (d *Dispatcher) recordSuccess(ctx context.Context, projectID, categoryID, content string, img *image.Image, trendContext []string) {
	entry := &models.PostLog{
		ProjectID:  projectID,
		CategoryID: &categoryID,
		Content:    content,
		Status:     models.LogSuccess,
		Platform:   models.PlatformX,
	}
	if img != nil && img.URL != "" {
		entry.ImageURL = &img.URL
	}
	if len(trendContext) > 0 {
		summary := strings.Join(trendContext, " | ")
		entry.TrendSource = &summary
	}
	if err := d.repo.CreatePostLog(ctx, entry); err != nil {
		d.log.Error().Err(err).Str("project_id", projectID).Msg("Failed to write success log")
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, projectID string, categoryID *string, cause error) {
	// Publish-attempt failures count by classified reason; everything that
	// died before (or outside) publication counts by pipeline stage, so the
	// publish metric only reflects actual API rejections.
	var pubErr *publisher.PublishError
	var stgErr *stageError
	switch {
	case errors.As(cause, &pubErr):
		d.metrics.RecordPublishFailure(string(pubErr.Reason))
	case errors.Is(cause, errDailyLimit):
		d.metrics.RecordPipelineFailure("quota")
	case errors.As(cause, &stgErr):
		d.metrics.RecordPipelineFailure(stgErr.stage)
	default:
		d.metrics.RecordPipelineFailure("other")
	}

	entry := &models.PostLog{
		ProjectID:  projectID,
		CategoryID: categoryID,
		Content:    "",
		Status:     models.LogFailed,
		Platform:   models.PlatformX,
		Error:      cause.Error(),
	}
	if err := d.repo.CreatePostLog(ctx, entry); err != nil {
		d.log.Error().Err(err).Str("project_id", projectID).Msg("Failed to write failure log")
	}
}
