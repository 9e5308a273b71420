// Package scheduler computes and persists the day's posting slots. Exactly
// one batch is created per project per local calendar day; re-invocation is
// a no-op once any slot exists in today's window, regardless of status.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/autopost-agent/internal/config"
	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/storage"
	"github.com/autopost-agent/internal/timeutil"
	"github.com/autopost-agent/pkg/logger"
)

// Scheduler creates the daily scheduled-post batches
type Scheduler struct {
	repo storage.Repository
	cfg  config.SchedulerConfig
	now  func() time.Time
	rng  *rand.Rand
	log  *logger.Logger
}

// New creates a Scheduler. nowFn and rng may be nil for the wall clock and a
// time-seeded source; tests inject both for determinism.
func New(repo storage.Repository, cfg config.SchedulerConfig, nowFn func() time.Time, rng *rand.Rand, log *logger.Logger) *Scheduler {
	if nowFn == nil {
		nowFn = time.Now
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{
		repo: repo,
		cfg:  cfg,
		now:  nowFn,
		rng:  rng,
		log:  log.WithComponent("scheduler"),
	}
}

// Result summarizes one scheduling run
type Result struct {
	ProjectsSeen      int
	ProjectsScheduled int
	SlotsCreated      int
	Errors            []error
}

// ScheduleDailyPosts creates today's slots for every project with a posting
// rule and at least one category. Idempotent and safe to call on every
// invocation; per-project failures do not abort the others.
func (s *Scheduler) ScheduleDailyPosts(ctx context.Context) (*Result, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	result := &Result{ProjectsSeen: len(projects)}
	for _, project := range projects {
		if project.PostingRule == nil || len(project.Categories) == 0 {
			continue
		}

		created, err := s.scheduleProject(ctx, project)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("project %s: %w", project.ID, err))
			s.log.Error().Err(err).Str("project_id", project.ID).Msg("Failed to schedule project")
			continue
		}
		if created > 0 {
			result.ProjectsScheduled++
			result.SlotsCreated += created
		}
	}

	s.log.Info().
		Int("projects_seen", result.ProjectsSeen).
		Int("projects_scheduled", result.ProjectsScheduled).
		Int("slots_created", result.SlotsCreated).
		Int("errors", len(result.Errors)).
		Msg("Daily scheduling completed")

	return result, nil
}

func (s *Scheduler) scheduleProject(ctx context.Context, project *models.Project) (int, error) {
	now := s.now()
	start, end := timeutil.DayWindow(now)

	existing, err := s.repo.CountScheduledPosts(ctx, project.ID, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count existing slots: %w", err)
	}
	if existing > 0 {
		s.log.Debug().Str("project_id", project.ID).Msg("Slots already scheduled for today")
		return 0, nil
	}

	slots, err := s.computeSlots(project.PostingRule, now)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, slot := range slots {
		category := s.pickCategory(project)
		post := &models.ScheduledPost{
			ProjectID:   project.ID,
			CategoryID:  category.ID,
			ScheduledAt: slot,
			Status:      models.SchedulePending,
		}
		if err := s.repo.CreateScheduledPost(ctx, post); err != nil {
			return created, fmt.Errorf("failed to create slot at %s: %w", slot, err)
		}
		created++
	}

	s.log.Info().
		Str("project_id", project.ID).
		Int("slots", created).
		Str("mode", string(project.PostingRule.PostingMode)).
		Msg("Scheduled today's posts")

	return created, nil
}

// computeSlots returns the UTC slot instants for today, capped at the
// rule's daily limit and sorted ascending
func (s *Scheduler) computeSlots(rule *models.PostingRule, now time.Time) ([]time.Time, error) {
	limit := rule.DailyLimit()

	var slots []time.Time
	switch rule.PostingMode {
	case models.PostingModeRandom:
		startHour := s.cfg.RandomStartHour
		endHour := s.cfg.RandomEndHour
		if endHour <= startHour {
			startHour, endHour = 9, 21
		}
		for i := 0; i < limit; i++ {
			hour := startHour + s.rng.Intn(endHour-startHour)
			minute := s.rng.Intn(60)
			slots = append(slots, timeutil.LocalSlot(now, hour, minute))
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

	default: // fixed
		times := rule.FixedTimeList()
		if len(times) > limit {
			times = times[:limit]
		}
		for _, hhmm := range times {
			slot, err := timeutil.SlotAt(now, hhmm)
			if err != nil {
				s.log.Warn().Err(err).Str("entry", hhmm).Msg("Skipping invalid fixed time")
				continue
			}
			slots = append(slots, slot)
		}
	}

	return slots, nil
}

// pickCategory chooses the slot's category: the active category when one
// exists, otherwise uniformly at random among all of the project's
// categories. (The upstream behavior was always-random, which contradicted
// the active-category setting; this resolves the ambiguity in favor of the
// setting.)
func (s *Scheduler) pickCategory(project *models.Project) *models.Category {
	if active := project.ActiveCategory(); active != nil {
		return active
	}
	return &project.Categories[s.rng.Intn(len(project.Categories))]
}
