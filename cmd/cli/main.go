package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/autopost-agent/internal/ai"
	"github.com/autopost-agent/internal/config"
	"github.com/autopost-agent/internal/crypto"
	"github.com/autopost-agent/internal/dispatcher"
	"github.com/autopost-agent/internal/image"
	"github.com/autopost-agent/internal/metrics"
	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/news"
	"github.com/autopost-agent/internal/publisher"
	"github.com/autopost-agent/internal/safety"
	"github.com/autopost-agent/internal/scheduler"
	"github.com/autopost-agent/internal/storage"
	"github.com/autopost-agent/internal/storage/sqlite"
	"github.com/autopost-agent/internal/trend"
	"github.com/autopost-agent/internal/x"
	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
	cipher  *crypto.Cipher
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autopost",
		Short: "Auto-posting agent for X",
		Long: `Manages projects, categories and posting rules, and runs the
scheduling and dispatch pipeline from the command line.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(credentialsCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(postNowCmd())
	rootCmd.AddCommand(logsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cipher, err = crypto.New(cfg.Crypto.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	return nil
}

// buildDispatcher assembles the full pipeline for the run commands
func buildDispatcher() *dispatcher.Dispatcher {
	limiter := ratelimit.NewDefaultLimiter()
	collector := metrics.Noop{}

	return dispatcher.New(dispatcher.Deps{
		Repo:      repo,
		Guard:     safety.NewGuard(repo, nil, log),
		Scheduler: scheduler.New(repo, cfg.Scheduler, nil, nil, log),
		Generator: ai.NewGenerator(cfg.Anthropic, limiter, log),
		Publisher: publisher.New(cipher, nil, limiter, log),
		News:      news.NewFetcher(cfg.News, limiter, collector, log),
		Trends:    trend.NewFetcher(cfg.Trends.BearerToken, cfg.Trends.Enabled, collector, log),
		ImageFor: func(project *models.Project) image.Provider {
			return image.ForTag(cfg.Image.Provider, cfg.Image.OpenAIAPIKey, cfg.Image.GeminiAPIKey, limiter, log)
		},
		Decrypter: cipher,
		BatchSize: cfg.Scheduler.DispatchBatchSize,
		Metrics:   collector,
	}, log)
}

// ============ PROJECT COMMANDS ============

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project management commands",
	}

	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectDeleteCmd())
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, userID, generationKey string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project := &models.Project{UserID: userID, Name: name}

			if generationKey != "" {
				encrypted, err := cipher.Encrypt(generationKey)
				if err != nil {
					return fmt.Errorf("failed to encrypt generation key: %w", err)
				}
				project.GenerationKey = encrypted
			}

			if err := repo.CreateProject(context.Background(), project); err != nil {
				return fmt.Errorf("failed to create project: %w", err)
			}

			fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&generationKey, "generation-key", "", "generation backend API key (stored encrypted)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("user")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := repo.ListProjects(context.Background())
			if err != nil {
				return err
			}

			if len(projects) == 0 {
				fmt.Println("No projects found")
				return nil
			}

			for _, p := range projects {
				active := "-"
				if c := p.ActiveCategory(); c != nil {
					active = c.Name
				}
				fmt.Printf("%s  %-20s  user=%s  categories=%d  active=%s\n",
					p.ID, p.Name, p.UserID, len(p.Categories), active)
			}
			return nil
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and all of its categories, rules, slots and logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := repo.DeleteProject(context.Background(), projectID); err != nil {
				return fmt.Errorf("failed to delete project: %w", err)
			}
			fmt.Printf("Deleted project %s\n", projectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.MarkFlagRequired("project")
	return cmd
}

// ============ CATEGORY COMMANDS ============

func categoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Content category commands",
	}

	cmd.AddCommand(categoryAddCmd())
	cmd.AddCommand(categoryUpdateCmd())
	cmd.AddCommand(categoryListCmd())
	cmd.AddCommand(categoryActivateCmd())
	return cmd
}

func categoryAddCmd() *cobra.Command {
	var projectID, name, audience, tone, goal, ngWords, hashtags, length, instructions, imagePrompt string
	var useNews bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a category to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			category := &models.Category{
				ProjectID:          projectID,
				Name:               name,
				TargetAudience:     audience,
				Tone:               tone,
				Goal:               goal,
				NGWords:            ngWords,
				PostLength:         models.PostLength(length),
				UseLatestNews:      useNews,
				CustomInstructions: instructions,
				ImagePrompt:        imagePrompt,
			}
			if hashtags != "" {
				category.HashtagMode = models.HashtagModeManual
				category.Hashtags = hashtags
			} else {
				category.HashtagMode = models.HashtagModeAuto
			}

			if err := repo.CreateCategory(context.Background(), category); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}

			fmt.Printf("Created category %s (%s)\n", category.Name, category.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "category name (also the news search query)")
	cmd.Flags().StringVar(&audience, "audience", "", "target audience")
	cmd.Flags().StringVar(&tone, "tone", "professional", "writing tone")
	cmd.Flags().StringVar(&goal, "goal", "", "posting goal")
	cmd.Flags().StringVar(&ngWords, "ng-words", "", "comma-separated forbidden words")
	cmd.Flags().StringVar(&hashtags, "hashtags", "", "manual hashtags (empty means auto)")
	cmd.Flags().StringVar(&length, "length", "normal", "post length: short, normal or long")
	cmd.Flags().BoolVar(&useNews, "use-news", false, "include latest news context in generation")
	cmd.Flags().StringVar(&instructions, "instructions", "", "custom generation instructions")
	cmd.Flags().StringVar(&imagePrompt, "image-prompt", "", "base prompt for image generation")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("name")
	return cmd
}

func categoryUpdateCmd() *cobra.Command {
	var projectID, categoryID, name, audience, tone, goal, ngWords, hashtags, length, instructions, imagePrompt string
	var useNews bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a category's fields; only the flags given change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			categories, err := repo.ListCategories(ctx, projectID)
			if err != nil {
				return err
			}
			var category *models.Category
			for _, c := range categories {
				if c.ID == categoryID {
					category = c
					break
				}
			}
			if category == nil {
				return fmt.Errorf("category %s not found in project %s", categoryID, projectID)
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				category.Name = name
			}
			if flags.Changed("audience") {
				category.TargetAudience = audience
			}
			if flags.Changed("tone") {
				category.Tone = tone
			}
			if flags.Changed("goal") {
				category.Goal = goal
			}
			if flags.Changed("ng-words") {
				category.NGWords = ngWords
			}
			if flags.Changed("hashtags") {
				if hashtags != "" {
					category.HashtagMode = models.HashtagModeManual
					category.Hashtags = hashtags
				} else {
					category.HashtagMode = models.HashtagModeAuto
					category.Hashtags = ""
				}
			}
			if flags.Changed("length") {
				category.PostLength = models.PostLength(length)
			}
			if flags.Changed("use-news") {
				category.UseLatestNews = useNews
			}
			if flags.Changed("instructions") {
				category.CustomInstructions = instructions
			}
			if flags.Changed("image-prompt") {
				category.ImagePrompt = imagePrompt
			}

			if err := repo.UpdateCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to update category: %w", err)
			}

			fmt.Printf("Updated category %s (%s)\n", category.Name, category.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&categoryID, "category", "", "category id")
	cmd.Flags().StringVar(&name, "name", "", "category name (also the news search query)")
	cmd.Flags().StringVar(&audience, "audience", "", "target audience")
	cmd.Flags().StringVar(&tone, "tone", "", "writing tone")
	cmd.Flags().StringVar(&goal, "goal", "", "posting goal")
	cmd.Flags().StringVar(&ngWords, "ng-words", "", "comma-separated forbidden words")
	cmd.Flags().StringVar(&hashtags, "hashtags", "", "manual hashtags (empty switches back to auto)")
	cmd.Flags().StringVar(&length, "length", "", "post length: short, normal or long")
	cmd.Flags().BoolVar(&useNews, "use-news", false, "include latest news context in generation")
	cmd.Flags().StringVar(&instructions, "instructions", "", "custom generation instructions")
	cmd.Flags().StringVar(&imagePrompt, "image-prompt", "", "base prompt for image generation")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("category")
	return cmd
}

func categoryListCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := repo.ListCategories(context.Background(), projectID)
			if err != nil {
				return err
			}

			for _, c := range categories {
				marker := " "
				if c.IsActive {
					marker = "*"
				}
				fmt.Printf("%s %s  %-20s  length=%s  news=%v\n",
					marker, c.ID, c.Name, c.PostLength, c.UseLatestNews)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.MarkFlagRequired("project")
	return cmd
}

func categoryActivateCmd() *cobra.Command {
	var projectID, categoryID string

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Make one category active, deactivating its siblings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := repo.ActivateCategory(context.Background(), projectID, categoryID); err != nil {
				return fmt.Errorf("failed to activate category: %w", err)
			}
			fmt.Printf("Activated category %s\n", categoryID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&categoryID, "category", "", "category id")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("category")
	return cmd
}

// ============ POSTING RULE COMMANDS ============

func ruleCmd() *cobra.Command {
	var projectID, mode, fixedTimes, imageMode string
	var maxPerDay int

	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Set a project's posting rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := &models.PostingRule{
				ProjectID:      projectID,
				MaxPostsPerDay: maxPerDay,
				PostingMode:    models.PostingMode(mode),
				FixedTimes:     fixedTimes,
				ImageMode:      models.ImageMode(imageMode),
			}

			if err := repo.SavePostingRule(context.Background(), rule); err != nil {
				return fmt.Errorf("failed to save posting rule: %w", err)
			}

			fmt.Printf("Saved posting rule for project %s: %d/day, mode=%s\n",
				projectID, rule.DailyLimit(), mode)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().IntVar(&maxPerDay, "max-per-day", 1, "posts per day (1-3)")
	cmd.Flags().StringVar(&mode, "mode", "fixed", "posting mode: fixed or random")
	cmd.Flags().StringVar(&fixedTimes, "times", "", `fixed local times, e.g. "09:00,18:00"`)
	cmd.Flags().StringVar(&imageMode, "image", "none", "image mode: none or with_image")
	cmd.MarkFlagRequired("project")
	return cmd
}

// ============ CREDENTIAL COMMANDS ============

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "X API credential commands",
	}

	cmd.AddCommand(credentialsSetCmd())
	cmd.AddCommand(credentialsVerifyCmd())
	return cmd
}

func credentialsSetCmd() *cobra.Command {
	var projectID, apiKey, apiKeySecret, accessToken, accessTokenSecret string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a project's OAuth 1.0a credentials (encrypted at rest)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred := &models.XCredential{ProjectID: projectID}

			var err error
			if cred.APIKey, err = cipher.Encrypt(apiKey); err != nil {
				return err
			}
			if cred.APIKeySecret, err = cipher.Encrypt(apiKeySecret); err != nil {
				return err
			}
			if cred.AccessToken, err = cipher.Encrypt(accessToken); err != nil {
				return err
			}
			if cred.AccessTokenSecret, err = cipher.Encrypt(accessTokenSecret); err != nil {
				return err
			}

			if err := repo.SaveXCredential(context.Background(), cred); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			fmt.Printf("Saved X credentials for project %s\n", projectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "consumer API key")
	cmd.Flags().StringVar(&apiKeySecret, "api-key-secret", "", "consumer API key secret")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "user access token")
	cmd.Flags().StringVar(&accessTokenSecret, "access-token-secret", "", "user access token secret")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("api-key")
	cmd.MarkFlagRequired("api-key-secret")
	cmd.MarkFlagRequired("access-token")
	cmd.MarkFlagRequired("access-token-secret")
	return cmd
}

func credentialsVerifyCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify stored credentials against the X API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cred, err := repo.GetXCredential(ctx, projectID)
			if err != nil {
				return fmt.Errorf("credentials not found: %w", err)
			}

			var creds x.Credentials
			if creds.APIKey, err = cipher.Decrypt(cred.APIKey); err != nil {
				return fmt.Errorf("failed to decrypt credentials: %w", err)
			}
			if creds.APIKeySecret, err = cipher.Decrypt(cred.APIKeySecret); err != nil {
				return fmt.Errorf("failed to decrypt credentials: %w", err)
			}
			if creds.AccessToken, err = cipher.Decrypt(cred.AccessToken); err != nil {
				return fmt.Errorf("failed to decrypt credentials: %w", err)
			}
			if creds.AccessTokenSecret, err = cipher.Decrypt(cred.AccessTokenSecret); err != nil {
				return fmt.Errorf("failed to decrypt credentials: %w", err)
			}

			client := x.NewClient(creds, ratelimit.NewDefaultLimiter(), log)
			user, err := client.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			fmt.Printf("Authenticated as @%s (%s)\n", user.Username, user.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.MarkFlagRequired("project")
	return cmd
}

// ============ PIPELINE COMMANDS ============

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Create today's posting slots for all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched := scheduler.New(repo, cfg.Scheduler, nil, nil, log)

			result, err := sched.ScheduleDailyPosts(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Scheduled %d slots across %d of %d projects\n",
				result.SlotsCreated, result.ProjectsScheduled, result.ProjectsSeen)
			for _, e := range result.Errors {
				fmt.Printf("  error: %v\n", e)
			}
			return nil
		},
	}
}

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch pass: claim due slots and post them",
		RunE: func(cmd *cobra.Command, args []string) error {
			disp := buildDispatcher()

			result, err := disp.Run(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Processed %d slots\n", result.Processed)
			for _, item := range result.Results {
				if item.Status == "SUCCESS" {
					fmt.Printf("  %s  SUCCESS  tweet=%s\n", item.ScheduledPostID, item.TweetID)
				} else {
					fmt.Printf("  %s  FAILED   %s\n", item.ScheduledPostID, item.Error)
				}
			}
			return nil
		},
	}
}

func postNowCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "post-now",
		Short: "Generate and publish a post immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			disp := buildDispatcher()

			tweetID, err := disp.PostNow(context.Background(), projectID)
			if err != nil {
				var quotaErr *dispatcher.QuotaExceededError
				if errors.As(err, &quotaErr) {
					fmt.Printf("Daily limit reached; resets in %dh%dm\n", quotaErr.Hours, quotaErr.Minutes)
					return nil
				}
				return err
			}

			fmt.Printf("Posted: %s\n", tweetID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.MarkFlagRequired("project")
	return cmd
}

// ============ LOG COMMANDS ============

func logsCmd() *cobra.Command {
	var projectID, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List a project's post history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultPostLogFilter()
			filter.ProjectID = &projectID
			filter.Limit = limit
			if status != "" {
				s := models.LogStatus(status)
				filter.Status = &s
			}

			logs, err := repo.ListPostLogs(context.Background(), filter)
			if err != nil {
				return err
			}

			if len(logs) == 0 {
				fmt.Println("No logs found")
				return nil
			}

			for _, l := range logs {
				line := fmt.Sprintf("%s  %-7s  %s", l.PostedAt.Format(time.RFC3339), l.Status, truncate(l.Content, 60))
				if l.Status == models.LogFailed && l.Error != "" {
					line += "  err=" + truncate(l.Error, 60)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: SUCCESS or FAILED")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	cmd.MarkFlagRequired("project")
	return cmd
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
