package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
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
	"github.com/autopost-agent/internal/server"
	"github.com/autopost-agent/internal/storage/sqlite"
	"github.com/autopost-agent/internal/trend"
	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "autopost-server",
		Short: "HTTP server for the auto-posting pipeline",
		Long: `Serves the cron trigger endpoints, the immediate-post API and log
listing. With server.dispatch_cron set it also runs the dispatch loop
in-process; otherwise an external scheduler must call /cron/dispatch.`,
		RunE: runServer,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting autopost server")

	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cipher, err := crypto.New(cfg.Crypto.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	guard := safety.NewGuard(repo, nil, log)
	sched := scheduler.New(repo, cfg.Scheduler, nil, nil, log)

	disp := dispatcher.New(dispatcher.Deps{
		Repo:      repo,
		Guard:     guard,
		Scheduler: sched,
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

	srv := server.New(cfg.Server.Addr, sched, disp, repo, metrics.Handler(registry), log)

	// In-process dispatch ticker. Optional: deployments behind an external
	// cron (Vercel style) leave dispatch_cron empty and hit /cron/dispatch.
	var c *cron.Cron
	if cfg.Server.DispatchCron != "" {
		c = cron.New(cron.WithLogger(cronLogger{log}))
		if _, err := c.AddFunc(cfg.Server.DispatchCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
			defer cancel()
			if _, err := disp.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled dispatch failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule dispatch job: %w", err)
		}
		c.Start()
		log.Info().Str("cron", cfg.Server.DispatchCron).Msg("Dispatch job scheduled")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	log.Info().Msg("Shutting down")
	if c != nil {
		c.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}
