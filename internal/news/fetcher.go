package news

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"

	"github.com/autopost-agent/internal/config"
	"github.com/autopost-agent/internal/metrics"
	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

const (
	maxItems       = 3
	defaultBaseURL = "https://news.google.com/rss/search"
)

// Fetcher pulls recent headlines from Google News RSS for prompt context
type Fetcher struct {
	parser   *gofeed.Parser
	baseURL  string
	language string
	country  string
	limiter  *ratelimit.MultiLimiter
	metrics  metrics.Collector
	log      *logger.Logger
}

// NewFetcher creates a news fetcher with the configured locale
func NewFetcher(cfg config.NewsConfig, limiter *ratelimit.MultiLimiter, collector metrics.Collector, log *logger.Logger) *Fetcher {
	return &Fetcher{
		parser:   gofeed.NewParser(),
		baseURL:  defaultBaseURL,
		language: cfg.Language,
		country:  cfg.Country,
		limiter:  limiter,
		metrics:  collector,
		log:      log.WithComponent("news"),
	}
}

// FetchLatestNews returns up to 3 recent articles matching the query, each
// bundled as a title/link/snippet string. News context is strictly
// best-effort: every failure returns an empty slice and is only visible
// through the log and the context-fetch-failure metric.
func (f *Fetcher) FetchLatestNews(ctx context.Context, query string) []string {
	if err := f.limiter.Wait(ctx, ratelimit.LimiterNews); err != nil {
		f.fail(err)
		return nil
	}

	feedURL := fmt.Sprintf(
		"%s?q=%s&hl=%s&gl=%s&ceid=%s:%s",
		f.baseURL, url.QueryEscape(query), f.language, f.country, f.country, f.language,
	)

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		f.fail(err)
		return nil
	}

	items := formatItems(feed)

	f.log.Debug().
		Str("query", query).
		Int("count", len(items)).
		Msg("Fetched news context")

	return items
}

// formatItems bundles up to maxItems feed entries as title/link/snippet
// blocks for the prompt
func formatItems(feed *gofeed.Feed) []string {
	items := make([]string, 0, maxItems)
	for _, item := range feed.Items {
		if len(items) >= maxItems {
			break
		}
		snippet := item.Description
		if snippet == "" {
			snippet = item.Content
		}
		if snippet == "" {
			snippet = "No snippet"
		}
		items = append(items, fmt.Sprintf("Title: %s\nLink: %s\nSnippet: %s", item.Title, item.Link, snippet))
	}
	return items
}

func (f *Fetcher) fail(err error) {
	f.metrics.RecordContextFetchFailure("news")
	f.log.Warn().Err(err).Msg("News fetch failed, continuing without news context")
}
