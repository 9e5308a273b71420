package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"github.com/autopost-agent/internal/metrics"
	"github.com/autopost-agent/pkg/logger"
)

const (
	searchURL = "https://api.twitter.com/2/tweets/search/recent"
	maxTrends = 3
)

// Tweet is one entry from the recent search endpoint
type Tweet struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	PublicMetrics PublicMetrics `json:"public_metrics"`
}

// PublicMetrics carries the engagement counters used for ranking
type PublicMetrics struct {
	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
}

type searchResponse struct {
	Data []Tweet `json:"data"`
}

// Fetcher searches X for recent popular posts to use as prompt context.
// App-only bearer auth is enough for read-only search; write operations use
// the per-project user-context client instead.
type Fetcher struct {
	httpClient *http.Client
	enabled    bool
	metrics    metrics.Collector
	log        *logger.Logger
}

// NewFetcher creates a trend fetcher. With enabled=false FetchTrends always
// returns nil without touching the network (free API tiers reject the
// search endpoint).
func NewFetcher(bearerToken string, enabled bool, collector metrics.Collector, log *logger.Logger) *Fetcher {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearerToken, TokenType: "Bearer"})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = 15 * time.Second

	return &Fetcher{
		httpClient: client,
		enabled:    enabled && bearerToken != "",
		metrics:    collector,
		log:        log.WithComponent("trend"),
	}
}

// Enabled reports whether trend fetching is active
func (f *Fetcher) Enabled() bool {
	return f.enabled
}

// FetchTrends returns up to 3 recent, non-retweet, non-reply post texts
// matching the query, ranked by like count descending. Best-effort: any
// failure returns nil and is recorded on the failure metric.
func (f *Fetcher) FetchTrends(ctx context.Context, query string) []string {
	if !f.enabled {
		return nil
	}
	if query == "" {
		query = "trending"
	}

	params := url.Values{}
	params.Set("query", query+" -is:retweet -is:reply lang:ja")
	params.Set("max_results", "10")
	params.Set("sort_order", "recency")
	params.Set("tweet.fields", "public_metrics,text")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+params.Encode(), nil)
	if err != nil {
		f.fail(err)
		return nil
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.fail(err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		f.fail(fmt.Errorf("search returned %s: %s", resp.Status, string(body)))
		return nil
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		f.fail(fmt.Errorf("failed to decode search response: %w", err))
		return nil
	}
	if len(result.Data) == 0 {
		return nil
	}

	return RankByLikes(result.Data, maxTrends)
}

// RankByLikes sorts tweets by like count descending and returns up to limit
// texts
func RankByLikes(tweets []Tweet, limit int) []string {
	sorted := make([]Tweet, len(tweets))
	copy(sorted, tweets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublicMetrics.LikeCount > sorted[j].PublicMetrics.LikeCount
	})

	if limit > len(sorted) {
		limit = len(sorted)
	}
	texts := make([]string, 0, limit)
	for _, t := range sorted[:limit] {
		texts = append(texts, t.Text)
	}
	return texts
}

func (f *Fetcher) fail(err error) {
	f.metrics.RecordContextFetchFailure("trend")
	f.log.Warn().Err(err).Msg("Trend fetch failed, continuing without trend context")
}
