package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/autopost-agent/internal/config"
	"github.com/autopost-agent/internal/metrics"
	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

var testLog = logger.New(logger.Config{Level: "error", Format: "console", Output: "stdout"})

func rssBody(items int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>feed</title>`)
	for i := 1; i <= items; i++ {
		fmt.Fprintf(&b, `<item><title>Article %d</title><link>https://example.com/%d</link><description>Snippet %d</description></item>`, i, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newTestFetcher(baseURL string) *Fetcher {
	f := NewFetcher(
		config.NewsConfig{Language: "ja", Country: "JP"},
		ratelimit.NewDefaultLimiter(),
		metrics.Noop{},
		testLog,
	)
	f.baseURL = baseURL
	return f
}

func TestFetchLatestNewsCapsAtThree(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssBody(5))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	items := f.FetchLatestNews(context.Background(), "AI スタートアップ")

	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if !strings.Contains(items[0], "Title: Article 1") ||
		!strings.Contains(items[0], "Link: https://example.com/1") ||
		!strings.Contains(items[0], "Snippet: Snippet 1") {
		t.Errorf("item format unexpected: %q", items[0])
	}
	if gotQuery != "AI スタートアップ" {
		t.Errorf("query = %q, not forwarded", gotQuery)
	}
}

func TestFetchLatestNewsMissingSnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>f</title>`+
			`<item><title>Bare</title><link>https://example.com/x</link></item></channel></rss>`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	items := f.FetchLatestNews(context.Background(), "query")

	if len(items) != 1 || !strings.Contains(items[0], "Snippet: No snippet") {
		t.Errorf("missing-snippet placeholder not applied: %v", items)
	}
}

func TestFetchLatestNewsFailureReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)

	// Best-effort contract: a broken feed yields no items and no panic.
	if items := f.FetchLatestNews(context.Background(), "query"); len(items) != 0 {
		t.Errorf("items = %v, want none on fetch failure", items)
	}
}
