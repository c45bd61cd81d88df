package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Test Feed</title>
<item>
  <title>Acme reports record earnings</title>
  <link>https://example.com/acme-earnings</link>
  <description>Acme Corp posted record quarterly revenue.</description>
  <pubDate>Fri, 28 Aug 2026 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Regulator opens antitrust probe</title>
  <link>https://example.com/probe</link>
  <description>An antitrust investigation was announced.</description>
</item>
<item>
  <description>entry with no title or link</description>
</item>
</channel>
</rss>`

func collectItems(t *testing.T, c Connector, src Source) ([]RawItem, error) {
	t.Helper()
	out := make(chan RawItem, 64)
	err := c.Fetch(context.Background(), src, out)
	close(out)
	var items []RawItem
	for item := range out {
		items = append(items, item)
	}
	return items, err
}

func TestFeedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewFeedConnector(FeedOptions{Timeout: 5 * time.Second, Backoff: 10 * time.Millisecond})
	items, err := collectItems(t, c, Source{Name: "test-feed", Type: TypeFeed, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Entry without title and link is dropped by the connector.
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.SourceID != "test-feed" {
		t.Errorf("expected source id test-feed, got %s", first.SourceID)
	}
	if first.Title != "Acme reports record earnings" {
		t.Errorf("unexpected title %q", first.Title)
	}
	if first.URL != "https://example.com/acme-earnings" {
		t.Errorf("unexpected url %q", first.URL)
	}
	if first.Published.IsZero() {
		t.Error("expected published timestamp to be parsed")
	}
	if items[1].Published.IsZero() == false {
		t.Error("expected missing pubDate to leave Published zero")
	}
}

func TestFeedFetchMaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewFeedConnector(FeedOptions{Backoff: 10 * time.Millisecond})
	items, err := collectItems(t, c, Source{Name: "test-feed", URL: srv.URL, MaxItems: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected max_items to cap output at 1, got %d", len(items))
	}
}

func TestFeedFetchRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewFeedConnector(FeedOptions{Attempts: 3, Backoff: 5 * time.Millisecond})
	_, err := collectItems(t, c, Source{Name: "flaky", URL: srv.URL})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFeedFetchRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewFeedConnector(FeedOptions{Attempts: 3, Backoff: 5 * time.Millisecond})
	items, err := collectItems(t, c, Source{Name: "recovering", URL: srv.URL})
	if err != nil {
		t.Fatalf("expected recovery on second attempt, got %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items after recovery, got %d", len(items))
	}
}

func TestFeedFetchCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewFeedConnector(FeedOptions{Backoff: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan RawItem) // unbuffered: emit would block
	err := c.Fetch(ctx, Source{Name: "cancelled", URL: srv.URL}, out)
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewFeedConnector(FeedOptions{Backoff: 5 * time.Millisecond, RateLimit: 50 * time.Millisecond})
	src := Source{Name: "throttled", URL: srv.URL}

	start := time.Now()
	if _, err := collectItems(t, c, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := collectItems(t, c, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected second fetch to wait out the rate limit, elapsed %v", elapsed)
	}
}
