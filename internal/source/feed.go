package source

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

const defaultMaxPerFeed = 100

// FeedConnector pulls and parses RSS/Atom documents.
type FeedConnector struct {
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	minDelay time.Duration

	mu        sync.Mutex
	lastFetch map[string]time.Time
}

// FeedOptions configures retry and throttling behavior shared by all
// feed sources.
type FeedOptions struct {
	Timeout   time.Duration
	Attempts  int
	Backoff   time.Duration
	RateLimit time.Duration
}

// NewFeedConnector creates a feed connector.
func NewFeedConnector(opts FeedOptions) *FeedConnector {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &FeedConnector{
		timeout:   opts.Timeout,
		attempts:  opts.Attempts,
		backoff:   opts.Backoff,
		minDelay:  opts.RateLimit,
		lastFetch: make(map[string]time.Time),
	}
}

// Fetch parses the source's feed document and emits one RawItem per
// entry. A malformed entry (no link and no title) is skipped and
// logged; only a failure to retrieve or parse the document as a whole
// is returned as an error.
func (c *FeedConnector) Fetch(ctx context.Context, src Source, out chan<- RawItem) error {
	if err := c.throttle(ctx, src.Name); err != nil {
		return err
	}

	var feed *gofeed.Feed
	err := withRetry(ctx, c.attempts, c.backoff, func() error {
		fctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		parsed, err := gofeed.NewParser().ParseURLWithContext(src.URL, fctx)
		if err != nil {
			return err
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return fmt.Errorf("fetching feed %s: %w", src.URL, err)
	}

	limit := src.MaxItems
	if limit <= 0 {
		limit = defaultMaxPerFeed
	}

	emitted := 0
	for _, item := range feed.Items {
		if emitted >= limit {
			break
		}
		raw, ok := feedItem(src.Name, item)
		if !ok {
			log.Printf("skipping malformed entry in %s", src.Name)
			continue
		}
		select {
		case out <- raw:
			emitted++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func feedItem(sourceID string, item *gofeed.Item) (RawItem, bool) {
	if item == nil {
		return RawItem{}, false
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}
	if link == "" && item.Title == "" {
		return RawItem{}, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	raw := RawItem{
		SourceID:     sourceID,
		Title:        item.Title,
		Body:         body,
		URL:          link,
		Published:    published,
		PublishedRaw: item.Published,
	}
	if len(item.Categories) > 0 {
		raw.Meta = map[string]string{"feed_category": item.Categories[0]}
	}
	return raw, true
}

// throttle enforces the per-source rate limit: the first request in a
// burst goes through, subsequent ones wait out the minimum delay.
func (c *FeedConnector) throttle(ctx context.Context, name string) error {
	if c.minDelay <= 0 {
		return nil
	}

	c.mu.Lock()
	last := c.lastFetch[name]
	wait := c.minDelay - time.Since(last)
	c.lastFetch[name] = time.Now().Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
