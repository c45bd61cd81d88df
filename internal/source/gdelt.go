package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultGDELTBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"
	gdeltTimeLayout     = "20060102150405"
	gdeltSeenLayout     = "20060102T150405Z"
)

// GDELTConnector queries the GDELT DOC 2.0 API in artlist mode. The
// API has no cursor, so paging slides the end of the time window back
// past the oldest article of each page until the window is exhausted.
type GDELTConnector struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	pageSize int
	maxPages int
	lookback time.Duration
	now      func() time.Time
}

// GDELTOptions configures the bulk-event connector.
type GDELTOptions struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
	PageSize int
	MaxPages int
	Lookback time.Duration
}

// NewGDELTConnector creates a GDELT DOC API connector.
func NewGDELTConnector(opts GDELTOptions) *GDELTConnector {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.PageSize <= 0 || opts.PageSize > 250 {
		opts.PageSize = 250
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 4
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 24 * time.Hour
	}
	return &GDELTConnector{
		client:   &http.Client{Timeout: opts.Timeout},
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		lookback: opts.Lookback,
		now:      time.Now,
	}
}

type gdeltArticle struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	SeenDate      string `json:"seendate"`
	Domain        string `json:"domain"`
	Language      string `json:"language"`
	SourceCountry string `json:"sourcecountry"`
}

type gdeltResponse struct {
	Articles []gdeltArticle `json:"articles"`
}

// Fetch pages through the article list for the source's query within
// the lookback window. GDELT returns titles only; bodies are filled in
// later by the enrichment pass.
func (c *GDELTConnector) Fetch(ctx context.Context, src Source, out chan<- RawItem) error {
	if src.Query == "" {
		return fmt.Errorf("source %s: bulk-event sources require a query", src.Name)
	}

	endpoint := src.URL
	if endpoint == "" {
		endpoint = defaultGDELTBaseURL
	}

	limit := src.MaxItems
	if limit <= 0 {
		limit = c.pageSize * c.maxPages
	}

	now := c.now().UTC()
	windowStart := now.Add(-c.lookback)
	windowEnd := now
	emitted := 0

	for page := 0; page < c.maxPages; page++ {
		articles, err := c.fetchPage(ctx, endpoint, src.Query, windowStart, windowEnd)
		if err != nil {
			return fmt.Errorf("querying gdelt for %s: %w", src.Name, err)
		}
		if len(articles) == 0 {
			return nil
		}

		oldest := windowEnd
		for _, a := range articles {
			if emitted >= limit {
				return nil
			}
			seen, ok := parseSeenDate(a.SeenDate)
			if ok && seen.Before(oldest) {
				oldest = seen
			}
			if a.URL == "" && a.Title == "" {
				continue
			}

			raw := RawItem{
				SourceID:     src.Name,
				Title:        a.Title,
				URL:          a.URL,
				Published:    seen,
				PublishedRaw: a.SeenDate,
				Meta: map[string]string{
					"domain":         a.Domain,
					"language":       a.Language,
					"source_country": a.SourceCountry,
				},
			}
			select {
			case out <- raw:
				emitted++
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(articles) < c.pageSize {
			return nil
		}
		// Slide the window past the oldest article we saw.
		windowEnd = oldest.Add(-time.Second)
		if !windowEnd.After(windowStart) {
			return nil
		}
	}
	return nil
}

func (c *GDELTConnector) fetchPage(ctx context.Context, endpoint, query string, start, end time.Time) ([]gdeltArticle, error) {
	params := url.Values{
		"query":         {query},
		"mode":          {"artlist"},
		"format":        {"json"},
		"sort":          {"datedesc"},
		"maxrecords":    {strconv.Itoa(c.pageSize)},
		"startdatetime": {start.Format(gdeltTimeLayout)},
		"enddatetime":   {end.Format(gdeltTimeLayout)},
	}

	var articles []gdeltArticle
	err := withRetry(ctx, c.attempts, c.backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "newspipe/1.0 (news collector)")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		var decoded gdeltResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		articles = decoded.Articles
		return nil
	})
	return articles, err
}

func parseSeenDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(gdeltSeenLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
