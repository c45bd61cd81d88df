package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"newspipe/internal/classify"
	"newspipe/internal/store"
)

// Result holds the outcome of one enrichment run.
type Result struct {
	Fetched      int
	Reclassified int
	Failed       int
}

// Enricher fills in missing article bodies via HTTP and readability
// extraction, then re-runs classification on the enriched text so the
// stored category reflects the full article rather than just the
// headline and summary.
type Enricher struct {
	store      *store.Store
	classifier *classify.Classifier
	client     *http.Client
	limit      int
}

// NewEnricher creates an enricher. classifier may be nil to skip
// re-classification. limit caps articles per run; values below 1 use
// the store's default batch size.
func NewEnricher(st *store.Store, classifier *classify.Classifier, timeout time.Duration, limit int) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		store:      st,
		classifier: classifier,
		limit:      limit,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Run fetches bodies for articles that have none yet. A domain whose
// first fetch fails with an HTTP error is skipped for the rest of the
// run to avoid hammering a host that is refusing us.
func (e *Enricher) Run(ctx context.Context) *Result {
	articles, err := e.store.ListNeedingBody(e.limit)
	if err != nil {
		log.Printf("fetch: listing articles needing body: %v", err)
		return &Result{}
	}

	if len(articles) == 0 {
		log.Println("fetch: no articles need body enrichment")
		return &Result{}
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, article := range articles {
		if ctx.Err() != nil {
			break
		}

		u, _ := url.Parse(article.URL)
		domain := ""
		if u != nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			e.store.MarkBodyAttempted(article.Fingerprint)
			result.Failed++
			continue
		}

		body, httpErr := e.fetchBody(ctx, article.URL)
		if httpErr != nil {
			e.store.MarkBodyAttempted(article.Fingerprint)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("fetch: HTTP error for %s, skipping remaining from %s", article.URL, domain)
			continue
		}

		if body == "" {
			e.store.MarkBodyAttempted(article.Fingerprint)
			result.Failed++
			log.Printf("fetch: no extractable content from %s", article.URL)
			continue
		}

		if err := e.store.UpdateArticleBody(article.Fingerprint, body); err != nil {
			log.Printf("fetch: updating body for %s: %v", article.Fingerprint, err)
			result.Failed++
			continue
		}
		result.Fetched++
		log.Printf("fetch: enriched %q", article.Title)

		if e.classifier != nil {
			e.reclassify(ctx, article, body, result)
		}
	}

	log.Printf("fetch: run complete: %d fetched, %d reclassified, %d failed",
		result.Fetched, result.Reclassified, result.Failed)
	return result
}

func (e *Enricher) reclassify(ctx context.Context, article store.Article, body string, result *Result) {
	res, err := e.classifier.Classify(ctx, article.Title, body)
	if err != nil {
		return
	}
	article.Body = body
	article.BodyFetched = true
	article.Category = res.Category
	article.Confidence = res.Confidence
	article.Method = res.Method
	if err := e.store.UpsertArticle(article); err != nil {
		log.Printf("fetch: saving reclassification for %s: %v", article.Fingerprint, err)
		return
	}
	result.Reclassified++
}

func (e *Enricher) fetchBody(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "newspipe/1.0 (news collector)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	extracted, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(extracted.TextContent)
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
