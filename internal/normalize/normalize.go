// Package normalize converts raw source payloads into canonical
// article records ready for classification.
package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"newspipe/internal/dedup"
	"newspipe/internal/source"
	"newspipe/internal/store"
)

// ErrEmptyItem marks a raw item with neither title nor body, which
// signals a malformed source entry. Counted as a failure, never fatal
// to the cycle.
var ErrEmptyItem = errors.New("item has empty title and body")

// Normalizer builds store.Article values from raw items.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize cleans the item's text, canonicalizes its timestamp,
// derives the dedup fingerprint, and returns an Article with category
// unset (the classifier fills it in).
func (n *Normalizer) Normalize(item source.RawItem) (store.Article, error) {
	title := CleanText(StripHTML(item.Title))
	body := CleanText(StripHTML(item.Body))

	if title == "" && body == "" {
		return store.Article{}, ErrEmptyItem
	}

	collected := n.now().UTC()

	published := item.Published
	if published.IsZero() && item.PublishedRaw != "" {
		if t, err := dateparse.ParseAny(item.PublishedRaw); err == nil {
			published = t
		}
	}
	if published.IsZero() {
		published = collected
	}

	var rawMeta string
	if len(item.Meta) > 0 {
		if b, err := json.Marshal(item.Meta); err == nil {
			rawMeta = string(b)
		}
	}

	return store.Article{
		Fingerprint: dedup.Fingerprint(item.URL, title, body),
		Title:       title,
		Body:        body,
		SourceID:    item.SourceID,
		URL:         strings.TrimSpace(item.URL),
		PublishedAt: published.UTC(),
		FirstSeenAt: collected,
		CollectedAt: collected,
		Category:    "unclassified",
		RawMeta:     rawMeta,
		BodyFetched: body != "",
	}, nil
}

// StripHTML removes tags and decodes the handful of entities that show
// up in feed descriptions.
func StripHTML(text string) string {
	if !strings.ContainsRune(text, '<') && !strings.ContainsRune(text, '&') {
		return text
	}

	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	return s
}

// CleanText trims and collapses all runs of whitespace to single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
