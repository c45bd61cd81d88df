package store

import (
	"database/sql"
	"fmt"
)

// UpsertArticle writes an article keyed on its fingerprint. On conflict
// the classification fields and timestamps are refreshed while the
// original source id, url, and first-seen time are preserved, so the
// first writer wins for identity and re-sightings never create a second
// row. A non-empty body is kept over an empty one.
func (s *Store) UpsertArticle(a Article) error {
	if a.Fingerprint == "" {
		return fmt.Errorf("article has empty fingerprint")
	}

	bodyFetched := 0
	if a.BodyFetched {
		bodyFetched = 1
	}

	_, err := s.conn.Exec(`
INSERT INTO articles (fingerprint, title, body, source_id, url, published_at,
    first_seen_at, collected_at, category, confidence, method, raw_meta, body_fetched)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(fingerprint) DO UPDATE SET
    title = excluded.title,
    body = CASE WHEN excluded.body != '' THEN excluded.body ELSE articles.body END,
    published_at = excluded.published_at,
    collected_at = excluded.collected_at,
    category = excluded.category,
    confidence = excluded.confidence,
    method = excluded.method,
    body_fetched = MAX(articles.body_fetched, excluded.body_fetched)`,
		a.Fingerprint, a.Title, a.Body, a.SourceID, a.URL,
		formatTime(a.PublishedAt), formatTime(a.FirstSeenAt), formatTime(a.CollectedAt),
		a.Category, a.Confidence, a.Method, a.RawMeta, bodyFetched,
	)
	if err != nil {
		return fmt.Errorf("upserting article %s: %w", a.Fingerprint, err)
	}
	return nil
}

// Exists reports whether an article with the given fingerprint is stored.
func (s *Store) Exists(fingerprint string) (bool, error) {
	var one int
	err := s.conn.QueryRow(
		"SELECT 1 FROM articles WHERE fingerprint = ?", fingerprint,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking fingerprint %s: %w", fingerprint, err)
	}
	return true, nil
}

const articleColumns = `fingerprint, title, body, source_id, url, published_at,
    first_seen_at, collected_at, category, confidence, method, raw_meta, body_fetched`

// GetArticle returns a single article by fingerprint, or nil if absent.
func (s *Store) GetArticle(fingerprint string) (*Article, error) {
	row := s.conn.QueryRow(
		"SELECT "+articleColumns+" FROM articles WHERE fingerprint = ?", fingerprint,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListNeedingBody returns articles with an empty body that have not had
// a fetch attempted, oldest first.
func (s *Store) ListNeedingBody(limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(
		"SELECT "+articleColumns+` FROM articles
		WHERE body = '' AND body_fetched = 0
		ORDER BY collected_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleBody stores fetched full text for an article.
func (s *Store) UpdateArticleBody(fingerprint, body string) error {
	_, err := s.conn.Exec(
		"UPDATE articles SET body = ?, body_fetched = 1 WHERE fingerprint = ?",
		body, fingerprint,
	)
	return err
}

// MarkBodyAttempted records that a fetch was tried and failed, so the
// article is not retried on the next enrichment pass.
func (s *Store) MarkBodyAttempted(fingerprint string) error {
	_, err := s.conn.Exec(
		"UPDATE articles SET body_fetched = 1 WHERE fingerprint = ?", fingerprint,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticleInto(sc rowScanner) (*Article, error) {
	var a Article
	var published, firstSeen, collected string
	var fetched int
	if err := sc.Scan(&a.Fingerprint, &a.Title, &a.Body, &a.SourceID, &a.URL,
		&published, &firstSeen, &collected,
		&a.Category, &a.Confidence, &a.Method, &a.RawMeta, &fetched); err != nil {
		return nil, err
	}
	a.PublishedAt = parseTime(published)
	a.FirstSeenAt = parseTime(firstSeen)
	a.CollectedAt = parseTime(collected)
	a.BodyFetched = fetched != 0
	return &a, nil
}

func scanArticle(row *sql.Row) (*Article, error) {
	return scanArticleInto(row)
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticleInto(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}
