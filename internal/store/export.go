package store

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ExportFilter narrows what ListForExport returns. Zero values mean no
// restriction.
type ExportFilter struct {
	Since    time.Time
	Category string
	SourceID string
	Limit    int
}

// ListForExport returns stored articles matching the filter, ordered by
// collection time ascending so consumers can resume from the last
// timestamp they saw. Consumed by the external bulk-export job.
func (s *Store) ListForExport(f ExportFilter) ([]Article, error) {
	q := sq.Select(articleColumns).From("articles").OrderBy("collected_at ASC")

	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"collected_at": formatTime(f.Since)})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	if f.SourceID != "" {
		q = q.Where(sq.Eq{"source_id": f.SourceID})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building export query: %w", err)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing articles for export: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetStats returns summary counts for the status command.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{ByCategory: make(map[string]int)}

	if err := s.conn.QueryRow("SELECT COUNT(*) FROM articles").Scan(&stats.TotalArticles); err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}
	if err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM articles WHERE category = 'unclassified'",
	).Scan(&stats.Unclassified); err != nil {
		return nil, err
	}
	if err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM articles WHERE body = '' AND body_fetched = 0",
	).Scan(&stats.BodiesMissing); err != nil {
		return nil, err
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM cycle_reports").Scan(&stats.CycleReports); err != nil {
		return nil, err
	}

	var latest string
	if err := s.conn.QueryRow(
		"SELECT COALESCE(MAX(collected_at), '') FROM articles",
	).Scan(&latest); err != nil {
		return nil, err
	}
	stats.LatestCollected = parseTime(latest)

	rows, err := s.conn.Query("SELECT category, COUNT(*) FROM articles GROUP BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}
