package store

import "fmt"

// SaveCycleReport persists a sealed cycle report for observability.
func (s *Store) SaveCycleReport(r CycleReport) (int64, error) {
	cancelled := 0
	if r.Cancelled {
		cancelled = 1
	}
	result, err := s.conn.Exec(`
INSERT INTO cycle_reports (started_at, finished_at, cancelled, fetched, duplicates, classified, failed, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(r.StartedAt), formatTime(r.FinishedAt), cancelled,
		r.Fetched, r.Duplicates, r.Classified, r.Failed, r.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("saving cycle report: %w", err)
	}
	return result.LastInsertId()
}

// ListCycleReports returns the most recent cycle reports, newest first.
func (s *Store) ListCycleReports(limit int) ([]CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(`
SELECT id, started_at, finished_at, cancelled, fetched, duplicates, classified, failed, detail
FROM cycle_reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []CycleReport
	for rows.Next() {
		var r CycleReport
		var started, finished string
		var cancelled int
		if err := rows.Scan(&r.ID, &started, &finished, &cancelled,
			&r.Fetched, &r.Duplicates, &r.Classified, &r.Failed, &r.Detail); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Cancelled = cancelled != 0
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
