package collector

import (
	"encoding/json"
	"time"

	"newspipe/internal/store"
)

// SourceReport summarizes one source's contribution to a cycle.
// Normalized counts items that survived normalization, including those
// later suppressed as duplicates.
type SourceReport struct {
	Source     string   `json:"source"`
	Fetched    int      `json:"fetched"`
	Normalized int      `json:"normalized"`
	Duplicates int      `json:"duplicates"`
	Classified int      `json:"classified"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// CycleReport summarizes a whole collection cycle.
type CycleReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Cancelled  bool           `json:"cancelled"`
	Sources    []SourceReport `json:"sources"`
}

// Totals sums per-source counters.
func (r *CycleReport) Totals() (fetched, duplicates, classified, failed int) {
	for _, s := range r.Sources {
		fetched += s.Fetched
		duplicates += s.Duplicates
		classified += s.Classified
		failed += s.Failed
	}
	return
}

// toStored converts the report into its persisted form. Per-source
// detail is carried as JSON in the detail column.
func (r *CycleReport) toStored() store.CycleReport {
	fetched, duplicates, classified, failed := r.Totals()
	detail, _ := json.Marshal(r.Sources)
	return store.CycleReport{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Cancelled:  r.Cancelled,
		Fetched:    fetched,
		Duplicates: duplicates,
		Classified: classified,
		Failed:     failed,
		Detail:     string(detail),
	}
}
