package store

import "time"

// Article is the canonical persisted entity. Fingerprint is the primary
// key; an article is created on first sighting and its classification
// fields are refreshed in place on re-sighting, never duplicated.
type Article struct {
	Fingerprint string
	Title       string
	Body        string
	SourceID    string
	URL         string
	PublishedAt time.Time
	FirstSeenAt time.Time
	CollectedAt time.Time
	Category    string
	Confidence  float64
	Method      string
	RawMeta     string
	BodyFetched bool
}

// CycleReport is the persisted summary of one collection cycle.
type CycleReport struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Fetched    int
	Duplicates int
	Classified int
	Failed     int
	Detail     string
}

// Stats summarizes stored data for the status command.
type Stats struct {
	TotalArticles   int
	Unclassified    int
	BodiesMissing   int
	CycleReports    int
	ByCategory      map[string]int
	LatestCollected time.Time
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
