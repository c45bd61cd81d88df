package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testArticle(fp string) Article {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return Article{
		Fingerprint: fp,
		Title:       "Acme reports quarterly earnings",
		Body:        "Acme Corp reported record revenue for the quarter.",
		SourceID:    "reuters-business",
		URL:         "https://example.com/acme-earnings",
		PublishedAt: now.Add(-2 * time.Hour),
		FirstSeenAt: now,
		CollectedAt: now,
		Category:    "earnings",
		Confidence:  0.8,
		Method:      "rule",
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := openTestStore(t)

	a := testArticle("fp-1")
	if err := s.UpsertArticle(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetArticle("fp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected article, got nil")
	}
	if got.Title != a.Title || got.Category != "earnings" || got.Method != "rule" {
		t.Errorf("stored article mismatch: %+v", got)
	}
	if !got.CollectedAt.Equal(a.CollectedAt) {
		t.Errorf("expected collected_at %v, got %v", a.CollectedAt, got.CollectedAt)
	}
}

func TestUpsertIsIdempotentOnFingerprint(t *testing.T) {
	s := openTestStore(t)

	first := testArticle("fp-idem")
	if err := s.UpsertArticle(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A re-sighting from a different source with a new classification.
	second := first
	second.SourceID = "cnbc-markets"
	second.Category = "market"
	second.Confidence = 0.55
	second.Method = "hybrid"
	second.CollectedAt = first.CollectedAt.Add(time.Hour)
	if err := s.UpsertArticle(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalArticles != 1 {
		t.Fatalf("expected exactly 1 stored article, got %d", stats.TotalArticles)
	}

	got, _ := s.GetArticle("fp-idem")
	if got.Category != "market" || got.Method != "hybrid" {
		t.Errorf("expected refreshed classification, got %s/%s", got.Category, got.Method)
	}
	if got.SourceID != "reuters-business" {
		t.Errorf("expected original source id preserved, got %s", got.SourceID)
	}
	if !got.FirstSeenAt.Equal(first.FirstSeenAt) {
		t.Errorf("expected first_seen_at preserved, got %v", got.FirstSeenAt)
	}
	if !got.CollectedAt.Equal(second.CollectedAt) {
		t.Errorf("expected collected_at refreshed, got %v", got.CollectedAt)
	}
}

func TestUpsertKeepsNonEmptyBody(t *testing.T) {
	s := openTestStore(t)

	a := testArticle("fp-body")
	if err := s.UpsertArticle(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resight := a
	resight.Body = ""
	if err := s.UpsertArticle(resight); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetArticle("fp-body")
	if got.Body == "" {
		t.Error("expected existing body to survive an empty re-sighting")
	}
}

func TestUpsertRejectsEmptyFingerprint(t *testing.T) {
	s := openTestStore(t)
	a := testArticle("")
	if err := s.UpsertArticle(a); err == nil {
		t.Error("expected error for empty fingerprint")
	}
}

func TestExists(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.Exists("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected missing fingerprint to not exist")
	}

	s.UpsertArticle(testArticle("fp-exists"))
	ok, err = s.Exists("fp-exists")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected stored fingerprint to exist")
	}
}

func TestListForExport(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	for i, fp := range []string{"fp-a", "fp-b", "fp-c"} {
		a := testArticle(fp)
		a.CollectedAt = base.Add(time.Duration(i) * time.Hour)
		if i == 2 {
			a.Category = "legal"
		}
		if err := s.UpsertArticle(a); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, err := s.ListForExport(ExportFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(all))
	}
	if all[0].Fingerprint != "fp-a" {
		t.Errorf("expected oldest first, got %s", all[0].Fingerprint)
	}

	since, err := s.ListForExport(ExportFilter{Since: base.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 articles since cutoff, got %d", len(since))
	}

	legal, err := s.ListForExport(ExportFilter{Category: "legal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(legal) != 1 || legal[0].Fingerprint != "fp-c" {
		t.Errorf("expected only fp-c in legal, got %v", legal)
	}

	limited, err := s.ListForExport(ExportFilter{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestBodyLifecycle(t *testing.T) {
	s := openTestStore(t)

	a := testArticle("fp-nofetch")
	a.Body = ""
	s.UpsertArticle(a)
	s.UpsertArticle(testArticle("fp-full"))

	needing, err := s.ListNeedingBody(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(needing) != 1 || needing[0].Fingerprint != "fp-nofetch" {
		t.Fatalf("expected only fp-nofetch to need a body, got %v", needing)
	}

	if err := s.UpdateArticleBody("fp-nofetch", "Full text here."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := s.GetArticle("fp-nofetch")
	if got.Body != "Full text here." || !got.BodyFetched {
		t.Errorf("expected body stored and marked fetched, got %+v", got)
	}

	needing, _ = s.ListNeedingBody(10)
	if len(needing) != 0 {
		t.Errorf("expected no articles needing body, got %d", len(needing))
	}
}

func TestMarkBodyAttempted(t *testing.T) {
	s := openTestStore(t)

	a := testArticle("fp-fail")
	a.Body = ""
	s.UpsertArticle(a)

	if err := s.MarkBodyAttempted("fp-fail"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	needing, _ := s.ListNeedingBody(10)
	if len(needing) != 0 {
		t.Error("expected attempted article to be excluded from future passes")
	}
}

func TestCycleReports(t *testing.T) {
	s := openTestStore(t)

	start := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.SaveCycleReport(CycleReport{
			StartedAt:  start.Add(time.Duration(i) * time.Hour),
			FinishedAt: start.Add(time.Duration(i)*time.Hour + time.Minute),
			Fetched:    10 + i,
			Classified: 8,
			Failed:     1,
			Detail:     `[{"source":"reuters-business"}]`,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	reports, err := s.ListCycleReports(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Fetched != 12 {
		t.Errorf("expected newest report first, got fetched=%d", reports[0].Fetched)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.UpsertArticle(testArticle("fp-keep"))
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	ok, err := s2.Exists("fp-keep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected data to survive reopen")
	}
}
