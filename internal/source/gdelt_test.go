package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func gdeltPage(n, size int, base time.Time) gdeltResponse {
	var resp gdeltResponse
	for i := 0; i < size; i++ {
		seen := base.Add(-time.Duration(n*size+i) * time.Minute)
		resp.Articles = append(resp.Articles, gdeltArticle{
			URL:      fmt.Sprintf("https://example.com/p%d-a%d", n, i),
			Title:    fmt.Sprintf("Article %d-%d", n, i),
			SeenDate: seen.Format(gdeltSeenLayout),
			Domain:   "example.com",
			Language: "English",
		})
	}
	return resp
}

func TestGDELTFetchSinglePage(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("mode") != "artlist" || q.Get("format") != "json" {
			t.Errorf("unexpected query params: %v", q)
		}
		json.NewEncoder(w).Encode(gdeltPage(0, 3, base))
	}))
	defer srv.Close()

	c := NewGDELTConnector(GDELTOptions{PageSize: 10, Backoff: 5 * time.Millisecond})
	items, err := collectItems(t, c, Source{
		Name: "gdelt", Type: TypeBulk, URL: srv.URL, Query: "Acme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Meta["domain"] != "example.com" {
		t.Errorf("expected domain meta, got %v", items[0].Meta)
	}
	if items[0].Body != "" {
		t.Error("GDELT items carry no body; enrichment fills it later")
	}
	if items[0].Published.IsZero() {
		t.Error("expected seendate to be parsed")
	}
}

func TestGDELTFetchPagesThroughWindow(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(pages.Add(1)) - 1
		if n >= 2 {
			json.NewEncoder(w).Encode(gdeltResponse{})
			return
		}
		json.NewEncoder(w).Encode(gdeltPage(n, 2, base))
	}))
	defer srv.Close()

	c := NewGDELTConnector(GDELTOptions{PageSize: 2, MaxPages: 5, Backoff: 5 * time.Millisecond})
	items, err := collectItems(t, c, Source{Name: "gdelt", URL: srv.URL, Query: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items over 2 pages, got %d", len(items))
	}
	if got := pages.Load(); got != 3 {
		t.Errorf("expected 3 requests (2 full pages + 1 empty), got %d", got)
	}
}

func TestGDELTFetchRespectsMaxItems(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gdeltPage(0, 10, base))
	}))
	defer srv.Close()

	c := NewGDELTConnector(GDELTOptions{PageSize: 10, Backoff: 5 * time.Millisecond})
	items, err := collectItems(t, c, Source{Name: "gdelt", URL: srv.URL, Query: "Acme", MaxItems: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 4 {
		t.Errorf("expected max_items cap of 4, got %d", len(items))
	}
}

func TestGDELTFetchRequiresQuery(t *testing.T) {
	c := NewGDELTConnector(GDELTOptions{})
	out := make(chan RawItem, 1)
	err := c.Fetch(context.Background(), Source{Name: "gdelt"}, out)
	if err == nil {
		t.Error("expected error for missing query")
	}
}

func TestGDELTFetchSurfacesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewGDELTConnector(GDELTOptions{Attempts: 2, Backoff: 5 * time.Millisecond})
	_, err := collectItems(t, c, Source{Name: "gdelt", URL: srv.URL, Query: "Acme"})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}
