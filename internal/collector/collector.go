// Package collector orchestrates collection cycles: it fans out to the
// configured source connectors, pushes every raw item through
// normalization, deduplication and classification, and persists the
// survivors. Sources are isolated from each other; one failing or slow
// source never blocks the rest of the cycle.
package collector

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"newspipe/internal/classify"
	"newspipe/internal/dedup"
	"newspipe/internal/fetch"
	"newspipe/internal/normalize"
	"newspipe/internal/source"
	"newspipe/internal/store"
)

// Enricher is the optional post-cycle body enrichment step.
type Enricher interface {
	Run(ctx context.Context) *fetch.Result
}

// Options tunes the orchestrator.
type Options struct {
	// InFlight bounds the raw-item channel between a connector and
	// its consumer. A slow pipeline backpressures the connector
	// through this channel.
	InFlight int
	// PersistAttempts is how many times a failed store write is
	// retried before the item is counted as failed.
	PersistAttempts int
	// PersistBackoff is the wait before the first persist retry,
	// doubled on each subsequent one.
	PersistBackoff time.Duration
}

// Orchestrator runs collection cycles over the configured sources.
type Orchestrator struct {
	sources    []source.Source
	connectors map[source.Type]source.Connector
	dedup      *dedup.Deduplicator
	norm       *normalize.Normalizer
	classifier *classify.Classifier
	store      *store.Store
	enricher   Enricher
	opts       Options

	mu      sync.Mutex
	running map[string]bool
}

// New builds an orchestrator. enricher may be nil.
func New(sources []source.Source, connectors map[source.Type]source.Connector,
	dd *dedup.Deduplicator, norm *normalize.Normalizer, classifier *classify.Classifier,
	st *store.Store, enricher Enricher, opts Options) *Orchestrator {

	if opts.InFlight <= 0 {
		opts.InFlight = 64
	}
	if opts.PersistAttempts <= 0 {
		opts.PersistAttempts = 3
	}
	if opts.PersistBackoff <= 0 {
		opts.PersistBackoff = 250 * time.Millisecond
	}
	return &Orchestrator{
		sources:    sources,
		connectors: connectors,
		dedup:      dd,
		norm:       norm,
		classifier: classifier,
		store:      st,
		enricher:   enricher,
		opts:       opts,
		running:    make(map[string]bool),
	}
}

// Running reports the names of sources currently mid-collection.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.running))
	for name := range o.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCycle collects from every enabled source, or only the named ones
// when filter is non-empty. Sources already mid-collection from an
// overlapping cycle are skipped. The finished report is persisted
// before being returned; a cancelled cycle is sealed with whatever
// counts it reached.
func (o *Orchestrator) RunCycle(ctx context.Context, filter []string) *CycleReport {
	report := &CycleReport{StartedAt: time.Now().UTC()}

	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		wanted[name] = true
	}

	var wg sync.WaitGroup
	var reportMu sync.Mutex

	for _, src := range o.sources {
		if !src.Enabled {
			continue
		}
		if len(wanted) > 0 && !wanted[src.Name] {
			continue
		}
		if !o.claim(src.Name) {
			log.Printf("collector: source %s still collecting, skipping this cycle", src.Name)
			continue
		}

		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			defer o.release(src.Name)

			sr := o.collectSource(ctx, src)
			reportMu.Lock()
			report.Sources = append(report.Sources, sr)
			reportMu.Unlock()
		}(src)
	}

	wg.Wait()

	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].Source < report.Sources[j].Source
	})

	report.FinishedAt = time.Now().UTC()
	report.Cancelled = ctx.Err() != nil

	if _, err := o.store.SaveCycleReport(report.toStored()); err != nil {
		log.Printf("collector: saving cycle report: %v", err)
	}

	fetched, duplicates, classified, failed := report.Totals()
	log.Printf("collector: cycle done in %s: %d fetched, %d duplicates, %d classified, %d failed",
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		fetched, duplicates, classified, failed)

	if o.enricher != nil && ctx.Err() == nil {
		o.enricher.Run(ctx)
	}
	return report
}

func (o *Orchestrator) claim(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[name] {
		return false
	}
	o.running[name] = true
	return true
}

func (o *Orchestrator) release(name string) {
	o.mu.Lock()
	delete(o.running, name)
	o.mu.Unlock()
}

// collectSource drains one source through the pipeline. The connector
// runs in its own goroutine and streams into a bounded channel; the
// consumer applies normalize, dedup, classify and persist in order.
func (o *Orchestrator) collectSource(ctx context.Context, src source.Source) SourceReport {
	sr := SourceReport{Source: src.Name}

	connector, ok := o.connectors[src.Type]
	if !ok {
		sr.Errors = append(sr.Errors, fmt.Sprintf("no connector for source type %q", src.Type))
		return sr
	}

	items := make(chan source.RawItem, o.opts.InFlight)
	fetchErr := make(chan error, 1)
	go func() {
		defer close(items)
		fetchErr <- connector.Fetch(ctx, src, items)
	}()

	for item := range items {
		sr.Fetched++
		o.processItem(ctx, item, &sr)
	}

	if err := <-fetchErr; err != nil && ctx.Err() == nil {
		sr.Errors = append(sr.Errors, err.Error())
		log.Printf("collector: source %s: %v", src.Name, err)
	}
	return sr
}

func (o *Orchestrator) processItem(ctx context.Context, item source.RawItem, sr *SourceReport) {
	article, err := o.norm.Normalize(item)
	if err != nil {
		sr.Failed++
		sr.Errors = append(sr.Errors, fmt.Sprintf("normalize: %v", err))
		return
	}
	sr.Normalized++

	seen, err := o.dedup.Seen(article.Fingerprint)
	if err != nil {
		log.Printf("collector: dedup lookup for %s: %v", article.Fingerprint, err)
	}
	if seen {
		sr.Duplicates++
		return
	}

	res, err := o.classifier.Classify(ctx, article.Title, article.Body)
	if err != nil {
		// Cancellation mid-classification: persist unclassified so
		// the article is not lost, tagged for later repair.
		article.Method = classify.MethodError
	} else {
		article.Category = res.Category
		article.Confidence = res.Confidence
		article.Method = res.Method
	}

	if persistErr := o.persist(ctx, article); persistErr != nil {
		sr.Failed++
		sr.Errors = append(sr.Errors, fmt.Sprintf("persist %s: %v", article.Fingerprint, persistErr))
		return
	}

	o.dedup.Remember(article.Fingerprint)
	if err != nil {
		sr.Failed++
	} else {
		sr.Classified++
	}
}

// persist writes with bounded retries. Retrying after an ON CONFLICT
// upsert is safe: a write that partially succeeded just upserts again.
func (o *Orchestrator) persist(ctx context.Context, article store.Article) error {
	backoff := o.opts.PersistBackoff
	var err error
	for attempt := 1; attempt <= o.opts.PersistAttempts; attempt++ {
		if err = o.store.UpsertArticle(article); err == nil {
			return nil
		}
		if attempt == o.opts.PersistAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
	return err
}
