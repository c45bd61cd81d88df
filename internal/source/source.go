// Package source defines the connector contract and the per-protocol
// implementations that produce raw items for the collection pipeline.
package source

import (
	"context"
	"time"
)

// Type discriminates connector protocols. Dispatch is by this field,
// not by inheritance: the orchestrator holds one Connector per type.
type Type string

const (
	TypeFeed Type = "feed"
	TypeBulk Type = "bulk-event"
)

// Source is the immutable configuration of one upstream source, loaded
// at orchestrator start and never mutated by the pipeline.
type Source struct {
	Name     string
	Type     Type
	URL      string
	Query    string
	Interval time.Duration
	Enabled  bool
	MaxItems int
}

// RawItem is an article as received from a connector, scoped to one
// collection cycle.
type RawItem struct {
	SourceID     string
	Title        string
	Body         string
	URL          string
	Published    time.Time
	PublishedRaw string
	Meta         map[string]string
}

// Connector produces RawItems for a Source. Implementations send each
// item on out (blocking on a full channel provides backpressure) and
// return a source-level error only when the fetch as a whole failed
// after exhausting retries. Individually malformed entries are emitted
// as-is or skipped, never fatal to the source.
type Connector interface {
	Fetch(ctx context.Context, src Source, out chan<- RawItem) error
}

// withRetry runs fn up to attempts times with exponential backoff,
// stopping early on context cancellation.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff << (i - 1)):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
