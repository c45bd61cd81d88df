// Package dedup suppresses re-processing of articles already seen,
// either earlier in this process or in a previous run via the store.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
)

const shardCount = 16

// ExistsChecker is the durable side of duplicate detection, satisfied
// by the store. It makes restarts safe: fingerprints persisted by
// earlier runs are still recognized.
type ExistsChecker interface {
	Exists(fingerprint string) (bool, error)
}

type shard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// Deduplicator tracks fingerprints seen within the process lifetime,
// sharded to avoid a global lock across concurrent source tasks.
type Deduplicator struct {
	store  ExistsChecker
	shards [shardCount]shard
}

// New creates a Deduplicator backed by the given durable checker.
// A nil checker disables the durable lookup (used in tests).
func New(store ExistsChecker) *Deduplicator {
	d := &Deduplicator{store: store}
	for i := range d.shards {
		d.shards[i].seen = make(map[string]struct{})
	}
	return d
}

func (d *Deduplicator) shardFor(fingerprint string) *shard {
	if fingerprint == "" {
		return &d.shards[0]
	}
	return &d.shards[fingerprint[0]%shardCount]
}

// Seen reports whether the fingerprint was already processed, checking
// the in-memory working set first and the store second. A durable hit
// is cached so the store is consulted at most once per fingerprint.
func (d *Deduplicator) Seen(fingerprint string) (bool, error) {
	sh := d.shardFor(fingerprint)
	sh.mu.Lock()
	_, ok := sh.seen[fingerprint]
	sh.mu.Unlock()
	if ok {
		return true, nil
	}

	if d.store == nil {
		return false, nil
	}
	exists, err := d.store.Exists(fingerprint)
	if err != nil {
		return false, err
	}
	if exists {
		d.Remember(fingerprint)
	}
	return exists, nil
}

// Remember adds a fingerprint to the working set.
func (d *Deduplicator) Remember(fingerprint string) {
	sh := d.shardFor(fingerprint)
	sh.mu.Lock()
	sh.seen[fingerprint] = struct{}{}
	sh.mu.Unlock()
}

// Fingerprint derives the dedup identity for an item: a hash of the
// canonical URL when one is present, otherwise a content hash of
// title+body. Two items with equal fingerprints are the same article
// regardless of which source reported them.
func Fingerprint(rawURL, title, body string) string {
	if canonical := CanonicalURL(rawURL); canonical != "" {
		return hash("u|" + canonical)
	}
	return hash("c|" + strings.TrimSpace(title) + "\n" + strings.TrimSpace(body))
}

// CanonicalURL normalizes a URL for identity comparison: lowercased
// scheme and host, query and fragment stripped, trailing slash trimmed.
// Returns "" when the input is empty or unparseable.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
