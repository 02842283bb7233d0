// Package dedupe tracks client submission ids so retried submissions are
// applied at most once.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduper records seen submission ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Bind attaches the stored record id to a recorded submission id.
	Bind(ctx context.Context, id, recordID string)

	// Lookup returns the record id bound to id, if any.
	Lookup(ctx context.Context, id string) (string, bool)

	// Unrecord forgets id so a failed submission can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type lruDeduper struct {
	maxSize int
	seen    *lru.Cache[string, string]
}

// NewInMemoryDeduper creates a bounded deduper that evicts the least
// recently used ids first.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: 50000}
	for _, opt := range opts {
		opt(d)
	}
	// lru.New only fails for non-positive sizes, which options reject.
	d.seen, _ = lru.New[string, string](d.maxSize)
	return d
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, id string) bool {
	seen, _ := d.seen.ContainsOrAdd(id, "")
	return seen
}

func (d *lruDeduper) Bind(_ context.Context, id, recordID string) {
	d.seen.Add(id, recordID)
}

func (d *lruDeduper) Lookup(_ context.Context, id string) (string, bool) {
	recordID, ok := d.seen.Peek(id)
	if !ok || recordID == "" {
		return "", false
	}
	return recordID, true
}

func (d *lruDeduper) Unrecord(_ context.Context, id string) {
	d.seen.Remove(id)
}

func (d *lruDeduper) Size() int64 {
	return int64(d.seen.Len())
}
