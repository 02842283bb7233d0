// Package catalog caches category definitions in front of the ledger.
package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Source is the authoritative category store.
type Source interface {
	GetCategory(ctx context.Context, id string) (model.Category, error)
	UpsertCategory(ctx context.Context, c model.Category) error
	ListActiveCategories(ctx context.Context) ([]model.Category, error)
}

// Catalog is a read-through cache of categories. Lookup failures are not
// cached, so a category created after a miss is visible on the next call.
type Catalog struct {
	src   Source
	cache *expirable.LRU[string, model.Category]
	group singleflight.Group

	size int
	ttl  time.Duration
}

// New builds a catalog over src.
func New(src Source, opts ...Option) *Catalog {
	c := &Catalog{src: src, size: 1024, ttl: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = expirable.NewLRU[string, model.Category](c.size, nil, c.ttl)
	return c
}

// Get returns the category with id, consulting the source on a miss.
func (c *Catalog) Get(ctx context.Context, id string) (model.Category, error) {
	if cat, ok := c.cache.Get(id); ok {
		metrics.RecordCatalogHit()
		return cat, nil
	}
	metrics.RecordCatalogMiss()

	v, err, _ := c.group.Do(id, func() (any, error) {
		cat, err := c.src.GetCategory(ctx, id)
		if err != nil {
			return model.Category{}, err
		}
		c.cache.Add(id, cat)
		return cat, nil
	})
	if err != nil {
		return model.Category{}, err
	}
	return v.(model.Category), nil
}

// Put writes cat to the source and refreshes the cached copy.
func (c *Catalog) Put(ctx context.Context, cat model.Category) error {
	if err := c.src.UpsertCategory(ctx, cat); err != nil {
		return err
	}
	c.cache.Add(cat.ID, cat)
	return nil
}

// Active lists active categories straight from the source.
func (c *Catalog) Active(ctx context.Context) ([]model.Category, error) {
	return c.src.ListActiveCategories(ctx)
}

// Invalidate drops id from the cache.
func (c *Catalog) Invalidate(id string) {
	c.cache.Remove(id)
}

// Len reports the number of cached categories.
func (c *Catalog) Len() int {
	return c.cache.Len()
}
