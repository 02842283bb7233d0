package catalog

import "time"

// Option configures a Catalog.
type Option func(*Catalog)

// WithSize bounds the number of cached categories.
func WithSize(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithTTL sets how long a cached category stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}
