package dedupe

// Option configures the in-memory deduper.
type Option func(*lruDeduper)

// WithMaxSize sets the maximum number of ids kept in memory. Non-positive
// values keep the default.
func WithMaxSize(maxSize int) Option {
	return func(d *lruDeduper) {
		if maxSize > 0 {
			d.maxSize = maxSize
		}
	}
}
