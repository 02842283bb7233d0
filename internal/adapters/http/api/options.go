package api

import "github.com/okian/podium/pkg/logger"

type options struct {
	defaultLimit  int
	defaultRadius int
	log           logger.Logger
}

// Option configures a Server.
type Option func(*options)

// WithDefaultLimit sets the page size used when a request omits limit.
func WithDefaultLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultLimit = n
		}
	}
}

// WithDefaultRadius sets the neighbor radius used when a request omits it.
func WithDefaultRadius(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.defaultRadius = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
