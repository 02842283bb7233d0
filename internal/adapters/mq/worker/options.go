package worker

import (
	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithErrorHandler is called for every job that fails.
func WithErrorHandler(fn func(job queue.Job, err error)) Option {
	return func(w *InMemoryWorker) {
		w.onError = fn
	}
}

func withDoneHook(fn func()) Option {
	return func(w *InMemoryWorker) {
		w.onDone = fn
	}
}
