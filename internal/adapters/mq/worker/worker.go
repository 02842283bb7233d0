// Package worker runs rebuild jobs pulled from the queue on a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const maxRecordedErrors = 16

// Processor rebuilds the board entries of one user.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job queue.Job) error

func (f ProcessorFunc) Process(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker consumes jobs until the queue drains or it is shut down.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	onError   func(job queue.Job, err error)
	onDone    func()

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is closed and drained, ctx is done or
// Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil && w.onError != nil {
				w.onError(job, err)
			}
			if w.onDone != nil {
				w.onDone()
			}
		}
	}
}

// Shutdown stops the worker and waits for the job in flight.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.processor.Process(ctx, job); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "rebuild_error")
		w.logger.Error(ctx, "rebuild failed for user",
			logger.String("userID", job.UserID),
			logger.Error(err),
		)
		return fmt.Errorf("rebuild user %s: %w", job.UserID, err)
	}
	return nil
}

// Pool runs a fixed number of workers over one queue and aggregates their
// failures.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64
	failed    atomic.Int64

	mu   sync.Mutex
	errs []error

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. Non-positive counts use
// twice the CPU count.
func NewPool(workerCount int, q Queue, p Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * 2
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Named("worker-pool"),
	}
	for i := range pool.workers {
		pool.workers[i] = NewInMemoryWorker(q, p,
			WithName("worker-"+strconv.Itoa(i)),
			WithErrorHandler(pool.record),
			withDoneHook(func() { pool.processed.Add(1) }),
		)
	}
	return pool
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has exited, normally because the queue was
// closed and drained.
func (p *Pool) Wait(ctx context.Context) error {
	defer metrics.UpdateWorkerActiveCount(0)
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker wait interrupted", logger.Int("worker_id", i))
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown closes the queue if it can be closed and stops every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return errors.Join(errs...)
}

// Processed reports how many jobs finished, successfully or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed reports how many jobs returned an error.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Err joins the first failures recorded by the pool.
func (p *Pool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

func (p *Pool) record(_ queue.Job, err error) {
	p.failed.Add(1)
	p.mu.Lock()
	if len(p.errs) < maxRecordedErrors {
		p.errs = append(p.errs, err)
	}
	p.mu.Unlock()
}
