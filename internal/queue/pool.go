// Package queue runs pipeline jobs outside the request that started them.
package queue

import (
	"context"
	"errors"
	"sync"

	"adforge/internal/infra"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("queue: closed")

// Handler executes one job.
type Handler func(ctx context.Context, jobID string) error

// Pool is a bounded in-process worker pool over a buffered channel.
type Pool struct {
	tasks   chan string
	workers int
	logger  infra.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewPool(workers, buffer int, logger infra.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Pool{
		tasks:   make(chan string, buffer),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. Jobs run on base, never on a submitter's context.
func (p *Pool) Start(base context.Context, handle Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for jobID := range p.tasks {
				p.run(base, worker, jobID, handle)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, worker int, jobID string, handle Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error().Interface("panic", rec).Str("job_id", jobID).Int("worker", worker).Msg("queue: job panicked")
		}
	}()
	if err := handle(ctx, jobID); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Int("worker", worker).Msg("queue: job failed")
	}
}

// Submit enqueues jobID, waiting for buffer space until ctx is done.
func (p *Pool) Submit(ctx context.Context, jobID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for queued jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
