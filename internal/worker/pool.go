package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull   = errors.New("sync queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// JobRunner executes a single job. It owns all error reporting.
type JobRunner interface {
	Run(ctx context.Context, job Job)
}

// Pool is a fixed set of goroutines draining a buffered job channel.
type Pool struct {
	runner      JobRunner
	concurrency int

	mu      sync.RWMutex
	jobs    chan Job
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(runner JobRunner, concurrency, queueSize int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		runner:      runner,
		concurrency: concurrency,
		jobs:        make(chan Job, queueSize),
	}
}

// Start launches the workers. They stop once Stop closes the queue and it
// has drained.
func (p *Pool) Start(ctx context.Context) {
	log.Info().Int("concurrency", p.concurrency).Int("queue_size", cap(p.jobs)).Msg("Sync worker pool started")
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

// Submit queues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued and running ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.runOne(ctx, job)
	}
}

func (p *Pool) runOne(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("job_id", job.ID).Msg("Sync job panicked")
		}
	}()
	p.runner.Run(ctx, job)
}
