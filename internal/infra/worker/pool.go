package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"market-genome/internal/domain"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = fmt.Errorf("worker: %w", domain.ErrQueueFull)
	ErrStopped   = errors.New("worker: pool stopped")
)

type Task = func(ctx context.Context) error

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
// Stop closes the queue; tasks already accepted still run, with whatever
// context Start was given.
type Pool struct {
	name    string
	size    int
	queue   chan Task
	log     *zerolog.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
	active  atomic.Int32
}

func NewPool(workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{size: workers, queue: make(chan Task, queueSize), log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go func(id int) {
			defer p.wg.Done()
			for task := range p.queue {
				p.exec(ctx, id, task)
			}
		}(i)
	}
	p.log.Info().Int("workers", p.size).Int("queue", cap(p.queue)).Msg("worker pool started")
}

func (p *Pool) exec(ctx context.Context, id int, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Int("worker", id).Interface("panic", rec).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task failed")
	}
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("worker: nil task: %w", domain.ErrInvalidArgument)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects further submissions and waits for the queue to drain.
// Safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Pending is the number of queued tasks not yet picked up.
func (p *Pool) Pending() int { return len(p.queue) }

// Active is the number of tasks running right now.
func (p *Pool) Active() int { return int(p.active.Load()) }
