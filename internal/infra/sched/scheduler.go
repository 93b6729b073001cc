package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Locker lets a task run on one instance at a time. redis.RedisLocker
// satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// Task returns how many items it handled.
type Task func(ctx context.Context) (int, error)

// Scheduler runs housekeeping tasks on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	timeout time.Duration
	log     *zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler. locker may be nil for single-instance
// deployments.
func NewScheduler(locker Locker, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		locker:  locker,
		timeout: timeout,
		log:     &l,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers task under name. Overlapping runs of the same task are
// skipped.
func (s *Scheduler) Add(spec, name string, task Task) error {
	var running sync.Mutex
	_, err := s.cron.AddFunc(spec, func() {
		if !running.TryLock() {
			s.log.Debug().Str("task", name).Msg("previous run still active; skipping")
			return
		}
		defer running.Unlock()
		s.RunNow(name, task)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// RunNow executes task once, synchronously, under the scheduler's lock and
// timeout.
func (s *Scheduler) RunNow(name string, task Task) {
	s.mu.Lock()
	parent := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if s.locker != nil {
		key := "lock:sched:" + name
		token, err := s.locker.TryLock(ctx, key, s.timeout)
		if err != nil {
			s.log.Debug().Err(err).Str("task", name).Msg("lock not acquired; skipping")
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), key, token); err != nil {
				s.log.Warn().Err(err).Str("task", name).Msg("task lock release failed")
			}
		}()
	}

	start := time.Now()
	n, err := task(ctx)
	ev := s.log.Debug()
	if err != nil && !errors.Is(err, context.Canceled) {
		ev = s.log.Error().Err(err)
	} else if n > 0 {
		ev = s.log.Info()
	}
	ev.Str("task", name).Int("count", n).Dur("took", time.Since(start)).Msg("scheduled task finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("tasks", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts the schedule, cancels running tasks and waits for them.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
