package sched

import (
	"context"
	"time"
)

type SessionEvictor interface {
	EvictIdle(ctx context.Context, idle time.Duration) (int, error)
}

type LimiterPruner interface {
	Prune(maxIdle time.Duration) int
}

type JobPurger interface {
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionSweep closes sessions idle for at least idle. When pruner is set,
// rate limiter buckets idle that long are dropped too.
func SessionSweep(ev SessionEvictor, pruner LimiterPruner, idle time.Duration) Task {
	return func(ctx context.Context) (int, error) {
		n, err := ev.EvictIdle(ctx, idle)
		if pruner != nil {
			pruner.Prune(idle)
		}
		return n, err
	}
}

// JobPurge deletes finished jobs older than retention.
func JobPurge(p JobPurger, retention time.Duration) Task {
	return func(ctx context.Context) (int, error) {
		return p.PurgeFinishedBefore(ctx, time.Now().Add(-retention))
	}
}
