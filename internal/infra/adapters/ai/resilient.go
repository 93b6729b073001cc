package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
	"market-genome/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*ResilientAI)(nil)

// RetryPolicy bounds attempts for a single backend call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Timeout applies per attempt; zero means only the caller's deadline.
	Timeout time.Duration
}

// backoff returns the delay before attempt n+1 (n starts at 1), with full jitter.
func (p RetryPolicy) backoff(n int) time.Duration {
	d := p.BaseDelay << (n - 1)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return d/2 + rand.N(d/2+1)
}

// ResilientAI adds per-call timeouts, retries and metrics around a backend.
// Every error it returns wraps domain.ErrService.
type ResilientAI struct {
	inner    adapter.AIServiceAdapter
	provider string
	policy   RetryPolicy
	log      *zerolog.Logger
}

func NewResilientAI(inner adapter.AIServiceAdapter, provider string, policy RetryPolicy, logger *zerolog.Logger) *ResilientAI {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &ResilientAI{inner: inner, provider: provider, policy: policy, log: logger}
}

// NewBackend puts retries outside the concurrency cap, so a call sleeping
// through its backoff does not hold a slot.
func NewBackend(inner adapter.AIServiceAdapter, provider string, policy RetryPolicy, maxConcurrent int, logger *zerolog.Logger) *ResilientAI {
	return NewResilientAI(NewLimitedAI(inner, maxConcurrent), provider, policy, logger)
}

func (r *ResilientAI) ListModels(ctx context.Context) ([]string, error) {
	return r.inner.ListModels(ctx)
}

func (r *ResilientAI) CountTokens(ctx context.Context, name string, messages []adapter.Message) (int, error) {
	n, err := r.inner.CountTokens(ctx, name, messages)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w: %v", domain.ErrService, err)
	}
	return n, nil
}

func (r *ResilientAI) Chat(ctx context.Context, name string, messages []adapter.Message) (string, error) {
	text, _, err := r.ChatWithUsage(ctx, name, messages)
	return text, err
}

func (r *ResilientAI) ChatWithUsage(ctx context.Context, name string, messages []adapter.Message) (string, adapter.Usage, error) {
	var (
		text  string
		usage adapter.Usage
	)
	err := r.do(ctx, "chat", name, func(c context.Context) (int, int, error) {
		var err error
		text, usage, err = r.inner.ChatWithUsage(c, name, messages)
		return usage.PromptTokens, usage.CompletionTokens, err
	})
	return text, usage, err
}

func (r *ResilientAI) GenerateImage(ctx context.Context, prompt string, size adapter.ImageSize) (model.ImageRef, error) {
	var ref model.ImageRef
	err := r.do(ctx, "image", "", func(c context.Context) (int, int, error) {
		var err error
		ref, err = r.inner.GenerateImage(c, prompt, size)
		return 0, 0, err
	})
	return ref, err
}

func (r *ResilientAI) do(ctx context.Context, op, name string, call func(context.Context) (int, int, error)) error {
	log := logging.With(ctx, r.log)
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		c, cancel := ctx, context.CancelFunc(func() {})
		if r.policy.Timeout > 0 {
			c, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		start := time.Now()
		in, out, err := call(c)
		cancel()
		metrics.ObserveAICall(r.provider, name, op, in, out, time.Since(start), err == nil)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == r.policy.MaxAttempts || errors.Is(err, domain.ErrInvalidArgument) {
			break
		}
		delay := r.policy.backoff(attempt)
		metrics.IncAIRetry(op)
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("ai call failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %v", op, domain.ErrService, errors.Join(lastErr, ctx.Err()))
		}
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrService, lastErr)
}
