package ai_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/ports/adapter"
	ai "market-genome/internal/infra/adapters/ai"
)

var fastPolicy = ai.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestResilient_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &stubAI{name: "openai", failN: 2}
	r := ai.NewResilientAI(inner, "openai", fastPolicy, &log)

	text, u, err := r.ChatWithUsage(context.Background(), "gpt-4o-mini", []adapter.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" || u.PromptTokens != 1 || inner.cwuN != 3 {
		t.Fatalf("got %q %+v after %d calls", text, u, inner.cwuN)
	}
}

func TestResilient_ExhaustedWrapsErrService(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &stubAI{name: "openai", failN: 10}
	r := ai.NewResilientAI(inner, "openai", fastPolicy, &log)

	_, err := r.Chat(context.Background(), "gpt-4o-mini", nil)
	if !errors.Is(err, domain.ErrService) {
		t.Fatalf("want ErrService, got %v", err)
	}
	if inner.cwuN != fastPolicy.MaxAttempts {
		t.Fatalf("want %d attempts, got %d", fastPolicy.MaxAttempts, inner.cwuN)
	}
}

func TestResilient_ImageFailure(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &stubAI{name: "gemini", imgErr: errors.New("quota")}
	r := ai.NewResilientAI(inner, "gemini", ai.RetryPolicy{MaxAttempts: 1}, &log)

	if _, err := r.GenerateImage(context.Background(), "p", ""); !errors.Is(err, domain.ErrService) {
		t.Fatalf("want ErrService, got %v", err)
	}
	if inner.imgN != 1 {
		t.Fatalf("single attempt expected, got %d", inner.imgN)
	}
}

type slowAI struct {
	stubAI
	calls atomic.Int32
}

func (s *slowAI) ChatWithUsage(ctx context.Context, _ string, _ []adapter.Message) (string, adapter.Usage, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return "", adapter.Usage{}, ctx.Err()
}

func TestResilient_PerAttemptTimeout(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &slowAI{}
	p := fastPolicy
	p.Timeout = 10 * time.Millisecond
	r := ai.NewResilientAI(inner, "openai", p, &log)

	start := time.Now()
	_, _, err := r.ChatWithUsage(context.Background(), "gpt", nil)
	if !errors.Is(err, domain.ErrService) {
		t.Fatalf("want ErrService, got %v", err)
	}
	if got := inner.calls.Load(); got != int32(p.MaxAttempts) {
		t.Fatalf("want %d attempts, got %d", p.MaxAttempts, got)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeouts not applied")
	}
}

func TestResilient_CallerCancelStopsRetries(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &slowAI{}
	r := ai.NewResilientAI(inner, "openai", fastPolicy, &log)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Chat(ctx, "gpt", nil)
	if !errors.Is(err, domain.ErrService) {
		t.Fatalf("want ErrService, got %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("no retry after caller deadline, got %d calls", got)
	}
}

func TestLimitedAI_RespectsContext(t *testing.T) {
	t.Parallel()
	inner := &slowAI{}
	l := ai.NewLimitedAI(inner, 1)

	hold, release := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _, _ = l.ChatWithUsage(hold, "gpt", nil)
		close(done)
	}()
	for inner.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := l.ChatWithUsage(ctx, "gpt", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline while slot is held, got %v", err)
	}
	release()
	<-done
}

type badRequestAI struct {
	stubAI
}

func (b *badRequestAI) ChatWithUsage(context.Context, string, []adapter.Message) (string, adapter.Usage, error) {
	b.cwuN++
	return "", adapter.Usage{}, domain.ErrInvalidArgument
}

func TestResilient_InvalidArgumentNotRetried(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &badRequestAI{}
	r := ai.NewResilientAI(inner, "openai", fastPolicy, &log)

	if _, _, err := r.ChatWithUsage(context.Background(), "gpt-4o", nil); !errors.Is(err, domain.ErrService) {
		t.Fatalf("want ErrService, got %v", err)
	}
	if inner.cwuN != 1 {
		t.Fatalf("single attempt expected, got %d", inner.cwuN)
	}
}

// gatedAI fails the first "slow" call once and answers everything else.
type gatedAI struct {
	stubAI
	once   sync.Once
	failed chan struct{}
}

func (g *gatedAI) ChatWithUsage(_ context.Context, _ string, msgs []adapter.Message) (string, adapter.Usage, error) {
	fail := false
	if len(msgs) > 0 && msgs[0].Content == "slow" {
		g.once.Do(func() {
			fail = true
			close(g.failed)
		})
	}
	if fail {
		return "", adapter.Usage{}, errors.New("upstream 503")
	}
	return "ok", adapter.Usage{}, nil
}

func TestBackend_BackoffReleasesSlot(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()
	inner := &gatedAI{failed: make(chan struct{})}
	p := ai.RetryPolicy{MaxAttempts: 2, BaseDelay: 2 * time.Second, MaxDelay: 2 * time.Second}
	b := ai.NewBackend(inner, "openai", p, 1, &log)

	slowDone := make(chan error, 1)
	go func() {
		_, err := b.Chat(context.Background(), "m", []adapter.Message{{Role: adapter.RoleUser, Content: "slow"}})
		slowDone <- err
	}()
	<-inner.failed

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := b.Chat(ctx, "m", []adapter.Message{{Role: adapter.RoleUser, Content: "fast"}}); err != nil {
		t.Fatalf("call blocked behind a retrying call: %v", err)
	}
	if err := <-slowDone; err != nil {
		t.Fatalf("retried call: %v", err)
	}
}
