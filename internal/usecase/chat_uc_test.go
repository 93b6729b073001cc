package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

type chatFixture struct {
	uc      *chatUC
	ai      *fakeAI
	jobs    *memJobRepo
	runner  *goRunner
	archive *fakeArchive
	repo    *memSessionRepo
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	logger := zerolog.Nop()
	ai := &fakeAI{}
	jobs := newMemJobRepo()
	runner := &goRunner{}
	genome := NewGenomeUseCase(jobs, runner, stubStages(-1, nil), &fakeNotifier{}, &memStore{}, GenomeOptions{}, &logger)
	archive := &fakeArchive{}
	repo := newMemSessionRepo()
	uc := NewChatUseCase(repo, archive, ai, genome, nil, ChatOptions{Model: "fake", HandlerTimeout: time.Second}, &logger)
	t.Cleanup(runner.wait)
	return &chatFixture{uc: uc, ai: ai, jobs: jobs, runner: runner, archive: archive, repo: repo}
}

func (f *chatFixture) seedCompletedJob(t *testing.T, brand string) *model.GenomeJob {
	t.Helper()
	job := model.NewGenomeJob(model.BrandInput{Brand: brand, DeliveryEmail: "x@y.io"}, LabelCollect)
	_ = job.Start()
	_ = job.RecordStage(StageBrandDNA, []byte(`{"personality":{"tone":"witty","values":["craft","speed","joy"]},"audience":{"demographics":"makers"}}`))
	_ = job.RecordStage(StageCompetitors, []byte(`{"competitors":[{"name":"Rival Co"}]}`))
	_ = job.SetArtifact(model.Artifact{Key: "reports/r.pdf"})
	_ = job.Complete(true, LabelCompleted)
	if err := f.jobs.Save(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestChatUC_Initialize(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	t.Run("without prior analysis", func(t *testing.T) {
		start, err := f.uc.Initialize(ctx, "acme")
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}
		if start.HasContext || start.Session.BrandContext != nil {
			t.Error("expected no brand context")
		}
		if !strings.Contains(start.Greeting, "**acme**") {
			t.Errorf("greeting should name the brand: %q", start.Greeting)
		}
	})

	t.Run("with completed analysis matched case-insensitively", func(t *testing.T) {
		job := f.seedCompletedJob(t, "Globex")
		start, err := f.uc.Initialize(ctx, "GLOBEX")
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}
		if !start.HasContext {
			t.Fatal("expected brand context")
		}
		bc := start.Session.BrandContext
		if bc.JobID != job.ID || bc.Tone() != "witty" || bc.Audience == nil || bc.Competitors == nil {
			t.Errorf("unexpected context: %+v", bc)
		}
	})

	t.Run("every call creates an independent session", func(t *testing.T) {
		a, _ := f.uc.Initialize(ctx, "acme")
		b, _ := f.uc.Initialize(ctx, "acme")
		if a.Session.ID == b.Session.ID {
			t.Error("sessions must be distinct")
		}
	})

	t.Run("empty handle rejected", func(t *testing.T) {
		if _, err := f.uc.Initialize(ctx, "  "); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("handle shorter than a brand input rejected", func(t *testing.T) {
		before := f.repo.Count(ctx)
		_, err := f.uc.Initialize(ctx, " HP ")
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || !verr.Has("brand_handle") {
			t.Fatalf("expected a brand_handle validation error, got %v", err)
		}
		if !errors.Is(err, domain.ErrInvalidArgument) || !strings.Contains(err.Error(), "at least 3") {
			t.Errorf("unexpected error: %v", err)
		}
		if f.repo.Count(ctx) != before {
			t.Error("no session may be stored for a rejected handle")
		}
	})
}

func TestChatUC_SendMessage_HistoryGrowsByTwo(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	start, _ := f.uc.Initialize(ctx, "acme")

	const n = 5
	for i := 0; i < n; i++ {
		reply, err := f.uc.SendMessage(ctx, start.Session.ID, fmt.Sprintf("hello %d", i))
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if reply.Action != model.ActionGeneralChat || reply.Text != "ok" {
			t.Errorf("unexpected reply: %+v", reply)
		}
	}
	hist, err := f.uc.History(ctx, start.Session.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2*n {
		t.Fatalf("expected %d messages, got %d", 2*n, len(hist))
	}
	for i, m := range hist {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		if m.Role != want {
			t.Errorf("message %d role %s, want %s", i, m.Role, want)
		}
	}
}

func TestChatUC_SendMessage_Validation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	if _, err := f.uc.SendMessage(ctx, "missing", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	start, _ := f.uc.Initialize(ctx, "acme")
	if _, err := f.uc.SendMessage(ctx, start.Session.ID, "   "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestChatUC_HandlerFailureGivesApology(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.ai.chatFn = func([]adapter.Message) (string, error) {
		return "", fmt.Errorf("%w: upstream 503 secret-detail", domain.ErrService)
	}
	start, _ := f.uc.Initialize(ctx, "acme")

	reply, err := f.uc.SendMessage(ctx, start.Session.ID, "hello")
	if err != nil {
		t.Fatalf("send should not fail: %v", err)
	}
	if strings.Contains(reply.Text, "secret-detail") || !strings.Contains(reply.Text, "acme") {
		t.Errorf("unexpected apology: %q", reply.Text)
	}
	if hist, _ := f.uc.History(ctx, start.Session.ID); len(hist) != 2 {
		t.Errorf("session should stay usable, history=%d", len(hist))
	}

	f.ai.chatFn = nil
	if reply, _ := f.uc.SendMessage(ctx, start.Session.ID, "again"); reply.Text != "ok" {
		t.Errorf("expected recovery, got %q", reply.Text)
	}
}

func TestChatUC_ImageHandler(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.seedCompletedJob(t, "acme")
	start, _ := f.uc.Initialize(ctx, "acme")

	reply, err := f.uc.SendMessage(ctx, start.Session.ID, "Generate an image of a summer sale")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Action != model.ActionImageGeneration || reply.Attachment == nil {
		t.Fatalf("expected image reply, got %+v", reply)
	}
	if p := f.ai.prompts[0]; !strings.Contains(p, "witty") || !strings.Contains(p, "craft, speed") || strings.Contains(p, "joy") {
		t.Errorf("prompt not enhanced with brand context: %q", p)
	}
	hist, _ := f.uc.History(ctx, start.Session.ID)
	if hist[1].Attachment == nil || hist[0].Attachment != nil {
		t.Error("only the assistant message carries the attachment")
	}

	f.ai.imageErr = errors.New("content policy")
	reply, _ = f.uc.SendMessage(ctx, start.Session.ID, "photo of our team")
	if reply.Attachment != nil || strings.Contains(reply.Text, "content policy") {
		t.Errorf("unexpected failure reply: %+v", reply)
	}
}

func TestChatUC_ReportBridge(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	start, _ := f.uc.Initialize(ctx, "acme")

	reply, err := f.uc.SendMessage(ctx, start.Session.ID, "please generate report")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.JobID != "" || !strings.Contains(reply.Text, "email") {
		t.Errorf("expected a request for an address, got %+v", reply)
	}

	reply, err = f.uc.SendMessage(ctx, start.Session.ID, "send report to boss@acme.io thanks")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Action != model.ActionReportRequest || reply.JobID == "" {
		t.Fatalf("expected a job id, got %+v", reply)
	}
	job, err := f.jobs.FindByID(ctx, reply.JobID)
	if err != nil {
		t.Fatalf("job not recorded: %v", err)
	}
	if job.Input.Brand != "acme" || job.Input.DeliveryEmail != "boss@acme.io" || job.Input.ChatSessionID != start.Session.ID {
		t.Errorf("unexpected job input: %+v", job.Input)
	}

	direct, err := f.uc.RequestReport(ctx, start.Session.ID, "cfo@acme.io")
	if err != nil || direct.ID == "" {
		t.Fatalf("request report: %v", err)
	}
	if _, err := f.uc.RequestReport(ctx, start.Session.ID, "nope"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestChatUC_ReportBridge_BrandRejected(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	s := model.NewChatSession("GE", nil)
	if err := f.repo.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	reply, err := f.uc.SendMessage(ctx, s.ID, "please send report to boss@ge.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Action != model.ActionReportRequest || reply.JobID != "" {
		t.Fatalf("no job may be queued, got %+v", reply)
	}
	if !strings.Contains(reply.Text, "brand_input must be at least 3 characters") {
		t.Errorf("reply should name the brand problem: %q", reply.Text)
	}
	if strings.Contains(reply.Text, "delivery address") {
		t.Errorf("a valid email must not be blamed: %q", reply.Text)
	}
	if jobs, _ := f.jobs.List(ctx, 0); len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestChatUC_ConcurrentSameSession(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.ai.chatFn = func(msgs []adapter.Message) (string, error) {
		time.Sleep(time.Millisecond)
		return "answer to " + msgs[len(msgs)-1].Content, nil
	}
	start, _ := f.uc.Initialize(ctx, "acme")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.uc.SendMessage(ctx, start.Session.ID, fmt.Sprintf("q%d", i)); err != nil {
				t.Errorf("send: %v", err)
			}
		}(i)
	}
	wg.Wait()

	hist, _ := f.uc.History(ctx, start.Session.ID)
	if len(hist) != 2*n {
		t.Fatalf("expected %d messages, got %d", 2*n, len(hist))
	}
	for i := 0; i < len(hist); i += 2 {
		if hist[i].Role != model.RoleUser || hist[i+1].Role != model.RoleAssistant {
			t.Fatalf("turns interleaved at %d", i)
		}
		if hist[i+1].Content != "answer to "+hist[i].Content {
			t.Fatalf("reply %q does not answer %q", hist[i+1].Content, hist[i].Content)
		}
	}
}

func TestChatUC_SessionsAreIndependent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	a, _ := f.uc.Initialize(ctx, "acme")
	b, _ := f.uc.Initialize(ctx, "globex")

	// a busy session does not block another one
	if err := a.Session.BeginTurn(ctx); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.uc.SendMessage(ctx, b.Session.ID, "hi")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("session b blocked by session a")
	}
	a.Session.EndTurn()

	if ha, _ := f.uc.History(ctx, a.Session.ID); len(ha) != 0 {
		t.Errorf("session a history touched: %d", len(ha))
	}
}

func TestChatUC_Terminate(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	start, _ := f.uc.Initialize(ctx, "acme")
	_, _ = f.uc.SendMessage(ctx, start.Session.ID, "hello")

	loc, err := f.uc.Terminate(ctx, start.Session.ID)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if !strings.Contains(loc, start.Session.ID) || f.archive.n.Load() != 1 {
		t.Errorf("unexpected export %q", loc)
	}

	id := start.Session.ID
	if _, err := f.uc.SendMessage(ctx, id, "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("send after terminate: %v", err)
	}
	if _, err := f.uc.History(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("history after terminate: %v", err)
	}
	if _, err := f.uc.Terminate(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("terminate twice: %v", err)
	}
	if list, _ := f.uc.ListActive(ctx); len(list) != 0 {
		t.Errorf("expected no active sessions, got %d", len(list))
	}
}

func TestChatUC_TerminateExportFailureStillRemoves(t *testing.T) {
	f := newChatFixture(t)
	f.archive.err = errors.New("disk full")
	ctx := context.Background()
	start, _ := f.uc.Initialize(ctx, "acme")

	loc, err := f.uc.Terminate(ctx, start.Session.ID)
	if err != nil || loc != "" {
		t.Fatalf("terminate: %q %v", loc, err)
	}
	if _, err := f.uc.History(ctx, start.Session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("session should be gone: %v", err)
	}
}

func TestChatUC_ListActive(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	a, _ := f.uc.Initialize(ctx, "acme")
	_, _ = f.uc.SendMessage(ctx, a.Session.ID, "hello")
	_, _ = f.uc.Initialize(ctx, "globex")

	list, err := f.uc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	for _, s := range list {
		if s.SessionID == a.Session.ID && s.MessageCount != 2 {
			t.Errorf("message count %d", s.MessageCount)
		}
	}
}

func TestChatUC_EvictIdleSkipsBusy(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	idle, _ := f.uc.Initialize(ctx, "acme")
	busy, _ := f.uc.Initialize(ctx, "globex")
	if err := busy.Session.BeginTurn(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := f.uc.EvictIdle(ctx, 0)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := f.uc.History(ctx, idle.Session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("idle session should be gone: %v", err)
	}
	busy.Session.EndTurn()
	if _, err := f.uc.History(ctx, busy.Session.ID); err != nil {
		t.Errorf("busy session should survive: %v", err)
	}
	if f.archive.n.Load() != 1 {
		t.Errorf("evicted session should be exported")
	}

	if n, _ := f.uc.EvictIdle(ctx, time.Hour); n != 0 {
		t.Errorf("fresh sessions evicted: %d", n)
	}
}

func TestChatUC_RateLimited(t *testing.T) {
	logger := zerolog.Nop()
	uc := NewChatUseCase(newMemSessionRepo(), nil, &fakeAI{}, nil, fakeLimiter{allow: false},
		ChatOptions{RateLimit: 1, RateWindow: time.Minute}, &logger)
	start, _ := uc.Initialize(context.Background(), "acme")
	if _, err := uc.SendMessage(context.Background(), start.Session.ID, "hi"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestChatUC_ContextWindowRespectsTokenBudget(t *testing.T) {
	logger := zerolog.Nop()
	ai := &fakeAI{tokensFn: func(m []adapter.Message) int { return len(m) * 100 }}
	uc := NewChatUseCase(newMemSessionRepo(), nil, ai, nil, nil,
		ChatOptions{HistoryWindow: 10, ContextTokens: 350}, &logger)
	hist := make([]model.ChatMessage, 6)
	for i := range hist {
		hist[i] = model.ChatMessage{Role: model.RoleUser, Content: fmt.Sprint(i)}
	}
	msgs := uc.contextWindow(context.Background(), "sys", hist)
	if len(msgs) != 3 || msgs[0].Role != "system" || msgs[2].Content != "5" {
		t.Errorf("unexpected window: %+v", msgs)
	}
}
