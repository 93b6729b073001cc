// File: internal/usecase/fakes_test.go
package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

// ---- AI ----

type fakeAI struct {
	mu       sync.Mutex
	chatFn   func(messages []adapter.Message) (string, error)
	imageErr error
	tokensFn func(messages []adapter.Message) int
	calls    int
	prompts  []string
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) { return []string{"fake"}, nil }
func (f *fakeAI) CountTokens(ctx context.Context, m string, messages []adapter.Message) (int, error) {
	if f.tokensFn == nil {
		return 1, nil
	}
	return f.tokensFn(messages), nil
}
func (f *fakeAI) Chat(ctx context.Context, m string, messages []adapter.Message) (string, error) {
	s, _, err := f.ChatWithUsage(ctx, m, messages)
	return s, err
}
func (f *fakeAI) ChatWithUsage(ctx context.Context, m string, messages []adapter.Message) (string, adapter.Usage, error) {
	f.mu.Lock()
	f.calls++
	fn := f.chatFn
	f.mu.Unlock()
	if fn == nil {
		return "ok", adapter.Usage{TotalTokens: 2}, nil
	}
	s, err := fn(messages)
	return s, adapter.Usage{TotalTokens: 2}, err
}
func (f *fakeAI) GenerateImage(ctx context.Context, prompt string, size adapter.ImageSize) (model.ImageRef, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.imageErr != nil {
		return model.ImageRef{}, f.imageErr
	}
	return model.ImageRef{URL: "https://img.example/1.png"}, nil
}

// ---- Jobs ----

type memJobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*model.GenomeJob
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: map[string]*model.GenomeJob{}} }

func (m *memJobRepo) Save(ctx context.Context, job *model.GenomeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}
func (m *memJobRepo) FindByID(ctx context.Context, id string) (*model.GenomeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}
func (m *memJobRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}
func (m *memJobRepo) List(ctx context.Context, limit int) ([]*model.GenomeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.GenomeJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (m *memJobRepo) FindLatestCompletedByBrand(ctx context.Context, brand string) (*model.GenomeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.GenomeJob
	for _, j := range m.jobs {
		if j.Status != model.JobStatusCompleted || !strings.EqualFold(j.Input.Brand, brand) {
			continue
		}
		if best == nil || j.CompletedAt.After(*best.CompletedAt) {
			best = j
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best.Clone(), nil
}

// ---- Runner ----

type goRunner struct {
	wg sync.WaitGroup
}

func (r *goRunner) Submit(task func(ctx context.Context) error) error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = task(context.Background())
	}()
	return nil
}
func (r *goRunner) wait() { r.wg.Wait() }

type fullRunner struct{}

func (fullRunner) Submit(func(ctx context.Context) error) error { return errors.New("worker queue full") }

// ---- Notifier / store ----

type fakeNotifier struct {
	mu         sync.Mutex
	deliverErr error
	delivered  []string
	failures   []string
	failureErr error
}

func (n *fakeNotifier) DeliverReport(ctx context.Context, to, brand string, a model.Artifact) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.deliverErr != nil {
		return n.deliverErr
	}
	n.delivered = append(n.delivered, to)
	return nil
}
func (n *fakeNotifier) NotifyFailure(ctx context.Context, to, brand, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, reason)
	return n.failureErr
}
func (n *fakeNotifier) failureCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failures)
}

type memStore struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (s *memStore) Put(ctx context.Context, key string, content []byte, ct string) (adapter.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objs == nil {
		s.objs = map[string][]byte{}
	}
	s.objs[key] = content
	return adapter.StoredObject{Key: key, URL: "/files/" + key, Size: int64(len(content))}, nil
}
func (s *memStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objs[key]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return b, "application/pdf", nil
}

// ---- Sessions ----

type memSessionRepo struct {
	mu sync.RWMutex
	m  map[string]*model.ChatSession
}

func newMemSessionRepo() *memSessionRepo { return &memSessionRepo{m: map[string]*model.ChatSession{}} }

func (r *memSessionRepo) Save(ctx context.Context, s *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.ID] = s
	return nil
}
func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}
func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}
func (r *memSessionRepo) List(ctx context.Context) ([]*model.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.ChatSession, 0, len(r.m))
	for _, s := range r.m {
		out = append(out, s)
	}
	return out, nil
}
func (r *memSessionRepo) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

type fakeArchive struct {
	n   atomic.Int32
	err error
}

func (a *fakeArchive) Export(ctx context.Context, exp model.ConversationExport) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.n.Add(1)
	return "conversations/conversation_" + exp.BrandHandle + "_" + exp.SessionID + ".json", nil
}

type fakeLimiter struct {
	allow bool
}

func (l fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.allow, nil
}
