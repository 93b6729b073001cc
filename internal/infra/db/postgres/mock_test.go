//go:build !integration

package postgres

import (
	"context"
	"sync"
	"time"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
	red "market-genome/internal/infra/redis"
)

// mockInnerJobRepo stands in for the database repository the decorator wraps.
type mockInnerJobRepo struct {
	repository.GenomeJobRepository
	mu    sync.Mutex
	jobs  map[string]*model.GenomeJob
	finds int
}

func newMockInnerJobRepo() *mockInnerJobRepo {
	return &mockInnerJobRepo{jobs: map[string]*model.GenomeJob{}}
}

func (m *mockInnerJobRepo) Save(_ context.Context, job *model.GenomeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *mockInnerJobRepo) FindByID(_ context.Context, id string) (*model.GenomeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (m *mockInnerJobRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

// mockRedisClient is a map-backed RedisClient.
type mockRedisClient struct {
	mu   sync.Mutex
	data map[string]string
	dels []string
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{data: map[string]string{}}
}

func (m *mockRedisClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *mockRedisClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.dels = append(m.dels, k)
	}
	return nil
}

func (m *mockRedisClient) Ping(context.Context) error                          { return nil }
func (m *mockRedisClient) Incr(context.Context, string) (int64, error)         { return 0, nil }
func (m *mockRedisClient) Expire(context.Context, string, time.Duration) error { return nil }
func (m *mockRedisClient) Close() error                                        { return nil }
