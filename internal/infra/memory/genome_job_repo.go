package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
)

var _ repository.GenomeJobRepository = (*GenomeJobRepo)(nil)

// GenomeJobRepo keeps the most recent jobs in process. Once retention is
// reached the least recently written job is dropped.
type GenomeJobRepo struct {
	mu   sync.RWMutex
	jobs *lru.Cache[string, *model.GenomeJob]
}

func NewGenomeJobRepo(retention int) (*GenomeJobRepo, error) {
	if retention <= 0 {
		retention = 1000
	}
	c, err := lru.New[string, *model.GenomeJob](retention)
	if err != nil {
		return nil, err
	}
	return &GenomeJobRepo{jobs: c}, nil
}

func (r *GenomeJobRepo) Save(_ context.Context, job *model.GenomeJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs.Add(job.ID, job.Clone())
	return nil
}

func (r *GenomeJobRepo) FindByID(_ context.Context, id string) (*model.GenomeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Peek so reads don't refresh recency.
	j, ok := r.jobs.Peek(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *GenomeJobRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs.Remove(id)
	return nil
}

func (r *GenomeJobRepo) List(_ context.Context, limit int) ([]*model.GenomeJob, error) {
	r.mu.RLock()
	out := make([]*model.GenomeJob, 0, r.jobs.Len())
	for _, k := range r.jobs.Keys() {
		if j, ok := r.jobs.Peek(k); ok {
			out = append(out, j.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *GenomeJobRepo) FindLatestCompletedByBrand(_ context.Context, brand string) (*model.GenomeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *model.GenomeJob
	for _, k := range r.jobs.Keys() {
		j, ok := r.jobs.Peek(k)
		if !ok || j.Status != model.JobStatusCompleted || j.CompletedAt == nil || !strings.EqualFold(j.Input.Brand, brand) {
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
