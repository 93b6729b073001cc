package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
	"market-genome/internal/infra/metrics"
	red "market-genome/internal/infra/redis"
)

var _ repository.GenomeJobRepository = (*jobRepoCacheDecorator)(nil)

// jobRepoCacheDecorator caches finished jobs only; a terminal job never
// changes again, so status polls after completion skip the database.
type jobRepoCacheDecorator struct {
	repository.GenomeJobRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewJobRepoCacheDecorator(inner repository.GenomeJobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.GenomeJobRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &jobRepoCacheDecorator{GenomeJobRepository: inner, cache: cache, ttl: ttl, logger: logger}
}

func jobCacheKey(id string) string { return "genome_job_cache:" + id }

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, id string) (*model.GenomeJob, error) {
	key := jobCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var job model.GenomeJob
		if json.Unmarshal([]byte(val), &job) == nil {
			metrics.IncCacheRequest("genome_job", metrics.LookupHit)
			return &job, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) && d.logger != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("job cache read failed")
	}

	metrics.IncCacheRequest("genome_job", metrics.LookupMiss)
	job, err := d.GenomeJobRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		if b, err := json.Marshal(job); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}
	return job, nil
}

func (d *jobRepoCacheDecorator) Save(ctx context.Context, job *model.GenomeJob) error {
	if job != nil {
		_ = d.cache.Del(ctx, jobCacheKey(job.ID))
	}
	return d.GenomeJobRepository.Save(ctx, job)
}

func (d *jobRepoCacheDecorator) Delete(ctx context.Context, id string) error {
	_ = d.cache.Del(ctx, jobCacheKey(id))
	return d.GenomeJobRepository.Delete(ctx, id)
}
