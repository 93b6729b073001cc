package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
)

var _ repository.GenomeJobRepository = (*GenomeJobRepo)(nil)

const (
	jobIndexKey = "genome_jobs"
	// brandScan bounds the brand index read; older entries expire first.
	brandScan = 16
)

// GenomeJobRepo keeps job snapshots as JSON with a TTL, indexed by
// creation time in a sorted set. Completed jobs are also indexed per
// brand by completion time.
type GenomeJobRepo struct {
	cli *redis.Client
	ttl time.Duration
}

func NewGenomeJobRepo(c *Client, ttl time.Duration) *GenomeJobRepo {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &GenomeJobRepo{cli: c.cli, ttl: ttl}
}

func jobKey(id string) string { return "genome_job:" + id }

func brandIndexKey(brand string) string {
	return jobIndexKey + ":brand:" + strings.ToLower(strings.TrimSpace(brand))
}

func (r *GenomeJobRepo) Save(ctx context.Context, job *model.GenomeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = r.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, jobKey(job.ID), data, r.ttl)
		p.ZAdd(ctx, jobIndexKey, &redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
		if job.Status == model.JobStatusCompleted && job.CompletedAt != nil {
			bk := brandIndexKey(job.Input.Brand)
			p.ZAdd(ctx, bk, &redis.Z{Score: float64(job.CompletedAt.UnixNano()), Member: job.ID})
			p.Expire(ctx, bk, r.ttl)
		}
		return nil
	})
	return err
}

func (r *GenomeJobRepo) FindByID(ctx context.Context, id string) (*model.GenomeJob, error) {
	data, err := r.cli.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var job model.GenomeJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (r *GenomeJobRepo) Delete(ctx context.Context, id string) error {
	var bk string
	if job, err := r.FindByID(ctx, id); err == nil {
		bk = brandIndexKey(job.Input.Brand)
	}
	_, err := r.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, jobKey(id))
		p.ZRem(ctx, jobIndexKey, id)
		if bk != "" {
			p.ZRem(ctx, bk, id)
		}
		return nil
	})
	return err
}

func (r *GenomeJobRepo) List(ctx context.Context, limit int) ([]*model.GenomeJob, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.cli.ZRevRange(ctx, jobIndexKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, jobIndexKey, ids)
}

// load fetches ids in order, pruning index entries whose job key expired.
func (r *GenomeJobRepo) load(ctx context.Context, index string, ids []string) ([]*model.GenomeJob, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.GenomeJob, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job model.GenomeJob
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			continue
		}
		out = append(out, &job)
	}
	if len(stale) > 0 {
		_ = r.cli.ZRem(ctx, index, stale...).Err()
	}
	return out, nil
}

func (r *GenomeJobRepo) FindLatestCompletedByBrand(ctx context.Context, brand string) (*model.GenomeJob, error) {
	key := brandIndexKey(brand)
	ids, err := r.cli.ZRevRange(ctx, key, 0, brandScan-1).Result()
	if err != nil {
		return nil, err
	}
	jobs, err := r.load(ctx, key, ids)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Status == model.JobStatusCompleted && j.CompletedAt != nil {
			return j, nil
		}
	}
	return nil, domain.ErrNotFound
}
