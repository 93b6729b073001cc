package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
)

var _ repository.GenomeJobRepository = (*GenomeJobRepo)(nil)

const genomeJobSchema = `
CREATE TABLE IF NOT EXISTS genome_jobs (
  id              TEXT PRIMARY KEY,
  status          TEXT NOT NULL,
  stage_label     TEXT NOT NULL DEFAULT '',
  current_stage   TEXT NOT NULL DEFAULT '',
  brand           TEXT NOT NULL,
  input           JSONB NOT NULL,
  stage_results   JSONB NOT NULL DEFAULT '{}'::jsonb,
  stage_order     JSONB NOT NULL DEFAULT '[]'::jsonb,
  artifact        JSONB,
  failure_reason  TEXT NOT NULL DEFAULT '',
  email_sent      BOOLEAN NOT NULL DEFAULT FALSE,
  created_at      TIMESTAMPTZ NOT NULL,
  updated_at      TIMESTAMPTZ NOT NULL,
  completed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS genome_jobs_created_idx ON genome_jobs (created_at DESC);
CREATE INDEX IF NOT EXISTS genome_jobs_brand_done_idx ON genome_jobs (lower(brand), completed_at DESC) WHERE status = 'completed';`

const genomeJobColumns = `id, status, stage_label, current_stage, input, stage_results, stage_order,
  artifact, failure_reason, email_sent, created_at, updated_at, completed_at`

type GenomeJobRepo struct {
	pool *pgxpool.Pool
	tm   *TxManager
}

func NewGenomeJobRepo(pool *pgxpool.Pool, tm *TxManager) *GenomeJobRepo {
	if tm == nil {
		tm = NewTxManager(pool)
	}
	return &GenomeJobRepo{pool: pool, tm: tm}
}

// EnsureSchema creates the jobs table and its indexes if missing.
func (r *GenomeJobRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, genomeJobSchema); err != nil {
		return fmt.Errorf("ensure genome_jobs schema: %w", err)
	}
	return nil
}

func (r *GenomeJobRepo) Save(ctx context.Context, job *model.GenomeJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	input, err := json.Marshal(job.Input)
	if err != nil {
		return err
	}
	results, err := json.Marshal(job.StageResults)
	if err != nil {
		return err
	}
	order, err := json.Marshal(job.StageOrder)
	if err != nil {
		return err
	}
	var artifact []byte
	if job.Artifact != nil {
		if artifact, err = json.Marshal(job.Artifact); err != nil {
			return err
		}
	}

	const q = `
INSERT INTO genome_jobs (id, status, stage_label, current_stage, brand, input, stage_results, stage_order,
  artifact, failure_reason, email_sent, created_at, updated_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  stage_label = EXCLUDED.stage_label,
  current_stage = EXCLUDED.current_stage,
  stage_results = EXCLUDED.stage_results,
  stage_order = EXCLUDED.stage_order,
  artifact = EXCLUDED.artifact,
  failure_reason = EXCLUDED.failure_reason,
  email_sent = EXCLUDED.email_sent,
  updated_at = EXCLUDED.updated_at,
  completed_at = EXCLUDED.completed_at;`

	_, err = getExecutor(ctx, r.pool).Exec(ctx, q,
		job.ID, string(job.Status), job.StageLabel, job.CurrentStage, job.Input.Brand,
		input, results, order, artifact, job.FailureReason, job.DeliverySucceeded,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("save genome job %s: %w", job.ID, err)
	}
	return nil
}

func (r *GenomeJobRepo) FindByID(ctx context.Context, id string) (*model.GenomeJob, error) {
	q := `SELECT ` + genomeJobColumns + ` FROM genome_jobs WHERE id = $1`
	return scanGenomeJob(getExecutor(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *GenomeJobRepo) Delete(ctx context.Context, id string) error {
	_, err := getExecutor(ctx, r.pool).Exec(ctx, `DELETE FROM genome_jobs WHERE id = $1`, id)
	return err
}

func (r *GenomeJobRepo) List(ctx context.Context, limit int) ([]*model.GenomeJob, error) {
	q := `SELECT ` + genomeJobColumns + ` FROM genome_jobs ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := getExecutor(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GenomeJob
	for rows.Next() {
		j, err := scanGenomeJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *GenomeJobRepo) FindLatestCompletedByBrand(ctx context.Context, brand string) (*model.GenomeJob, error) {
	q := `SELECT ` + genomeJobColumns + `
FROM genome_jobs
WHERE status = 'completed' AND lower(brand) = lower($1)
ORDER BY completed_at DESC
LIMIT 1`
	return scanGenomeJob(getExecutor(ctx, r.pool).QueryRow(ctx, q, brand))
}

// PurgeFinishedBefore deletes terminal jobs last updated before cutoff and
// returns how many went.
func (r *GenomeJobRepo) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context) error {
		ex := getExecutor(ctx, r.pool)
		if _, err := ex.Exec(ctx, `SET LOCAL statement_timeout = '30s'`); err != nil {
			return err
		}
		tag, err := ex.Exec(ctx,
			`DELETE FROM genome_jobs WHERE status IN ('completed', 'failed') AND updated_at < $1`, cutoff)
		if err != nil {
			return err
		}
		n = int(tag.RowsAffected())
		return nil
	})
	return n, err
}

func scanGenomeJob(row pgx.Row) (*model.GenomeJob, error) {
	var (
		j                     model.GenomeJob
		status                string
		input, results, order []byte
		artifact              []byte
	)
	err := row.Scan(&j.ID, &status, &j.StageLabel, &j.CurrentStage, &input, &results, &order,
		&artifact, &j.FailureReason, &j.DeliverySucceeded, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan genome job: %w", err)
	}
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal(input, &j.Input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if err := json.Unmarshal(results, &j.StageResults); err != nil {
		return nil, fmt.Errorf("decode stage results: %w", err)
	}
	if j.StageResults == nil {
		j.StageResults = make(map[string]json.RawMessage)
	}
	if err := json.Unmarshal(order, &j.StageOrder); err != nil {
		return nil, fmt.Errorf("decode stage order: %w", err)
	}
	if len(artifact) > 0 {
		var a model.Artifact
		if err := json.Unmarshal(artifact, &a); err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		j.Artifact = &a
	}
	return &j, nil
}
