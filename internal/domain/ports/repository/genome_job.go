package repository

import (
	"context"

	"market-genome/internal/domain/model"
)

// GenomeJobRepository stores job snapshots. Implementations must store and
// return copies so readers never observe a run mid-update.
type GenomeJobRepository interface {
	Save(ctx context.Context, job *model.GenomeJob) error
	FindByID(ctx context.Context, id string) (*model.GenomeJob, error)
	Delete(ctx context.Context, id string) error
	// List returns jobs newest first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*model.GenomeJob, error)
	// FindLatestCompletedByBrand matches the input brand case-insensitively.
	FindLatestCompletedByBrand(ctx context.Context, brand string) (*model.GenomeJob, error)
}
