package adapter

import (
	"context"

	"market-genome/internal/domain/model"
)

// BrandCollector gathers raw brand data. It always returns usable data;
// when a source fails the returned BrandData has Error set and err wraps
// domain.ErrCollection.
type BrandCollector interface {
	Collect(ctx context.Context, brand string, inputType model.InputType) (*model.BrandData, error)
}
