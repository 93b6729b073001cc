package adapter

import (
	"context"

	"market-genome/internal/domain/model"
)

// ReportRenderer turns analysis results into a stored document.
// Failures wrap domain.ErrRender.
type ReportRenderer interface {
	Render(ctx context.Context, report model.Report) (model.Artifact, error)
}
