package adapter

import (
	"context"

	"market-genome/internal/domain/model"
)

// Notifier delivers finished reports and failure notices.
type Notifier interface {
	DeliverReport(ctx context.Context, to, brand string, artifact model.Artifact) error
	NotifyFailure(ctx context.Context, to, brand, reason string) error
}
