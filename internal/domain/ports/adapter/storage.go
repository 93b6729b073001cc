package adapter

import (
	"context"
)

// ArtifactStore keeps binary artifacts (reports, images, exports).
type ArtifactStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (StoredObject, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

type StoredObject struct {
	Key  string
	URL  string
	Size int64
}
