package redis

import (
	"context"
	"encoding/json"
	"time"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
	"market-genome/internal/infra/security"
)

var _ repository.ConversationArchive = (*ConversationArchive)(nil)

// ConversationArchive stores exports under conversation:<session_id>.
type ConversationArchive struct {
	client RedisClient
	ttl    time.Duration
	sealer *security.Sealer
}

// NewConversationArchive seals exports when sealer is non-nil.
func NewConversationArchive(client RedisClient, ttl time.Duration, sealer *security.Sealer) *ConversationArchive {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ConversationArchive{client: client, ttl: ttl, sealer: sealer}
}

func (a *ConversationArchive) Export(ctx context.Context, exp model.ConversationExport) (string, error) {
	data, err := json.Marshal(exp)
	if err != nil {
		return "", err
	}
	if a.sealer != nil {
		if data, err = a.sealer.Seal(data, []byte(exp.SessionID)); err != nil {
			return "", err
		}
	}
	key := "conversation:" + exp.SessionID
	if err := a.client.Set(ctx, key, data, a.ttl); err != nil {
		return "", err
	}
	return "redis://" + key, nil
}
