package storage

import (
	"context"
	"encoding/json"
	"regexp"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/domain/ports/repository"
	"market-genome/internal/infra/security"
)

var _ repository.ConversationArchive = (*ConversationArchive)(nil)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// ConversationArchive writes exports to the artifact store as
// conversations/conversation_<handle>_<session>.json.
type ConversationArchive struct {
	store  adapter.ArtifactStore
	sealer *security.Sealer
}

func NewConversationArchive(store adapter.ArtifactStore, sealer *security.Sealer) *ConversationArchive {
	return &ConversationArchive{store: store, sealer: sealer}
}

func ConversationKey(handle, sessionID string) string {
	h := unsafeKeyChars.ReplaceAllString(handle, "_")
	if h == "" {
		h = "brand"
	}
	return "conversations/conversation_" + h + "_" + unsafeKeyChars.ReplaceAllString(sessionID, "_") + ".json"
}

func (a *ConversationArchive) Export(ctx context.Context, exp model.ConversationExport) (string, error) {
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", err
	}
	ct := "application/json"
	if a.sealer != nil {
		if data, err = a.sealer.Seal(data, []byte(exp.SessionID)); err != nil {
			return "", err
		}
		ct = "application/octet-stream"
	}
	obj, err := a.store.Put(ctx, ConversationKey(exp.BrandHandle, exp.SessionID), data, ct)
	if err != nil {
		return "", err
	}
	return obj.Key, nil
}
