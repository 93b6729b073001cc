package repository

import (
	"context"

	"market-genome/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

// ChatSessionRepository is the live session registry. Sessions hold
// synchronization state, so implementations keep them in process.
type ChatSessionRepository interface {
	Save(ctx context.Context, session *model.ChatSession) error
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.ChatSession, error)
	Count(ctx context.Context) int
}

// ConversationArchive persists exported conversations and returns where
// the export went.
type ConversationArchive interface {
	Export(ctx context.Context, exp model.ConversationExport) (string, error)
}
