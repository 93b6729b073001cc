package adapter

import (
	"context"

	"market-genome/internal/domain/model"
)

// Roles accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting a provider reports for one completion.
// Providers that report nothing leave it zero.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Total falls back to the sum when the provider omitted TotalTokens.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// ImageSize is a WIDTHxHEIGHT hint such as "1024x1024".
type ImageSize string

const DefaultImageSize ImageSize = "1024x1024"

// AIServiceAdapter is the analysis backend. An empty model selects the
// provider's default. Provider failures wrap domain.ErrService.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)
	// CountTokens may estimate when the provider has no tokenizer.
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
	GenerateImage(ctx context.Context, prompt string, size ImageSize) (model.ImageRef, error)
}
