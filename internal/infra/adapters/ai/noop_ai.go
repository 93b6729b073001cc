package ai

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs.
// It logs requests and returns canned answers instead of calling a provider.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logger}
}

func (a *NoopAIAdapter) ListModels(context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}

func (a *NoopAIAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	return estimateTokens(messages), nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, name string, messages []adapter.Message) (string, error) {
	text, _, err := a.ChatWithUsage(ctx, name, messages)
	return text, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, name string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", adapter.Usage{}, err
	}
	a.log.Debug().Str("model", name).Int("messages", len(messages)).Msg("noop-ai chat")
	for _, m := range messages {
		if strings.Contains(m.Content, "JSON") {
			return `{"summary":"analysis unavailable in offline mode"}`, adapter.Usage{}, nil
		}
	}
	return "This is a noop AI response.", adapter.Usage{}, nil
}

func (a *NoopAIAdapter) GenerateImage(ctx context.Context, prompt string, _ adapter.ImageSize) (model.ImageRef, error) {
	if err := ctx.Err(); err != nil {
		return model.ImageRef{}, err
	}
	a.log.Debug().Int("prompt_len", len(prompt)).Msg("noop-ai image")
	return model.ImageRef{URL: "https://placehold.co/1024x1024.png", MIMEType: "image/png"}, nil
}
