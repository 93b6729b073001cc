package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	antoption "github.com/anthropics/anthropic-sdk-go/option"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

// AnthropicAdapter serves text analysis through Claude models. It has no
// image support; route images to another provider.
type AnthropicAdapter struct {
	client       anthropic.Client
	defaultModel string
	maxOut       int
	temperature  float64
}

func NewAnthropicAdapter(apiKey, defaultModel string, maxOut int, temperature float64) (*AnthropicAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	if maxOut <= 0 {
		maxOut = 4096
	}
	return &AnthropicAdapter{
		client:       anthropic.NewClient(antoption.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		maxOut:       maxOut,
		temperature:  temperature,
	}, nil
}

func (a *AnthropicAdapter) ListModels(context.Context) ([]string, error) {
	return []string{a.defaultModel}, nil
}

// CountTokens is an estimate; the messages API reports exact usage per call.
func (a *AnthropicAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	return estimateTokens(messages), nil
}

func (a *AnthropicAdapter) Chat(ctx context.Context, name string, messages []adapter.Message) (string, error) {
	text, _, err := a.ChatWithUsage(ctx, name, messages)
	return text, err
}

func (a *AnthropicAdapter) ChatWithUsage(ctx context.Context, name string, messages []adapter.Message) (string, adapter.Usage, error) {
	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		return "", adapter.Usage{}, errors.New("anthropic: no messages")
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelOrDefault(name, a.defaultModel)),
		MaxTokens: int64(a.maxOut),
		Messages:  toAnthropicMessages(rest),
	}
	if a.temperature > 0 {
		params.Temperature = anthropic.Float(a.temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("anthropic chat: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", adapter.Usage{}, errors.New("anthropic: empty response")
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return b.String(), adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}

func (a *AnthropicAdapter) GenerateImage(context.Context, string, adapter.ImageSize) (model.ImageRef, error) {
	return model.ImageRef{}, errors.New("anthropic: image generation not supported")
}

func toAnthropicMessages(msgs []adapter.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		switch strings.ToLower(m.Role) {
		case adapter.RoleAssistant, "model":
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
