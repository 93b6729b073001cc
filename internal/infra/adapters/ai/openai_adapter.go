// File: internal/infra/adapters/ai/openai_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	oaoption "github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the OpenAI API (or any compatible base URL) and
// generates images with DALL-E.
type OpenAIAdapter struct {
	client       openai.Client
	defaultModel string
	imageModel   string
	maxOut       int
	temperature  float64

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	ImageModel   string
	MaxTokens    int
	Temperature  float64
}

func NewOpenAIAdapter(o OpenAIOptions) (*OpenAIAdapter, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return nil, errors.New("openai: empty api key")
	}
	opts := []oaoption.RequestOption{oaoption.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		opts = append(opts, oaoption.WithBaseURL(o.BaseURL))
	}
	if o.DefaultModel == "" {
		o.DefaultModel = "gpt-4o-mini"
	}
	if o.ImageModel == "" {
		o.ImageModel = "dall-e-3"
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(opts...),
		defaultModel: o.DefaultModel,
		imageModel:   o.ImageModel,
		maxOut:       o.MaxTokens,
		temperature:  o.Temperature,
		encs:         make(map[string]*tiktoken.Tiktoken),
	}, nil
}

func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	page, err := a.client.Models.List(ctx)
	if err != nil {
		return []string{a.defaultModel}, nil
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		if strings.HasPrefix(m.ID, "gpt") || strings.HasPrefix(m.ID, "o") {
			out = append(out, m.ID)
		}
	}
	if len(out) == 0 {
		out = []string{a.defaultModel}
	}
	return out, nil
}

// CountTokens uses the model's BPE encoding, falling back to cl100k_base.
func (a *OpenAIAdapter) CountTokens(_ context.Context, name string, messages []adapter.Message) (int, error) {
	enc, err := a.encoding(modelOrDefault(name, a.defaultModel))
	if err != nil {
		return estimateTokens(messages), nil
	}
	n := 0
	for _, m := range messages {
		// per-message framing overhead
		n += 4 + len(enc.Encode(m.Content, nil, nil))
	}
	return n + 2, nil
}

func (a *OpenAIAdapter) encoding(name string) (*tiktoken.Tiktoken, error) {
	a.encMu.Lock()
	defer a.encMu.Unlock()
	if enc, ok := a.encs[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	a.encs[name] = enc
	return enc, nil
}

func (a *OpenAIAdapter) Chat(ctx context.Context, name string, messages []adapter.Message) (string, error) {
	text, _, err := a.ChatWithUsage(ctx, name, messages)
	return text, err
}

func (a *OpenAIAdapter) ChatWithUsage(ctx context.Context, name string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelOrDefault(name, a.defaultModel)),
		Messages: toOpenAIMessages(messages),
	}
	if a.temperature > 0 {
		params.Temperature = openai.Float(a.temperature)
	}
	if a.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(a.maxOut))
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", adapter.Usage{}, errors.New("openai: empty choices")
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, u, nil
}

func (a *OpenAIAdapter) GenerateImage(ctx context.Context, prompt string, size adapter.ImageSize) (model.ImageRef, error) {
	if size == "" {
		size = adapter.DefaultImageSize
	}
	resp, err := a.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:  prompt,
		Model:   openai.ImageModel(a.imageModel),
		Size:    openai.ImageGenerateParamsSize(size),
		Quality: openai.ImageGenerateParamsQuality("standard"),
		N:       openai.Int(1),
	})
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("openai image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return model.ImageRef{}, errors.New("openai image: empty response")
	}
	return model.ImageRef{URL: resp.Data[0].URL, MIMEType: "image/png"}, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case adapter.RoleAssistant, "model":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// estimateTokens is the fallback when no encoder is available (~4 chars/token).
func estimateTokens(messages []adapter.Message) int {
	n := 0
	for _, m := range messages {
		n += 4 + (len(m.Content)+3)/4
	}
	return n
}
