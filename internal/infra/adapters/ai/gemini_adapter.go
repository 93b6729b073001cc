// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	imageModel   string
	maxOut       int
	temperature  float64
	// Imagen returns raw bytes; they are stored to get a fetchable URL.
	images adapter.ArtifactStore
}

type GeminiOptions struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	ImageModel   string
	MaxTokens    int
	Temperature  float64
	Images       adapter.ArtifactStore
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, o GeminiOptions) (*GeminiAdapter, error) {
	if o.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  o.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: o.BaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if o.DefaultModel == "" {
		o.DefaultModel = "gemini-2.0-flash"
	}
	if o.ImageModel == "" {
		o.ImageModel = "imagen-3.0-generate-002"
	}
	return &GeminiAdapter{
		client:       c,
		defaultModel: o.DefaultModel,
		imageModel:   o.ImageModel,
		maxOut:       o.MaxTokens,
		temperature:  o.Temperature,
		images:       o.Images,
	}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			break
		}
		if m != nil && m.Name != "" {
			out = append(out, m.Name)
		}
	}
	if len(out) == 0 && g.defaultModel != "" {
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, name string, messages []adapter.Message) (int, error) {
	_, contents := splitSystem(messages)
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(name, g.defaultModel), toGenAIHistory(contents), nil)
	if err != nil {
		return estimateTokens(messages), nil
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, name string, messages []adapter.Message) (string, error) {
	reply, _, err := g.chatCore(ctx, name, messages)
	return reply, err
}

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, name string, messages []adapter.Message) (string, adapter.Usage, error) {
	return g.chatCore(ctx, name, messages)
}

func (g *GeminiAdapter) GenerateImage(ctx context.Context, prompt string, _ adapter.ImageSize) (model.ImageRef, error) {
	if g.images == nil {
		return model.ImageRef{}, errors.New("gemini image: no artifact store configured")
	}
	resp, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, &genai.GenerateImagesConfig{
		AspectRatio: "1:1",
	})
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("gemini image: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return model.ImageRef{}, errors.New("gemini image: empty response")
	}
	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	ext := ".png"
	if strings.Contains(mime, "jpeg") {
		ext = ".jpg"
	}
	obj, err := g.images.Put(ctx, "images/"+model.NewJobID()+ext, img.ImageBytes, mime)
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("gemini image store: %w", err)
	}
	return model.ImageRef{URL: obj.URL, MIMEType: mime}, nil
}

// --- internal ---

func (g *GeminiAdapter) chatCore(ctx context.Context, name string, messages []adapter.Message) (string, adapter.Usage, error) {
	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		return "", adapter.Usage{}, errors.New("gemini: no messages")
	}
	last := rest[len(rest)-1]
	if !strings.EqualFold(last.Role, adapter.RoleUser) {
		return "", adapter.Usage{}, errors.New("gemini: last message must be from user")
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.maxOut),
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.temperature))
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	chat, err := g.client.Chats.Create(ctx, modelOrDefault(name, g.defaultModel), cfg, toGenAIHistory(rest[:len(rest)-1]))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return "", adapter.Usage{}, err
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	u := adapter.Usage{}
	if resp != nil && resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text, u, nil
}

// splitSystem pulls system messages out so they can go in SystemInstruction.
func splitSystem(msgs []adapter.Message) (string, []adapter.Message) {
	var sys []string
	rest := make([]adapter.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.EqualFold(m.Role, adapter.RoleSystem) {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case adapter.RoleAssistant, "model":
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(name, def string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return def
}
