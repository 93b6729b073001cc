package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*Router)(nil)

// modelFamilies maps model name prefixes to the provider serving them.
// Checked in order, first match wins.
var modelFamilies = []struct{ prefix, provider string }{
	{"gpt", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"dall-e", "openai"},
	{"gemini", "gemini"},
	{"imagen", "gemini"},
	{"claude", "anthropic"},
}

// Router sends each call to one provider. Text calls pick the provider by
// model name, image calls always go to the image provider. When the wanted
// provider is not configured, the default one serves, then the remaining
// providers in name order.
type Router struct {
	providers map[string]adapter.AIServiceAdapter
	pinned    map[string]string
	order     []string
	def       string
	image     string
}

// NewRouter builds a router over providers keyed by name. pinned overrides
// the prefix table for specific model names. An empty image provider means
// the default one.
func NewRouter(def, image string, providers map[string]adapter.AIServiceAdapter, pinned map[string]string) *Router {
	r := &Router{
		providers: make(map[string]adapter.AIServiceAdapter, len(providers)),
		pinned:    make(map[string]string, len(pinned)),
		def:       strings.ToLower(def),
		image:     strings.ToLower(image),
	}
	if r.image == "" {
		r.image = r.def
	}
	for name, p := range providers {
		if p == nil {
			continue
		}
		name = strings.ToLower(name)
		r.providers[name] = p
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	for m, p := range pinned {
		r.pinned[m] = strings.ToLower(p)
	}
	return r
}

// ProviderFor names the provider a text call for modelName would reach,
// or "" when none is configured.
func (r *Router) ProviderFor(modelName string) string {
	want, ok := r.pinned[modelName]
	if !ok {
		want = r.def
		l := strings.ToLower(modelName)
		for _, f := range modelFamilies {
			if strings.HasPrefix(l, f.prefix) {
				want = f.provider
				break
			}
		}
	}
	return r.resolve(want)
}

func (r *Router) resolve(want string) string {
	for _, name := range []string{want, r.def} {
		if _, ok := r.providers[name]; ok {
			return name
		}
	}
	if len(r.order) > 0 {
		return r.order[0]
	}
	return ""
}

func (r *Router) textProvider(modelName string) (adapter.AIServiceAdapter, error) {
	name := r.ProviderFor(modelName)
	if name == "" {
		return nil, fmt.Errorf("no ai provider for model %q: %w", modelName, domain.ErrService)
	}
	return r.providers[name], nil
}

// ListModels merges the providers' lists with the pinned names. A
// provider that fails to list is skipped unless all of them fail.
func (r *Router) ListModels(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	var errs []error
	for _, name := range r.order {
		list, err := r.providers[name].ListModels(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, m := range list {
			add(m)
		}
	}
	for m := range r.pinned {
		add(m)
	}
	sort.Strings(out)
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (r *Router) CountTokens(ctx context.Context, modelName string, messages []adapter.Message) (int, error) {
	p, err := r.textProvider(modelName)
	if err != nil {
		return estimateTokens(messages), nil
	}
	return p.CountTokens(ctx, modelName, messages)
}

func (r *Router) Chat(ctx context.Context, modelName string, messages []adapter.Message) (string, error) {
	p, err := r.textProvider(modelName)
	if err != nil {
		return "", err
	}
	return p.Chat(ctx, modelName, messages)
}

func (r *Router) ChatWithUsage(ctx context.Context, modelName string, messages []adapter.Message) (string, adapter.Usage, error) {
	p, err := r.textProvider(modelName)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return p.ChatWithUsage(ctx, modelName, messages)
}

func (r *Router) GenerateImage(ctx context.Context, prompt string, size adapter.ImageSize) (model.ImageRef, error) {
	name := r.resolve(r.image)
	if name == "" {
		return model.ImageRef{}, fmt.Errorf("no image provider: %w", domain.ErrService)
	}
	return r.providers[name].GenerateImage(ctx, prompt, size)
}
