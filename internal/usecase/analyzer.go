// File: internal/usecase/analyzer.go
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

// Analyzer runs the four AI analysis stages. Each answer must be a JSON object.
type Analyzer struct {
	ai    adapter.AIServiceAdapter
	model string
}

func NewAnalyzer(ai adapter.AIServiceAdapter, modelName string) *Analyzer {
	return &Analyzer{ai: ai, model: modelName}
}

const dnaSystem = `You are an expert brand strategist and marketing analyst.
Analyze the provided brand data and extract the brand's DNA - its core identity, positioning, and strategy.

Be specific, insightful, and data-driven. Focus on what makes this brand unique.`

const dnaShape = `{
  "personality": {"tone": "", "values": [], "archetype": ""},
  "positioning": {"market_position": "", "uvp": "", "differentiation": ""},
  "audience": {"demographics": "", "psychographics": "", "pain_points": []},
  "visual": {"colors": [], "design_language": "", "aesthetics": ""},
  "messaging": {"key_messages": [], "style": "", "emotional_appeal": ""}
}`

func (a *Analyzer) BrandDNA(ctx context.Context, data *model.BrandData) (model.Analysis, error) {
	brand := ""
	if data != nil {
		brand = data.Brand
	}
	prompt := fmt.Sprintf(`Analyze this brand and extract its DNA:

Brand: %s

Data Collected:
%s

Provide a comprehensive brand DNA analysis covering brand personality (tone & voice, core values, archetype),
positioning (market position, unique value proposition, differentiation), target audience (demographics,
psychographics, pain points), visual identity (color psychology, design language, aesthetics) and messaging
strategy (key messages, communication style, emotional appeal).

Return as JSON with these exact keys:
%s`, brand, BrandContextText(data), dnaShape)
	return a.ask(ctx, StageBrandDNA, dnaSystem, prompt)
}

func (a *Analyzer) Competitors(ctx context.Context, data *model.BrandData, dna model.Analysis) (model.Analysis, error) {
	brand := ""
	if data != nil {
		brand = data.Brand
	}
	position := ""
	if p, ok := dna["positioning"].(map[string]any); ok {
		position, _ = p["market_position"].(string)
	}
	prompt := fmt.Sprintf(`Based on this brand analysis, identify competitors and their weaknesses:

Brand: %s
Positioning: %s

Provide:
1. Top 3-5 direct competitors
2. Their key weaknesses
3. Market gaps/opportunities
4. Competitive advantages to leverage

Return as JSON:
{
  "competitors": [
    {"name": "", "weakness": "", "market_share": ""}
  ],
  "market_gaps": [],
  "opportunities": [],
  "competitive_advantages": []
}`, brand, orUnknown(position))
	return a.ask(ctx, StageCompetitors, `You are a competitive intelligence analyst.
Identify competitors and their weaknesses to find market opportunities.`, prompt)
}

func (a *Analyzer) GrowthRoadmap(ctx context.Context, dna, competitors model.Analysis) (model.Analysis, error) {
	prompt := fmt.Sprintf(`Create a 90-day growth roadmap:

Brand DNA:
%s

Market Opportunities:
%s

Provide:
1. Month 1 priorities (quick wins)
2. Month 2 priorities (momentum building)
3. Month 3 priorities (scaling)
4. Key metrics to track
5. Resource requirements

Return as JSON with timeline and specific actions.`, indentJSON(dna), indentJSON(competitors["opportunities"]))
	return a.ask(ctx, StageGrowthRoadmap, `You are a growth marketing strategist.
Create actionable growth roadmaps based on brand DNA and market opportunities.`, prompt)
}

func (a *Analyzer) ContentStrategy(ctx context.Context, dna model.Analysis) (model.Analysis, error) {
	bc := &model.BrandContext{BrandDNA: dna}
	demographics := ""
	if aud, ok := dna["audience"].(map[string]any); ok {
		demographics, _ = aud["demographics"].(string)
	}
	prompt := fmt.Sprintf(`Create a content strategy framework:

Brand DNA:
Tone: %s
Values: %s
Target Audience: %s

Provide:
1. 3-5 Content Pillars (core themes)
2. Topic clusters for each pillar
3. Content formats (blog, video, social, etc.)
4. Posting frequency recommendations
5. Platform-specific strategies

Return as JSON with detailed content pillars.`, orUnknown(bc.Tone()), orUnknown(strings.Join(bc.Values(), ", ")), orUnknown(demographics))
	return a.ask(ctx, StageContentStrategy, `You are a content strategist.
Create content pillar frameworks that align with brand DNA.`, prompt)
}

func (a *Analyzer) ask(ctx context.Context, stage, system, prompt string) (model.Analysis, error) {
	text, _, err := a.ai.ChatWithUsage(ctx, a.model, []adapter.Message{
		{Role: adapter.RoleSystem, Content: system},
		{Role: adapter.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	out, err := ParseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	return out, nil
}

// ParseAnalysis extracts the JSON object from a model answer, tolerating
// markdown fences and surrounding prose.
func ParseAnalysis(text string) (model.Analysis, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: answer is not a JSON object", domain.ErrService)
	}
	var out model.Analysis
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: decode answer: %v", domain.ErrService, err)
	}
	return out, nil
}

// BrandContextText renders collected data as prompt context.
func BrandContextText(d *model.BrandData) string {
	if d == nil {
		return "No data collected."
	}
	var b strings.Builder
	if d.URL != "" {
		fmt.Fprintf(&b, "Website: %s\n", d.URL)
	}
	if d.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", d.Title)
	}
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	if len(d.Headlines) > 0 {
		fmt.Fprintf(&b, "Headlines: %s\n", strings.Join(d.Headlines, ", "))
	}
	if d.TextContent != "" {
		fmt.Fprintf(&b, "Content: %s\n", truncate(d.TextContent, 500))
	}
	if b.Len() == 0 {
		return "No data collected."
	}
	return strings.TrimRight(b.String(), "\n")
}

func indentJSON(v any) string {
	if v == nil {
		return "[]"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
