package model

import "time"

// BrandData is what collection gathered about a brand. Partial data is
// normal: Error is set when a source could not be read.
type BrandData struct {
	Brand       string    `json:"brand"`
	InputType   InputType `json:"input_type"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Headlines   []string  `json:"headlines,omitempty"`
	Paragraphs  []string  `json:"paragraphs,omitempty"`
	TextContent string    `json:"text_content,omitempty"`
	Error       string    `json:"error,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// Analysis is a free-form JSON object produced by an analysis stage.
type Analysis map[string]any

// Str returns a string field or "".
func (a Analysis) Str(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Report is the input to the renderer.
type Report struct {
	JobID           string    `json:"job_id"`
	Brand           string    `json:"brand"`
	BrandData       BrandData `json:"brand_data"`
	BrandDNA        Analysis  `json:"brand_dna"`
	Competitors     Analysis  `json:"competitors"`
	GrowthRoadmap   Analysis  `json:"growth_roadmap"`
	ContentStrategy Analysis  `json:"content_strategy"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// BrandContext seeds a chat session from a completed analysis.
type BrandContext struct {
	JobID       string   `json:"job_id"`
	BrandDNA    Analysis `json:"brand_dna,omitempty"`
	Audience    any      `json:"audience,omitempty"`
	Competitors Analysis `json:"competitors,omitempty"`
}

// Tone and Values feed image prompts.
func (c *BrandContext) Tone() string {
	if c == nil {
		return ""
	}
	if p, ok := c.BrandDNA["personality"].(map[string]any); ok {
		if t, ok := p["tone"].(string); ok {
			return t
		}
	}
	return c.BrandDNA.Str("tone")
}

func (c *BrandContext) Values() []string {
	if c == nil {
		return nil
	}
	raw, ok := c.BrandDNA["values"].([]any)
	if p, isMap := c.BrandDNA["personality"].(map[string]any); isMap {
		if v, found := p["values"].([]any); found {
			raw, ok = v, true
		}
	}
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Artifact is a stored file: the rendered report, an image or an export.
type Artifact struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImageRef points at a generated image.
type ImageRef struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
}
