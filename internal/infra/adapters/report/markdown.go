package report

import (
	"fmt"
	"sort"
	"strings"

	"market-genome/internal/domain/model"
)

// BuildMarkdown lays out a genome report as Markdown. The same text feeds
// the PDF renderer and the HTML email body.
func BuildMarkdown(r model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Marketing Genome Report: %s\n\n", r.Brand)
	fmt.Fprintf(&b, "*Generated %s - job %s*\n\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), r.JobID)

	d := r.BrandData
	if d.URL != "" || d.Title != "" || d.Description != "" {
		b.WriteString("## Brand Snapshot\n\n")
		writeField(&b, "Website", d.URL)
		writeField(&b, "Title", d.Title)
		writeField(&b, "Description", d.Description)
		if len(d.Headlines) > 0 {
			writeField(&b, "Headlines", strings.Join(d.Headlines, ", "))
		}
		b.WriteString("\n")
	}

	writeSection(&b, "Brand DNA", r.BrandDNA)
	writeSection(&b, "Competitive Intelligence", r.Competitors)
	writeSection(&b, "Growth Roadmap", r.GrowthRoadmap)
	writeSection(&b, "Content Strategy", r.ContentStrategy)
	return b.String()
}

func writeField(b *strings.Builder, label, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, oneLine(v))
}

func writeSection(b *strings.Builder, title string, a model.Analysis) {
	if len(a) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	var scalars, nested []string
	for _, k := range sortedKeys(a) {
		switch a[k].(type) {
		case map[string]any, []any:
			nested = append(nested, k)
		default:
			scalars = append(scalars, k)
		}
	}
	for _, k := range scalars {
		writeField(b, Humanize(k), scalar(a[k]))
	}
	if len(scalars) > 0 {
		b.WriteString("\n")
	}
	for _, k := range nested {
		fmt.Fprintf(b, "### %s\n\n", Humanize(k))
		writeValue(b, a[k], 0)
		b.WriteString("\n")
	}
}

func writeValue(b *strings.Builder, v any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			switch child := t[k].(type) {
			case map[string]any, []any:
				fmt.Fprintf(b, "%s- **%s:**\n", indent, Humanize(k))
				writeValue(b, child, depth+1)
			default:
				fmt.Fprintf(b, "%s- **%s:** %s\n", indent, Humanize(k), oneLine(scalar(child)))
			}
		}
	case []any:
		for _, item := range t {
			switch it := item.(type) {
			case map[string]any:
				fmt.Fprintf(b, "%s- %s\n", indent, inlineMap(it))
			case []any:
				writeValue(b, it, depth+1)
			default:
				fmt.Fprintf(b, "%s- %s\n", indent, oneLine(scalar(it)))
			}
		}
	default:
		fmt.Fprintf(b, "%s- %s\n", indent, oneLine(scalar(t)))
	}
}

// inlineMap renders {"name":"X","weakness":"Y"} as "**X**: Weakness: Y".
func inlineMap(m map[string]any) string {
	var head, headKey string
	for _, k := range []string{"name", "title", "phase", "platform"} {
		if s, ok := m[k].(string); ok && s != "" {
			head, headKey = s, k
			break
		}
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		if k == headKey {
			continue
		}
		if s := scalar(m[k]); s != "" {
			parts = append(parts, Humanize(k)+": "+oneLine(s))
		}
	}
	body := strings.Join(parts, "; ")
	if head == "" {
		return body
	}
	if body == "" {
		return "**" + head + "**"
	}
	return "**" + head + "**: " + body
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%.2f", t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			parts = append(parts, scalar(x))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return inlineMap(t)
	default:
		return fmt.Sprint(t)
	}
}

// Humanize turns "market_position" into "Market position".
func Humanize(k string) string {
	s := strings.TrimSpace(strings.ReplaceAll(k, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
