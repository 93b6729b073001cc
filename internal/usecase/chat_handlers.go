// File: internal/usecase/chat_handlers.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
)

type handlerResult struct {
	Text       string
	Attachment *model.ImageRef
	JobID      string
}

type actionHandler func(ctx context.Context, s *model.ChatSession, text string) (handlerResult, error)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// actionFocus narrows the assistant for each text category.
var actionFocus = map[model.ActionCategory]string{
	model.ActionContentCreation: "The user wants ready-to-publish content. Write the posts, captions or copy directly, with hashtags and a call to action where it fits.",
	model.ActionCompetitor:      "The user wants competitor intelligence. Name 3-5 specific competitors with their Instagram handle (@username), website URL, key strength and the opportunity it leaves open.",
	model.ActionPredictive:      "The user wants a prediction or scenario analysis. Give expected engagement or outcome ranges, the assumptions behind them and the levers that change the result.",
	model.ActionPersona:         "The user wants audience insight. Describe concrete micro-personas with demographics, motivations, pain points and the content each responds to.",
	model.ActionCampaign:        "The user wants a campaign or strategic plan. Lay out goal, timeline, channels, content mix, budget split and success metrics.",
}

func (c *chatUC) buildHandlers() map[model.ActionCategory]actionHandler {
	h := map[model.ActionCategory]actionHandler{
		model.ActionImageGeneration: c.handleImage,
		model.ActionReportRequest:   c.handleReport,
		model.ActionGeneralChat:     c.textHandler(model.ActionGeneralChat),
	}
	for action := range actionFocus {
		h[action] = c.textHandler(action)
	}
	return h
}

func (c *chatUC) handleImage(ctx context.Context, s *model.ChatSession, text string) (handlerResult, error) {
	img, err := c.ai.GenerateImage(ctx, enhanceImagePrompt(text, s.BrandContext), c.opts.ImageSize)
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{
		Text: fmt.Sprintf("I've generated an image for you! Here's what I created:\n\n%s\n\n"+
			"Would you like me to create another variation or adjust anything?", text),
		Attachment: &img,
	}, nil
}

func enhanceImagePrompt(prompt string, bc *model.BrandContext) string {
	style := ""
	if bc != nil {
		tone := bc.Tone()
		if tone == "" {
			tone = "professional"
		}
		style = " The style should be " + tone
		if v := bc.Values(); len(v) > 0 {
			if len(v) > 2 {
				v = v[:2]
			}
			style += " and reflect values of " + strings.Join(v, ", ")
		}
	}
	return fmt.Sprintf("%s.%s. High quality, professional social media post design.", strings.TrimRight(prompt, ". "), style)
}

func (c *chatUC) handleReport(ctx context.Context, s *model.ChatSession, text string) (handlerResult, error) {
	email := emailPattern.FindString(text)
	if email == "" {
		return handlerResult{Text: fmt.Sprintf(
			"I'd be happy to prepare a full Marketing Genome report for %s. Which email address should I send it to?",
			s.BrandHandle)}, nil
	}
	job, err := c.submitReport(ctx, s, email)
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr) && !verr.Has("email"):
		return handlerResult{Text: fmt.Sprintf(
			"I can't start a report for %s: %s.", s.BrandHandle, verr.Reason)}, nil
	case errors.Is(err, domain.ErrInvalidArgument):
		return handlerResult{Text: fmt.Sprintf(
			"I couldn't use %s as a delivery address. Could you double-check the email?", email)}, nil
	case errors.Is(err, domain.ErrQueueFull):
		return handlerResult{Text: "The report generator is busy right now. Please ask me again in a few minutes."}, nil
	case err != nil:
		return handlerResult{}, err
	}
	return handlerResult{
		Text: fmt.Sprintf("Your Marketing Genome report for %s is being generated (job ID: %s). "+
			"It will be emailed to %s in a few minutes.", s.BrandHandle, job.ID, email),
		JobID: job.ID,
	}, nil
}

func (c *chatUC) textHandler(action model.ActionCategory) actionHandler {
	return func(ctx context.Context, s *model.ChatSession, _ string) (handlerResult, error) {
		system := buildSystemPrompt(s.BrandHandle, s.BrandContext)
		if focus := actionFocus[action]; focus != "" {
			system += "\nCURRENT REQUEST:\n" + focus + "\n"
		}
		msgs := c.contextWindow(ctx, system, s.GetRecentMessages(c.opts.HistoryWindow))
		text, usage, err := c.ai.ChatWithUsage(ctx, c.opts.Model, msgs)
		if err != nil {
			return handlerResult{}, err
		}
		if strings.TrimSpace(text) == "" {
			return handlerResult{}, fmt.Errorf("%w: empty answer", domain.ErrService)
		}
		c.log.Debug().Str("action", string(action)).Int("tokens", usage.Total()).Msg("chat answer")
		return handlerResult{Text: text}, nil
	}
}

// contextWindow drops the oldest turns until the prompt fits the token budget.
// The newest message is always kept.
func (c *chatUC) contextWindow(ctx context.Context, system string, history []model.ChatMessage) []adapter.Message {
	build := func(h []model.ChatMessage) []adapter.Message {
		out := make([]adapter.Message, 0, len(h)+1)
		out = append(out, adapter.Message{Role: adapter.RoleSystem, Content: system})
		for _, m := range h {
			out = append(out, adapter.Message{Role: string(m.Role), Content: m.Content})
		}
		return out
	}
	msgs := build(history)
	if c.opts.ContextTokens <= 0 {
		return msgs
	}
	for len(history) > 1 {
		n, err := c.ai.CountTokens(ctx, c.opts.Model, msgs)
		if err != nil || n <= c.opts.ContextTokens {
			break
		}
		history = history[1:]
		msgs = build(history)
	}
	return msgs
}

func buildSystemPrompt(brand string, bc *model.BrandContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are Pixaro Brand AI - a personal marketing strategist and brand assistant for %s.

YOUR ROLE:
You are an expert marketing strategist with deep knowledge of this brand's DNA, audience, competitors, and content performance. You provide actionable, data-driven insights and create ready-to-use marketing content.

YOUR CAPABILITIES:
1. Brand Strategy - Analyze brand positioning, voice, and growth opportunities
2. Content Creation - Generate Instagram posts, captions, email campaigns, ad copy
3. Image Generation - Create professional visual content and post designs
4. Audience Insights - Explain audience segments, preferences, and behaviors
5. Competitor Analysis - Identify competitor weaknesses and market gaps
6. Predictive Analytics - Forecast engagement, ROI, and campaign performance
7. Report Generation - Create custom strategy reports on demand

RESPONSE STYLE:
- Keep answers concise but comprehensive
- Always provide specific, actionable recommendations
- Use bullet points for clarity
- Suggest next steps proactively
`, brand)

	if bc != nil {
		b.WriteString("\nBRAND CONTEXT YOU KNOW:\n")
		if bc.BrandDNA != nil {
			fmt.Fprintf(&b, "Brand DNA:\n%s\n", indentJSON(bc.BrandDNA))
		}
		if bc.Audience != nil {
			fmt.Fprintf(&b, "Target Audience:\n%s\n", indentJSON(bc.Audience))
		}
		if bc.Competitors != nil {
			fmt.Fprintf(&b, "Competitors:\n%s\n", indentJSON(bc.Competitors))
		}
	}

	b.WriteString(`
SPECIAL COMMANDS YOU RECOGNIZE:
- "generate report" or "send report" with an email address - a full PDF report is generated and emailed
- "generate post" or "create caption" - create social media content
- "generate image" or "create photo" - generate visual content
`)
	return b.String()
}
