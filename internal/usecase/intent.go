// File: internal/usecase/intent.go
package usecase

import (
	"strings"

	"market-genome/internal/domain/model"
)

type intentRule struct {
	action  model.ActionCategory
	phrases []string
}

// intentRules is evaluated top to bottom; the first rule with a matching
// phrase wins, so order encodes precedence.
var intentRules = []intentRule{
	{model.ActionImageGeneration, []string{
		"create a image", "create an image", "generate a image", "generate an image", "generate image",
		"make image", "make a image", "make an image", "create a photo", "create photo",
		"generate a photo", "generate photo", "make photo", "design a post", "design post",
		"create visual", "generate visual", "make a post photo", "create post image",
		"image of", "photo of", "image about", "photo about", "picture of", "picture about",
		"graphic about", "graphic of", "design about",
	}},
	{model.ActionReportRequest, []string{"generate report", "send report", "create report", "email report"}},
	{model.ActionContentCreation, []string{"generate post", "create caption", "write post", "generate content"}},
	{model.ActionCompetitor, []string{"competitor", "competition", "rival"}},
	{model.ActionPredictive, []string{"predict", "forecast", "what if", "scenario"}},
	{model.ActionPersona, []string{"persona", "audience segment", "who is"}},
	{model.ActionCampaign, []string{"campaign", "strategy", "plan"}},
}

// ClassifyIntent maps a message to exactly one action category.
func ClassifyIntent(message string) model.ActionCategory {
	m := strings.ToLower(message)
	for _, r := range intentRules {
		for _, p := range r.phrases {
			if strings.Contains(m, p) {
				return r.action
			}
		}
	}
	return model.ActionGeneralChat
}
