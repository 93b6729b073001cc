package usecase

import (
	"testing"

	"market-genome/internal/domain/model"
)

func TestClassifyIntent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		msg  string
		want model.ActionCategory
	}{
		{"Can you generate an image of our product?", model.ActionImageGeneration},
		{"PICTURE OF a sunset with our logo", model.ActionImageGeneration},
		{"please generate report and email to a@b.com", model.ActionReportRequest},
		{"Write post for the launch", model.ActionContentCreation},
		{"who are our rivals?", model.ActionCompetitor},
		{"forecast next quarter", model.ActionPredictive},
		{"describe a persona for us", model.ActionPersona},
		{"plan a summer push", model.ActionCampaign},
		{"hello there", model.ActionGeneralChat},
		{"", model.ActionGeneralChat},
	}
	for _, tc := range cases {
		if got := ClassifyIntent(tc.msg); got != tc.want {
			t.Errorf("ClassifyIntent(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}

func TestClassifyIntent_Precedence(t *testing.T) {
	t.Parallel()
	cases := []struct {
		msg  string
		want model.ActionCategory
	}{
		// image beats report
		{"generate image and send report", model.ActionImageGeneration},
		// report beats content and campaign
		{"generate report on our campaign strategy", model.ActionReportRequest},
		// content beats competitor
		{"generate post about our competitor", model.ActionContentCreation},
		// competitor beats predictive and campaign
		{"predict what the competition will plan", model.ActionCompetitor},
		// predictive beats persona
		{"forecast which persona grows", model.ActionPredictive},
		// persona beats campaign
		{"who is the audience for this campaign", model.ActionPersona},
	}
	for _, tc := range cases {
		if got := ClassifyIntent(tc.msg); got != tc.want {
			t.Errorf("ClassifyIntent(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}
