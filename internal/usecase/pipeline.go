// File: internal/usecase/pipeline.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
)

const (
	StageCollect         = "collect"
	StageBrandDNA        = "brand_dna"
	StageCompetitors     = "competitors"
	StageGrowthRoadmap   = "growth_roadmap"
	StageContentStrategy = "content_strategy"
	StageRender          = "render"
	StageDeliver         = "deliver"
)

const (
	LabelCollect   = "Collecting brand data from multiple sources..."
	LabelCompleted = "Marketing Genome Report generated successfully!"
)

// Stage is one step of the genome pipeline. The value returned by Run is
// stored as the stage result.
type Stage struct {
	Name  string
	Label string
	Run   func(ctx context.Context, st *PipelineState) (any, error)
}

// PipelineState carries outputs from earlier stages to later ones.
type PipelineState struct {
	JobID string
	Input model.BrandInput

	BrandData       *model.BrandData
	BrandDNA        model.Analysis
	Competitors     model.Analysis
	GrowthRoadmap   model.Analysis
	ContentStrategy model.Analysis

	Artifact  *model.Artifact
	Delivered bool
}

func (st *PipelineState) report() model.Report {
	r := model.Report{
		JobID:           st.JobID,
		Brand:           st.Input.Brand,
		BrandDNA:        st.BrandDNA,
		Competitors:     st.Competitors,
		GrowthRoadmap:   st.GrowthRoadmap,
		ContentStrategy: st.ContentStrategy,
	}
	if st.BrandData != nil {
		r.BrandData = *st.BrandData
	}
	return r
}

type PipelineDeps struct {
	Collector adapter.BrandCollector
	Analyzer  *Analyzer
	Renderer  adapter.ReportRenderer
	Notifier  adapter.Notifier
	Logger    *zerolog.Logger
}

// DefaultStages builds the seven production stages in execution order.
func DefaultStages(d PipelineDeps) []Stage {
	log := d.Logger
	return []Stage{
		{
			Name:  StageCollect,
			Label: LabelCollect,
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				data, err := d.Collector.Collect(ctx, st.Input.Brand, st.Input.InputType)
				if err != nil {
					// partial data is still analyzed
					l := logging.With(ctx, log)
					l.Warn().Err(err).Str("brand", st.Input.Brand).Msg("brand collection degraded")
					if data == nil {
						data = &model.BrandData{Brand: st.Input.Brand, InputType: st.Input.InputType, Error: err.Error()}
					}
				}
				st.BrandData = data
				return data, nil
			},
		},
		{
			Name:  StageBrandDNA,
			Label: "Analyzing brand personality and positioning...",
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				dna, err := d.Analyzer.BrandDNA(ctx, st.BrandData)
				if err != nil {
					return nil, err
				}
				st.BrandDNA = dna
				return dna, nil
			},
		},
		{
			Name:  StageCompetitors,
			Label: "Analyzing competitor landscape...",
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				comp, err := d.Analyzer.Competitors(ctx, st.BrandData, st.BrandDNA)
				if err != nil {
					return nil, err
				}
				st.Competitors = comp
				return comp, nil
			},
		},
		{
			Name:  StageGrowthRoadmap,
			Label: "Generating growth strategy...",
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				rm, err := d.Analyzer.GrowthRoadmap(ctx, st.BrandDNA, st.Competitors)
				if err != nil {
					return nil, err
				}
				st.GrowthRoadmap = rm
				return rm, nil
			},
		},
		{
			Name:  StageContentStrategy,
			Label: "Creating content strategy...",
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				cs, err := d.Analyzer.ContentStrategy(ctx, st.BrandDNA)
				if err != nil {
					return nil, err
				}
				st.ContentStrategy = cs
				return cs, nil
			},
		},
		{
			Name:  StageRender,
			Label: "Creating Marketing Genome Report...",
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				art, err := d.Renderer.Render(ctx, st.report())
				if err != nil {
					if !errors.Is(err, domain.ErrRender) {
						err = fmt.Errorf("%w: %v", domain.ErrRender, err)
					}
					return nil, err
				}
				st.Artifact = &art
				return art, nil
			},
		},
		{
			Name:  StageDeliver,
			Label: "Sending Marketing Genome Report...",
			Run: func(ctx context.Context, st *PipelineState) (any, error) {
				if st.Artifact == nil {
					return nil, fmt.Errorf("%w: no report to deliver", domain.ErrRender)
				}
				err := d.Notifier.DeliverReport(ctx, st.Input.DeliveryEmail, st.Input.Brand, *st.Artifact)
				if err != nil {
					l := logging.With(ctx, log)
					l.Warn().Err(err).
						Str("to", logging.RedactEmail(st.Input.DeliveryEmail)).
						Msg("report delivery failed")
				}
				st.Delivered = err == nil
				return map[string]bool{"email_sent": st.Delivered}, nil
			},
		},
	}
}
