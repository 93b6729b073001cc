// File: internal/usecase/genome_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/domain/ports/repository"
	"market-genome/internal/infra/logging"
	"market-genome/internal/infra/metrics"
)

// Compile-time check
var _ GenomeUseCase = (*genomeUC)(nil)

type GenomeUseCase interface {
	// Submit validates the input, records a pending job and schedules its run.
	Submit(ctx context.Context, in model.BrandInput) (*model.GenomeJob, error)
	Status(ctx context.Context, jobID string) (*model.GenomeJob, error)
	List(ctx context.Context, limit int) ([]*model.GenomeJob, error)
	LatestCompletedForBrand(ctx context.Context, brand string) (*model.GenomeJob, error)
	// Report returns the rendered report of a completed job.
	Report(ctx context.Context, jobID string) (model.Artifact, []byte, error)
}

// JobRunner runs tasks in the background. *worker.Pool satisfies it.
type JobRunner interface {
	Submit(task func(ctx context.Context) error) error
}

type GenomeOptions struct {
	StageTimeout  time.Duration
	NotifyTimeout time.Duration
}

type genomeUC struct {
	jobs     repository.GenomeJobRepository
	runner   JobRunner
	stages   []Stage
	notifier adapter.Notifier
	store    adapter.ArtifactStore
	validate *validator.Validate
	opts     GenomeOptions
	log      *zerolog.Logger
}

func NewGenomeUseCase(
	jobs repository.GenomeJobRepository,
	runner JobRunner,
	stages []Stage,
	notifier adapter.Notifier,
	store adapter.ArtifactStore,
	opts GenomeOptions,
	logger *zerolog.Logger,
) *genomeUC {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 3 * time.Minute
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	return &genomeUC{
		jobs:     jobs,
		runner:   runner,
		stages:   stages,
		notifier: notifier,
		store:    store,
		validate: newValidator(),
		opts:     opts,
		log:      logger,
	}
}

func (g *genomeUC) Submit(ctx context.Context, in model.BrandInput) (*model.GenomeJob, error) {
	defer logging.TraceDuration(g.log, "GenomeUC.Submit")()

	in.Brand = strings.TrimSpace(in.Brand)
	in.DeliveryEmail = strings.TrimSpace(in.DeliveryEmail)
	if in.InputType == "" {
		in.InputType = model.InputAuto
	}
	if err := g.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if len(g.stages) == 0 {
		return nil, fmt.Errorf("%w: no pipeline stages configured", domain.ErrInvalidArgument)
	}

	job := model.NewGenomeJob(in, g.stages[0].Label)
	if err := g.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	snapshot := job.Clone()

	if err := g.runner.Submit(func(ctx context.Context) error { return g.run(ctx, job) }); err != nil {
		if derr := g.jobs.Delete(context.WithoutCancel(ctx), job.ID); derr != nil {
			l := logging.With(logging.WithJobID(ctx, job.ID), g.log)
			l.Error().Err(derr).Msg("failed to remove rejected job")
		}
		metrics.IncQueueRejected("genome")
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueFull, err)
	}

	l := logging.With(logging.WithJobID(ctx, job.ID), g.log)
	l.Info().Str("brand", in.Brand).Str("input_type", string(in.InputType)).Msg("genome job submitted")
	return snapshot, nil
}

func (g *genomeUC) Status(ctx context.Context, jobID string) (*model.GenomeJob, error) {
	return g.jobs.FindByID(ctx, jobID)
}

func (g *genomeUC) List(ctx context.Context, limit int) ([]*model.GenomeJob, error) {
	return g.jobs.List(ctx, limit)
}

func (g *genomeUC) LatestCompletedForBrand(ctx context.Context, brand string) (*model.GenomeJob, error) {
	job, err := g.jobs.FindLatestCompletedByBrand(ctx, strings.TrimSpace(brand))
	if err != nil {
		metrics.IncCacheRequest("brand_context", metrics.LookupMiss)
		return nil, err
	}
	metrics.IncCacheRequest("brand_context", metrics.LookupHit)
	return job, nil
}

func (g *genomeUC) Report(ctx context.Context, jobID string) (model.Artifact, []byte, error) {
	job, err := g.jobs.FindByID(ctx, jobID)
	if err != nil {
		return model.Artifact{}, nil, err
	}
	if job.Status != model.JobStatusCompleted || job.Artifact == nil {
		return model.Artifact{}, nil, fmt.Errorf("%w: report for job %s is not ready", domain.ErrNotFound, jobID)
	}
	body, contentType, err := g.store.Get(ctx, job.Artifact.Key)
	if err != nil {
		return model.Artifact{}, nil, err
	}
	art := *job.Artifact
	if contentType != "" {
		art.ContentType = contentType
	}
	return art, body, nil
}

// run drives one job through every stage. The job pointer is owned by this
// goroutine; readers only ever see saved clones.
func (g *genomeUC) run(ctx context.Context, job *model.GenomeJob) error {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, g.log)

	if err := job.Start(); err != nil {
		return err
	}
	g.save(ctx, job)
	metrics.GenomeJobStarted()
	defer metrics.GenomeJobFinished()
	log.Info().Str("brand", job.Input.Brand).Msg("genome job processing")

	st := &PipelineState{JobID: job.ID, Input: job.Input}
	for _, stage := range g.stages {
		if err := ctx.Err(); err != nil {
			return g.fail(ctx, job, stage.Name, err)
		}
		if err := job.Advance(stage.Name, stage.Label); err != nil {
			return err
		}
		g.save(ctx, job)

		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, g.opts.StageTimeout)
		res, err := stage.Run(sctx, st)
		cancel()
		metrics.ObserveStage(stage.Name, time.Since(start), err == nil)
		if err != nil {
			return g.fail(ctx, job, stage.Name, err)
		}

		raw, err := json.Marshal(res)
		if err != nil {
			return g.fail(ctx, job, stage.Name, fmt.Errorf("encode result: %w", err))
		}
		if err := job.RecordStage(stage.Name, raw); err != nil {
			return err
		}
		if st.Artifact != nil && job.Artifact == nil {
			if err := job.SetArtifact(*st.Artifact); err != nil {
				return err
			}
		}
		g.save(ctx, job)
		log.Debug().Str("stage", stage.Name).Dur("duration", time.Since(start)).Msg("stage completed")
	}

	if err := job.Complete(st.Delivered, LabelCompleted); err != nil {
		return g.fail(ctx, job, "complete", err)
	}
	g.save(ctx, job)
	metrics.IncGenomeJob(string(model.JobStatusCompleted))
	metrics.IncDelivery(st.Delivered)
	log.Info().Bool("email_sent", st.Delivered).Msg("genome job completed")
	return nil
}

// ReasonRestarting is the failure reason of jobs cut off by shutdown.
const ReasonRestarting = "Service restarting; please submit the analysis again."

func (g *genomeUC) fail(ctx context.Context, job *model.GenomeJob, stage string, cause error) error {
	log := logging.With(ctx, g.log)
	// Only shutdown ends the run context; stage timeouts end the stage's own.
	interrupted := ctx.Err() != nil
	reason := "Error generating genome: " + cause.Error()
	if interrupted {
		reason = ReasonRestarting
	}
	if err := job.Fail(reason); err != nil {
		return err
	}
	g.save(ctx, job)
	metrics.IncGenomeJob(string(model.JobStatusFailed))
	if interrupted {
		log.Warn().Err(cause).Str("stage", stage).Msg("genome job interrupted by shutdown")
		return fmt.Errorf("stage %s: %w", stage, cause)
	}
	log.Error().Err(cause).Str("stage", stage).Msg("genome job failed")

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.NotifyTimeout)
	defer cancel()
	if err := g.notifier.NotifyFailure(nctx, job.Input.DeliveryEmail, job.Input.Brand, reason); err != nil {
		log.Warn().Err(err).Msg("failure notification not delivered")
	}
	return fmt.Errorf("stage %s: %w", stage, cause)
}

func (g *genomeUC) save(ctx context.Context, job *model.GenomeJob) {
	if err := g.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		l := logging.With(ctx, g.log)
		l.Error().Err(err).Str("status", string(job.Status)).Msg("failed to persist job snapshot")
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validationError turns validator output into a domain.ValidationError
// naming each rejected field by its json name.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	fields := make([]string, 0, len(verrs))
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "email":
			parts = append(parts, fe.Field()+" must be a valid email address")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return &domain.ValidationError{Fields: fields, Reason: strings.Join(parts, "; ")}
}
