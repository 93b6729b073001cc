package model

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"market-genome/internal/domain"

	"github.com/oklog/ulid/v2"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// InputType tells the collector how to interpret BrandInput.Brand.
type InputType string

const (
	InputAuto    InputType = "auto"
	InputWebsite InputType = "website"
	InputSocial  InputType = "social"
	InputBrand   InputType = "brand_name"
)

type BrandInput struct {
	Brand         string    `json:"brand_input" validate:"required,min=3,max=200"`
	InputType     InputType `json:"input_type" validate:"omitempty,oneof=auto website social brand_name"`
	DeliveryEmail string    `json:"email" validate:"required,email"`
	ChatSessionID string    `json:"chat_session_id,omitempty"`
}

// GenomeJob is one run of the analysis pipeline. Status moves
// pending -> processing -> completed|failed and never leaves a terminal state.
type GenomeJob struct {
	ID                string                     `json:"job_id"`
	Status            JobStatus                  `json:"status"`
	StageLabel        string                     `json:"message"`
	CurrentStage      string                     `json:"current_stage,omitempty"`
	Input             BrandInput                 `json:"input"`
	StageResults      map[string]json.RawMessage `json:"stage_results"`
	StageOrder        []string                   `json:"stages_completed"`
	Artifact          *Artifact                  `json:"artifact,omitempty"`
	FailureReason     string                     `json:"failure_reason,omitempty"`
	DeliverySucceeded bool                       `json:"email_sent"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	CompletedAt       *time.Time                 `json:"completed_at,omitempty"`
}

func NewJobID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func NewGenomeJob(in BrandInput, initialLabel string) *GenomeJob {
	now := time.Now().UTC()
	return &GenomeJob{
		ID:           NewJobID(),
		Status:       JobStatusPending,
		StageLabel:   initialLabel,
		Input:        in,
		StageResults: make(map[string]json.RawMessage),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (j *GenomeJob) Start() error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, JobStatusProcessing)
	}
	j.Status = JobStatusProcessing
	j.touch()
	return nil
}

// Advance marks the stage about to run.
func (j *GenomeJob) Advance(stage, label string) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: advance in %s", domain.ErrInvalidTransition, j.Status)
	}
	j.CurrentStage = stage
	j.StageLabel = label
	j.touch()
	return nil
}

// RecordStage stores a stage result. Results are kept even if the job later fails.
func (j *GenomeJob) RecordStage(stage string, result json.RawMessage) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: record %s in %s", domain.ErrInvalidTransition, stage, j.Status)
	}
	if _, ok := j.StageResults[stage]; !ok {
		j.StageOrder = append(j.StageOrder, stage)
	}
	j.StageResults[stage] = result
	j.touch()
	return nil
}

func (j *GenomeJob) SetArtifact(a Artifact) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: artifact in %s", domain.ErrInvalidTransition, j.Status)
	}
	j.Artifact = &a
	j.touch()
	return nil
}

func (j *GenomeJob) Complete(delivered bool, label string) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	if j.Artifact == nil {
		return fmt.Errorf("%w: completed without artifact", domain.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.DeliverySucceeded = delivered
	j.StageLabel = label
	j.CurrentStage = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (j *GenomeJob) Fail(reason string) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, JobStatusFailed)
	}
	if reason == "" {
		reason = "unknown error"
	}
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.FailureReason = reason
	j.StageLabel = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (j *GenomeJob) Clone() *GenomeJob {
	if j == nil {
		return nil
	}
	c := *j
	c.StageResults = maps.Clone(j.StageResults)
	if c.StageResults == nil {
		c.StageResults = make(map[string]json.RawMessage)
	}
	c.StageOrder = append([]string(nil), j.StageOrder...)
	if j.Artifact != nil {
		a := *j.Artifact
		c.Artifact = &a
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// StageResult decodes one stage result into v.
func (j *GenomeJob) StageResult(stage string, v any) (bool, error) {
	raw, ok := j.StageResults[stage]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s result: %w", stage, err)
	}
	return true, nil
}

func (j *GenomeJob) touch() { j.UpdatedAt = time.Now().UTC() }
