// Package pipeline turns a campaign's business intelligence into a validated
// set of sized ad creatives. Jobs run asynchronously through a fixed list of
// stages and clients observe them by polling the job store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"adforge/internal/domain"
	"adforge/internal/domain/jsoncfg"
	"adforge/internal/events"
	"adforge/internal/infra"
)

// Config tunes the pipeline. Zero values fall back to defaults.
type Config struct {
	AngleCount    int
	Sizes         []domain.SizeClass
	Concurrency   int
	FallbackScore int
}

const (
	DefaultAngleCount    = 3
	DefaultConcurrency   = 4
	DefaultFallbackScore = 40
)

func (c Config) withDefaults() Config {
	if c.AngleCount <= 0 {
		c.AngleCount = DefaultAngleCount
	}
	if len(c.Sizes) == 0 {
		c.Sizes = append([]domain.SizeClass(nil), domain.DefaultSizes...)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.FallbackScore <= 0 || c.FallbackScore >= domain.AcceptanceScore {
		c.FallbackScore = DefaultFallbackScore
	}
	return c
}

// Deps bundles the collaborators of an Orchestrator. Packager, Events and
// Metrics are optional.
type Deps struct {
	Jobs       domain.JobStore
	Campaigns  domain.CampaignRepository
	Generator  Generator
	Validator  Validator
	Packager   Packager
	Dispatcher Dispatcher
	Events     events.Publisher
	Metrics    Recorder
	Logger     infra.Logger
}

// Orchestrator owns job lifecycle: creation, staged execution and the
// post-pipeline customer actions.
type Orchestrator struct {
	jobs       domain.JobStore
	campaigns  domain.CampaignRepository
	generator  Generator
	validator  Validator
	packager   Packager
	dispatcher Dispatcher
	events     events.Publisher
	metrics    Recorder
	logger     infra.Logger
	tracer     trace.Tracer
	cfg        Config
	now        func() time.Time
}

// New wires an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Jobs == nil:
		return nil, errors.New("pipeline: job store is required")
	case deps.Campaigns == nil:
		return nil, errors.New("pipeline: campaign repository is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: creative generator is required")
	case deps.Validator == nil:
		return nil, errors.New("pipeline: quality validator is required")
	}
	o := &Orchestrator{
		jobs:       deps.Jobs,
		campaigns:  deps.Campaigns,
		generator:  deps.Generator,
		validator:  deps.Validator,
		packager:   deps.Packager,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		tracer:     otel.Tracer("adforge/pipeline"),
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.metrics == nil {
		o.metrics = nopRecorder{}
	}
	return o, nil
}

// SetDispatcher attaches the dispatcher when it can only be built after the
// orchestrator, as with an in-process pool that runs Orchestrator.Run.
func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.dispatcher = d
}

// StartRequest is the input of Start.
type StartRequest struct {
	CampaignID           string
	CustomerID           string
	BusinessIntelligence jsoncfg.BusinessIntelligence
	Priority             string
}

// StartResult is returned as soon as the job is queued.
type StartResult struct {
	JobID  string
	Stages []string
}

// Start creates a queued job and hands it to the dispatcher. It never waits
// for stage execution.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	campaignID := strings.TrimSpace(req.CampaignID)
	customerID := strings.TrimSpace(req.CustomerID)
	if campaignID == "" || customerID == "" {
		return StartResult{}, fmt.Errorf("%w: campaignId and customerId are required", domain.ErrInvalidRequest)
	}
	if o.dispatcher == nil {
		return StartResult{}, errors.New("pipeline: no dispatcher configured")
	}
	priority := strings.ToLower(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = domain.DefaultPriority
	}

	now := o.now()
	job := &domain.Job{
		ID:                   uuid.NewString(),
		CampaignID:           campaignID,
		CustomerID:           customerID,
		Priority:             priority,
		BusinessIntelligence: req.BusinessIntelligence.Normalize(),
		Status:               domain.JobStatusQueued,
		Stage:                "Queued",
		Progress:             0,
		Assets:               []domain.Asset{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return StartResult{}, fmt.Errorf("create job: %w", err)
	}
	o.metrics.JobStarted()
	o.publish(ctx, job)

	if err := o.dispatcher.Submit(ctx, job.ID); err != nil {
		r := &run{o: o, job: job}
		r.fail(ctx, fmt.Errorf("dispatch: %w", err))
		return StartResult{}, fmt.Errorf("dispatch job: %w", err)
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("campaign_id", campaignID).
		Str("priority", priority).
		Msg("pipeline: job queued")

	return StartResult{JobID: job.ID, Stages: StageNames()}, nil
}

// Lookup resolves a job by id, falling back to the campaign's latest job.
func (o *Orchestrator) Lookup(ctx context.Context, jobID, campaignID string) (JobView, error) {
	jobID = strings.TrimSpace(jobID)
	campaignID = strings.TrimSpace(campaignID)
	if jobID == "" && campaignID == "" {
		return JobView{}, fmt.Errorf("%w: jobId or campaignId is required", domain.ErrInvalidRequest)
	}
	if jobID != "" {
		job, err := o.jobs.Get(ctx, jobID)
		if err == nil {
			return NewJobView(job), nil
		}
		if !errors.Is(err, domain.ErrNotFound) || campaignID == "" {
			return JobView{}, err
		}
	}
	job, err := o.jobs.GetByCampaign(ctx, campaignID)
	if err != nil {
		return JobView{}, err
	}
	return NewJobView(job), nil
}

// Approve records the customer's approval of a job awaiting review.
func (o *Orchestrator) Approve(ctx context.Context, jobID string) (JobView, error) {
	return o.customerAction(ctx, jobID, domain.JobStatusApproved, domain.AssetStatusApproved, "Approved by customer")
}

// Deliver marks an approved job as delivered.
func (o *Orchestrator) Deliver(ctx context.Context, jobID string) (JobView, error) {
	return o.customerAction(ctx, jobID, domain.JobStatusDelivered, domain.AssetStatusDelivered, "Delivered")
}

func (o *Orchestrator) customerAction(ctx context.Context, jobID string, to domain.JobStatus, assetStatus domain.AssetStatus, stage string) (JobView, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return JobView{}, err
	}
	if err := job.Transition(to, o.now()); err != nil {
		return JobView{}, err
	}
	for i := range job.Assets {
		if job.Assets[i].Status == domain.AssetStatusGenerating {
			continue
		}
		job.Assets[i].Promote(assetStatus)
	}
	job.Stage = stage
	job.UpdatedAt = o.now()
	if err := o.jobs.Update(ctx, job); err != nil {
		return JobView{}, err
	}
	o.publish(ctx, job)
	o.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pipeline: customer action applied")
	return NewJobView(job), nil
}

func (o *Orchestrator) publish(ctx context.Context, job *domain.Job) {
	ev := events.JobEvent{
		JobID:      job.ID,
		CampaignID: job.CampaignID,
		Status:     string(job.Status),
		Stage:      job.Stage,
		Progress:   job.Progress,
		At:         job.UpdatedAt,
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: publish event failed")
	}
}
