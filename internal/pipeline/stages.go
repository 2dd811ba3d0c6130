package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"adforge/internal/angles"
	"adforge/internal/domain"
)

type stage struct {
	name     string
	message  string
	progress int
	status   domain.JobStatus
	// final stages apply their own checkpoint together with the terminal status.
	final bool
	run   func(r *run, ctx context.Context) error
}

var stages = []stage{
	{name: "analyze", message: "Analyzing business intelligence", progress: 10, status: domain.JobStatusProcessing, run: (*run).analyze},
	{name: "select_angles", message: "Selecting strategic angles", progress: 20, run: (*run).selectAngles},
	{name: "generate", message: "Generating creative assets", progress: 35, run: (*run).generate},
	{name: "branding", message: "Processing branding assets", progress: 50},
	{name: "quality", message: "Running quality assurance", progress: 65, status: domain.JobStatusQualityCheck, run: (*run).assess},
	{name: "finalize", message: "Finalizing asset statuses", progress: 80, run: (*run).finalize},
	{name: "package", message: "Packaging for delivery", progress: 95, run: (*run).pack},
	{name: "complete", progress: 100, final: true, run: (*run).complete},
}

// StageNames lists the display names of the working stages in order.
func StageNames() []string {
	out := make([]string, 0, len(stages))
	for _, st := range stages {
		if st.message != "" {
			out = append(out, st.message)
		}
	}
	return out
}

// run is the working state of one pipeline execution. Only the goroutine
// executing Run touches it.
type run struct {
	o        *Orchestrator
	job      *domain.Job
	campaign *domain.Campaign
	angles   []angles.StrategicAngle
	report   *domain.QualityReport
	// claimed is set once this run has persisted the queued job as its own.
	claimed bool
}

// errClaimedElsewhere reports that another runner moved the job out of the
// queue first.
var errClaimedElsewhere = errors.New("job claimed by another runner")

// Run executes every stage of the job. Jobs that already left the queue are
// skipped so a redelivered task cannot run a pipeline twice.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusQueued {
		o.logger.Warn().Str("job_id", jobID).Str("status", string(job.Status)).Msg("pipeline: job not queued, skipping")
		return nil
	}

	r := &run{o: o, job: job}
	log := o.logger.With().Str("job_id", jobID).Str("campaign_id", job.CampaignID).Logger()
	log.Info().Msg("pipeline: run started")

	for _, st := range stages {
		started := time.Now()
		sctx, span := o.tracer.Start(ctx, "pipeline."+st.name)
		span.SetAttributes(attribute.String("job.id", jobID), attribute.Int("stage.progress", st.progress))

		err := r.execute(sctx, st)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.metrics.StageCompleted(st.name, time.Since(started))

		if errors.Is(err, errClaimedElsewhere) {
			log.Warn().Msg("pipeline: job claimed by another runner, skipping")
			return nil
		}
		if err != nil {
			log.Error().Err(err).Str("stage", st.name).Msg("pipeline: stage failed")
			r.fail(ctx, err)
			return nil
		}
		log.Debug().Str("stage", st.name).Int("progress", r.job.Progress).Msg("pipeline: stage done")
	}

	log.Info().Str("status", string(r.job.Status)).Int("assets", len(r.job.Assets)).Msg("pipeline: run finished")
	o.metrics.JobFinished(r.job.Status)
	return nil
}

// execute runs one stage, turning a panic into a stage error.
func (r *run) execute(ctx context.Context, st stage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in stage %s: %v", st.name, rec)
		}
	}()
	if err := r.enter(ctx, st); err != nil {
		return err
	}
	if st.run == nil {
		return nil
	}
	return st.run(r, ctx)
}

func (r *run) enter(ctx context.Context, st stage) error {
	if st.final {
		return nil
	}
	r.job.Stage = st.message
	r.job.AdvanceProgress(st.progress)
	if st.status != "" {
		if err := r.job.Transition(st.status, r.o.now()); err != nil {
			return err
		}
	}
	return r.save(ctx)
}

func (r *run) save(ctx context.Context) error {
	r.job.UpdatedAt = r.o.now()
	if err := r.o.jobs.Update(ctx, r.job); err != nil {
		if !r.claimed && errors.Is(err, domain.ErrConflict) {
			return errClaimedElsewhere
		}
		return fmt.Errorf("persist job: %w", err)
	}
	r.claimed = true
	r.o.publish(ctx, r.job)
	return nil
}

func (r *run) analyze(ctx context.Context) error {
	campaign, err := r.o.campaigns.GetByID(ctx, r.job.CampaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("campaign %s not found: %w", r.job.CampaignID, err)
		}
		return fmt.Errorf("resolve campaign: %w", err)
	}
	r.campaign = campaign
	return nil
}

func (r *run) selectAngles(context.Context) error {
	r.angles = angles.Select(r.job.BusinessIntelligence, r.o.cfg.AngleCount)
	r.o.logger.Debug().Str("job_id", r.job.ID).Strs("angles", angles.IDs(r.angles)).Msg("pipeline: angles selected")
	return nil
}

func (r *run) assess(context.Context) error {
	report := ComputeQualityReport(r.job.Assets, r.job.PlannedAssets)
	r.report = &report
	return nil
}

func (r *run) finalize(ctx context.Context) error {
	for i := range r.job.Assets {
		if r.job.Assets[i].QualityScore >= domain.AcceptanceScore {
			r.job.Assets[i].Promote(domain.AssetStatusReady)
		}
	}
	return r.save(ctx)
}

func (r *run) pack(ctx context.Context) error {
	if r.o.packager == nil || len(r.job.Assets) == 0 {
		return nil
	}
	key, err := r.o.packager.Package(ctx, r.job.ID, r.job.Assets)
	if err != nil {
		return fmt.Errorf("package assets: %w", err)
	}
	r.job.ArchiveKey = key
	return r.save(ctx)
}

func (r *run) complete(ctx context.Context) error {
	if r.report == nil {
		return errors.New("quality report missing")
	}
	to := domain.JobStatusDelivered
	r.job.Stage = "Delivered"
	if NeedsReview(*r.report, r.job.Assets) {
		to = domain.JobStatusCustomerReview
		r.job.Stage = "Awaiting customer review"
	} else {
		for i := range r.job.Assets {
			r.job.Assets[i].Promote(domain.AssetStatusDelivered)
		}
	}
	if err := r.job.Transition(to, r.o.now()); err != nil {
		return err
	}
	r.job.QualityReport = r.report
	r.job.AdvanceProgress(100)
	return r.save(ctx)
}

// fail moves the job to failed. The stored copy is reloaded first because
// the working copy may hold changes that were never persisted. A job this
// run never claimed is only failed while it is still queued.
func (r *run) fail(ctx context.Context, cause error) {
	ctx = context.WithoutCancel(ctx)
	job := r.job
	fresh, err := r.o.jobs.Get(ctx, r.job.ID)
	switch {
	case err == nil:
		job = fresh
	case !r.claimed:
		r.o.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: cannot reload unclaimed job")
		return
	}
	if !r.claimed && job.Status != domain.JobStatusQueued {
		r.o.logger.Warn().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pipeline: job owned by another runner, not failing it")
		return
	}
	if err := job.Transition(domain.JobStatusFailed, r.o.now()); err != nil {
		r.o.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: cannot mark job failed")
		return
	}
	job.Stage = fmt.Sprintf("Pipeline failed: %v", cause)
	job.Error = cause.Error()
	job.Progress = 0
	job.QualityReport = nil
	r.job = job
	if err := r.save(ctx); err != nil {
		r.o.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: persist failure")
	}
	r.o.metrics.JobFinished(domain.JobStatusFailed)
}
