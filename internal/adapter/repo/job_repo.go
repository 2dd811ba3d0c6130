package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adforge/internal/domain"
	"adforge/internal/infra"
	"adforge/internal/sqlinline"
)

// PostgresJobStore implements domain.JobStore on the pipeline_jobs table.
// Nested job state is stored as JSONB.
type PostgresJobStore struct {
	sql infra.SQLExecutor
}

// NewPostgresJobStore creates a job store backed by PostgreSQL.
func NewPostgresJobStore(sql infra.SQLExecutor) *PostgresJobStore {
	return &PostgresJobStore{sql: sql}
}

func (r *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	if !isJobID(job.ID) {
		return fmt.Errorf("%w: job id %q is not a uuid", domain.ErrInvalidRequest, job.ID)
	}
	cols, err := encodeJobColumns(job)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertPipelineJob,
		job.ID,
		job.CampaignID,
		job.CustomerID,
		job.Priority,
		string(job.Status),
		job.Stage,
		job.Progress,
		job.PlannedAssets,
		cols.intel,
		cols.assets,
		cols.failures,
		cols.report,
		job.ArchiveKey,
		job.Error,
		job.Version,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if !isJobID(jobID) {
		return nil, domain.ErrNotFound
	}
	return r.scanOne(ctx, sqlinline.QSelectPipelineJobByID, jobID)
}

func (r *PostgresJobStore) GetByCampaign(ctx context.Context, campaignID string) (*domain.Job, error) {
	return r.scanOne(ctx, sqlinline.QSelectLatestPipelineJobByCampaign, campaignID)
}

func (r *PostgresJobStore) Update(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is required", domain.ErrInvalidRequest)
	}
	if !isJobID(job.ID) {
		return domain.ErrNotFound
	}
	cols, err := encodeJobColumns(job)
	if err != nil {
		return err
	}
	var version int
	err = r.sql.QueryRow(ctx, sqlinline.QUpdatePipelineJob,
		job.ID,
		job.Version,
		string(job.Status),
		job.Stage,
		job.Progress,
		job.PlannedAssets,
		cols.assets,
		cols.failures,
		cols.report,
		job.ArchiveKey,
		job.Error,
		job.UpdatedAt,
		job.CompletedAt,
	).Scan(&version)
	if err == nil {
		job.Version = version
		return nil
	}
	if !infra.IsNoRows(err) {
		return fmt.Errorf("update job: %w", err)
	}

	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QPipelineJobExists, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: job %s is not at version %d", domain.ErrConflict, job.ID, job.Version)
}

// isJobID reports whether id can name a row. The id column is a uuid, so
// anything else cannot exist and must not reach the cast in the query.
func isJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PostgresJobStore) scanOne(ctx context.Context, query string, arg string) (*domain.Job, error) {
	var (
		job                               domain.Job
		status                            string
		intel, assets, failures, reportJS []byte
		completedAt                       *time.Time
	)
	err := r.sql.QueryRow(ctx, query, arg).Scan(
		&job.ID,
		&job.CampaignID,
		&job.CustomerID,
		&job.Priority,
		&status,
		&job.Stage,
		&job.Progress,
		&job.PlannedAssets,
		&intel,
		&assets,
		&failures,
		&reportJS,
		&job.ArchiveKey,
		&job.Error,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	job.CompletedAt = completedAt
	if err := decodeJobColumns(&job, intel, assets, failures, reportJS); err != nil {
		return nil, err
	}
	return &job, nil
}

type jobColumns struct {
	intel    []byte
	assets   []byte
	failures []byte
	report   []byte
}

func encodeJobColumns(job *domain.Job) (jobColumns, error) {
	var cols jobColumns
	var err error
	if cols.intel, err = json.Marshal(job.BusinessIntelligence); err != nil {
		return cols, fmt.Errorf("encode business intelligence: %w", err)
	}
	if cols.assets, err = json.Marshal(job.Assets); err != nil {
		return cols, fmt.Errorf("encode assets: %w", err)
	}
	if cols.failures, err = json.Marshal(job.Failures); err != nil {
		return cols, fmt.Errorf("encode failures: %w", err)
	}
	if job.QualityReport != nil {
		if cols.report, err = json.Marshal(job.QualityReport); err != nil {
			return cols, fmt.Errorf("encode quality report: %w", err)
		}
	}
	return cols, nil
}

func decodeJobColumns(job *domain.Job, intel, assets, failures, report []byte) error {
	if len(intel) > 0 {
		if err := json.Unmarshal(intel, &job.BusinessIntelligence); err != nil {
			return fmt.Errorf("decode business intelligence: %w", err)
		}
		if len(job.BusinessIntelligence) == 0 {
			job.BusinessIntelligence = nil
		}
	}
	job.Assets = []domain.Asset{}
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &job.Assets); err != nil {
			return fmt.Errorf("decode assets: %w", err)
		}
		if job.Assets == nil {
			job.Assets = []domain.Asset{}
		}
	}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &job.Failures); err != nil {
			return fmt.Errorf("decode failures: %w", err)
		}
		if len(job.Failures) == 0 {
			job.Failures = nil
		}
	}
	if len(report) > 0 && string(report) != "null" {
		var r domain.QualityReport
		if err := json.Unmarshal(report, &r); err != nil {
			return fmt.Errorf("decode quality report: %w", err)
		}
		job.QualityReport = &r
	}
	return nil
}

// PostgresCampaignRepository reads campaign records.
type PostgresCampaignRepository struct {
	sql infra.SQLExecutor
}

func NewPostgresCampaignRepository(sql infra.SQLExecutor) *PostgresCampaignRepository {
	return &PostgresCampaignRepository{sql: sql}
}

func (r *PostgresCampaignRepository) GetByID(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.sql.QueryRow(ctx, sqlinline.QSelectCampaignByID, campaignID).Scan(
		&c.ID,
		&c.CustomerID,
		&c.BusinessName,
		&c.City,
		&c.Phone,
		&c.LogoURL,
		&c.PrimaryColor,
		&c.CustomText,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select campaign: %w", err)
	}
	return &c, nil
}

var (
	_ domain.JobStore           = (*PostgresJobStore)(nil)
	_ domain.CampaignRepository = (*PostgresCampaignRepository)(nil)
)
