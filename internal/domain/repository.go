package domain

import "context"

// JobStore persists pipeline jobs. Implementations return copies; callers
// must write changes back through Update.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	// GetByCampaign returns the most recently created job for the campaign.
	GetByCampaign(ctx context.Context, campaignID string) (*Job, error)
	// Update persists job when its Version matches the stored one and bumps
	// job.Version on success. A stale version yields ErrConflict.
	Update(ctx context.Context, job *Job) error
}

// CampaignRepository resolves campaign business records.
type CampaignRepository interface {
	GetByID(ctx context.Context, campaignID string) (*Campaign, error)
}
