package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"adforge/internal/domain"
)

// MemoryJobStore keeps jobs in process memory. Jobs are copied on every
// read and write so callers never alias stored state.
type MemoryJobStore struct {
	mu         sync.RWMutex
	jobs       map[string]*domain.Job
	byCampaign map[string][]string
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:       make(map[string]*domain.Job),
		byCampaign: make(map[string][]string),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job *domain.Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.byCampaign[job.CampaignID] = append(s.byCampaign[job.CampaignID], job.ID)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// GetByCampaign returns the job created last for the campaign.
func (s *MemoryJobStore) GetByCampaign(_ context.Context, campaignID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCampaign[campaignID]
	if len(ids) == 0 {
		return nil, domain.ErrNotFound
	}
	return s.jobs[ids[len(ids)-1]].Clone(), nil
}

func (s *MemoryJobStore) Update(_ context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != job.Version {
		return fmt.Errorf("%w: job %s at version %d, got %d", domain.ErrConflict, job.ID, current.Version, job.Version)
	}
	job.Version++
	s.jobs[job.ID] = job.Clone()
	return nil
}

// MemoryCampaignRepository serves campaigns registered with Put.
type MemoryCampaignRepository struct {
	mu        sync.RWMutex
	campaigns map[string]domain.Campaign
}

func NewMemoryCampaignRepository(campaigns ...domain.Campaign) *MemoryCampaignRepository {
	r := &MemoryCampaignRepository{campaigns: make(map[string]domain.Campaign, len(campaigns))}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

// LoadCampaignsFile reads a JSON array of campaigns, as used to seed a
// MemoryCampaignRepository when no database is configured.
func LoadCampaignsFile(path string) ([]domain.Campaign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaigns: %w", err)
	}
	var campaigns []domain.Campaign
	if err := json.Unmarshal(raw, &campaigns); err != nil {
		return nil, fmt.Errorf("decode campaigns %s: %w", path, err)
	}
	for i, c := range campaigns {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("campaign %d in %s has no id", i, path)
		}
	}
	return campaigns, nil
}

func (r *MemoryCampaignRepository) Put(c domain.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
}

func (r *MemoryCampaignRepository) GetByID(_ context.Context, campaignID string) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

var (
	_ domain.JobStore           = (*MemoryJobStore)(nil)
	_ domain.CampaignRepository = (*MemoryCampaignRepository)(nil)
)
