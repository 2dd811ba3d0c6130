package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"adforge/internal/domain"
)

const defaultRedisPrefix = "adforge:"

// RedisJobStore keeps each job as a JSON value. A sorted set per campaign
// indexes jobs in creation order, scored from a store-wide counter.
type RedisJobStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisJobStore creates a job store on rdb. An empty prefix uses "adforge:".
func NewRedisJobStore(rdb redis.UniversalClient, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisJobStore{rdb: rdb, prefix: prefix}
}

func (s *RedisJobStore) jobKey(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisJobStore) campaignKey(id string) string {
	return s.prefix + "campaign:" + id + ":jobs"
}

func (s *RedisJobStore) sequenceKey() string {
	return s.prefix + "jobs:seq"
}

// Create stores the job and its campaign index entry in one transaction.
func (s *RedisJobStore) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	// Counter values stay exact as float64 scores, unlike UnixNano.
	seq, err := s.rdb.Incr(ctx, s.sequenceKey()).Result()
	if err != nil {
		return fmt.Errorf("redis job sequence: %w", err)
	}

	key := s.jobKey(job.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, s.campaignKey(job.CampaignID), redis.Z{Score: float64(seq), Member: job.ID})
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: job %s created concurrently", domain.ErrConflict, job.ID)
	case errors.Is(err, domain.ErrConflict):
		return err
	default:
		return fmt.Errorf("redis create job: %w", err)
	}
}

func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	raw, err := s.rdb.Get(ctx, s.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	return decodeJob(raw)
}

// GetByCampaign returns the job created last for the campaign.
func (s *RedisJobStore) GetByCampaign(ctx context.Context, campaignID string) (*domain.Job, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.campaignKey(campaignID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis campaign index: %w", err)
	}
	if len(ids) == 0 {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, ids[0])
}

// Update writes job inside WATCH/MULTI so a concurrent writer aborts it.
func (s *RedisJobStore) Update(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is required", domain.ErrInvalidRequest)
	}
	key := s.jobKey(job.ID)
	next := job.Clone()
	next.Version = job.Version + 1
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrNotFound
			}
			return err
		}
		stored, err := decodeJob(current)
		if err != nil {
			return err
		}
		if stored.Version != job.Version {
			return fmt.Errorf("%w: job %s at version %d, got %d", domain.ErrConflict, job.ID, stored.Version, job.Version)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		job.Version = next.Version
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: job %s modified concurrently", domain.ErrConflict, job.ID)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return err
	default:
		return fmt.Errorf("redis update job: %w", err)
	}
}

func decodeJob(raw []byte) (*domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if job.Assets == nil {
		job.Assets = []domain.Asset{}
	}
	return &job, nil
}

var _ domain.JobStore = (*RedisJobStore)(nil)
