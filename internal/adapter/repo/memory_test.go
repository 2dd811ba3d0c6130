package repo

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adforge/internal/domain"
)

func newJob(id, campaign string, created time.Time) *domain.Job {
	return &domain.Job{
		ID:         id,
		CampaignID: campaign,
		CustomerID: "cust-1",
		Priority:   domain.DefaultPriority,
		Status:     domain.JobStatusQueued,
		Stage:      "Queued",
		Assets:     []domain.Asset{},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestMemoryJobStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, newJob("job-1", "camp-1", now)))
	err := store.Create(ctx, newJob("job-1", "camp-1", now))
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryJobStoreReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	require.NoError(t, store.Create(ctx, newJob("job-1", "camp-1", time.Now())))

	first, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	first.Stage = "mutated"
	first.Assets = append(first.Assets, domain.Asset{ID: "x"})

	second, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Queued", second.Stage)
	assert.Empty(t, second.Assets)

	third, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestMemoryJobStoreGetByCampaignReturnsLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	base := time.Now()
	require.NoError(t, store.Create(ctx, newJob("job-old", "camp-1", base)))
	require.NoError(t, store.Create(ctx, newJob("job-other", "camp-2", base.Add(time.Second))))
	require.NoError(t, store.Create(ctx, newJob("job-new", "camp-1", base.Add(2*time.Second))))

	got, err := store.GetByCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "job-new", got.ID)

	_, err = store.GetByCampaign(ctx, "camp-3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryJobStoreUpdateIsOptimistic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	require.NoError(t, store.Create(ctx, newJob("job-1", "camp-1", time.Now())))

	a, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	b, err := store.Get(ctx, "job-1")
	require.NoError(t, err)

	a.Progress = 10
	require.NoError(t, store.Update(ctx, a))
	assert.Equal(t, 1, a.Version)

	b.Progress = 20
	assert.ErrorIs(t, store.Update(ctx, b), domain.ErrConflict)

	missing := newJob("nope", "camp-1", time.Now())
	assert.ErrorIs(t, store.Update(ctx, missing), domain.ErrNotFound)
}

func TestMemoryJobStoreConcurrentJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, store.Create(ctx, newJob(id, "camp-"+id, time.Now())))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				job, err := store.Get(ctx, id)
				if err != nil {
					t.Errorf("get %s: %v", id, err)
					return
				}
				job.Assets = append(job.Assets, domain.Asset{ID: id})
				if err := store.Update(ctx, job); err != nil {
					t.Errorf("update %s: %v", id, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, job.Assets, 20)
		for _, a := range job.Assets {
			assert.Equal(t, id, a.ID)
		}
	}
}

func TestMemoryCampaignRepository(t *testing.T) {
	repo := NewMemoryCampaignRepository(domain.Campaign{ID: "camp-1", BusinessName: "Clear View"})
	got, err := repo.GetByID(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "Clear View", got.BusinessName)

	_, err = repo.GetByID(context.Background(), "camp-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadCampaignsFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "campaigns.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"id":"camp-1","customerId":"cust-1","businessName":"Clear View Windows","city":"Austin","phone":"555-0100","primaryColor":"#1e88e5"}
	]`), 0o644))

	campaigns, err := LoadCampaignsFile(good)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Clear View Windows", campaigns[0].BusinessName)
	assert.Equal(t, "#1e88e5", campaigns[0].PrimaryColor)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"businessName":"no id"}]`), 0o644))
	_, err = LoadCampaignsFile(bad)
	assert.Error(t, err)

	_, err = LoadCampaignsFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
