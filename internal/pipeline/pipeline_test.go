package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adforge/internal/adapter/repo"
	"adforge/internal/domain"
	"adforge/internal/domain/jsoncfg"
	"adforge/internal/events"
	"adforge/internal/infra"
	"adforge/internal/pipeline"
)

type stubGenerator struct {
	fail func(req pipeline.CreativeRequest) error
}

func (g stubGenerator) Generate(_ context.Context, req pipeline.CreativeRequest) (pipeline.Creative, error) {
	if g.fail != nil {
		if err := g.fail(req); err != nil {
			return pipeline.Creative{}, err
		}
	}
	handle := fmt.Sprintf("%s/%s/%s", req.JobID, req.Angle, req.Size)
	return pipeline.Creative{
		NodeHandle: handle,
		PreviewURL: "https://cdn.test/" + handle + "/preview.png",
		FullResURL: "https://cdn.test/" + handle + "/full.png",
	}, nil
}

type stubValidator struct {
	verdict func(req pipeline.ValidationRequest) (pipeline.Validation, error)
}

func (v stubValidator) Validate(_ context.Context, req pipeline.ValidationRequest) (pipeline.Validation, error) {
	if v.verdict == nil {
		return pipeline.Validation{Valid: true, Score: 90}, nil
	}
	return v.verdict(req)
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Submit(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, jobID)
	return nil
}

type panickingPackager struct{}

func (panickingPackager) Package(context.Context, string, []domain.Asset) (string, error) {
	panic("archive writer closed")
}

type stubPackager struct {
	err    error
	called int
}

func (p *stubPackager) Package(_ context.Context, jobID string, assets []domain.Asset) (string, error) {
	p.called++
	if p.err != nil {
		return "", p.err
	}
	return "archives/" + jobID + ".zip", nil
}

// snapshotStore records every persisted state of a job.
type snapshotStore struct {
	*repo.MemoryJobStore
	mu        sync.Mutex
	snapshots map[string][]domain.Job
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{MemoryJobStore: repo.NewMemoryJobStore(), snapshots: map[string][]domain.Job{}}
}

func (s *snapshotStore) Update(ctx context.Context, job *domain.Job) error {
	if err := s.MemoryJobStore.Update(ctx, job); err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshots[job.ID] = append(s.snapshots[job.ID], *job.Clone())
	s.mu.Unlock()
	return nil
}

func (s *snapshotStore) history(id string) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Job(nil), s.snapshots[id]...)
}

type fixture struct {
	store      *snapshotStore
	campaigns  *repo.MemoryCampaignRepository
	dispatcher *recordingDispatcher
	orch       *pipeline.Orchestrator
}

func newFixture(t *testing.T, gen pipeline.Generator, val pipeline.Validator, pkg pipeline.Packager) *fixture {
	t.Helper()
	f := &fixture{
		store: newSnapshotStore(),
		campaigns: repo.NewMemoryCampaignRepository(
			domain.Campaign{ID: "camp-1", CustomerID: "cust-1", BusinessName: "Clear View Windows", City: "Austin", Phone: "555-0100"},
			domain.Campaign{ID: "camp-2", CustomerID: "cust-2", BusinessName: "Bright Pane", City: "Denver", Phone: "555-0200"},
		),
		dispatcher: &recordingDispatcher{},
	}
	if gen == nil {
		gen = stubGenerator{}
	}
	if val == nil {
		val = stubValidator{}
	}
	orch, err := pipeline.New(pipeline.Deps{
		Jobs:       f.store,
		Campaigns:  f.campaigns,
		Generator:  gen,
		Validator:  val,
		Packager:   pkg,
		Dispatcher: f.dispatcher,
		Logger:     infra.NopLogger(),
	}, pipeline.Config{})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) startAndRun(t *testing.T, campaignID string, bi jsoncfg.BusinessIntelligence) *domain.Job {
	t.Helper()
	ctx := context.Background()
	res, err := f.orch.Start(ctx, pipeline.StartRequest{CampaignID: campaignID, CustomerID: "cust-1", BusinessIntelligence: bi})
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, res.JobID))
	job, err := f.store.Get(ctx, res.JobID)
	require.NoError(t, err)
	return job
}

func TestStartRejectsMissingIDs(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	tests := []pipeline.StartRequest{
		{CampaignID: "", CustomerID: "cust-1"},
		{CampaignID: "camp-1", CustomerID: "  "},
	}
	for _, req := range tests {
		_, err := f.orch.Start(context.Background(), req)
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	}
	_, err := f.store.GetByCampaign(context.Background(), "camp-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "rejected requests must not create jobs")
	assert.Empty(t, f.dispatcher.ids)
}

func TestStartQueuesJobWithoutRunningIt(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	res, err := f.orch.Start(context.Background(), pipeline.StartRequest{CampaignID: "camp-1", CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Len(t, res.Stages, 7)
	assert.Equal(t, []string{res.JobID}, f.dispatcher.ids)

	job, err := f.store.Get(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, domain.DefaultPriority, job.Priority)
	assert.Nil(t, job.QualityReport)
}

func TestStartMarksJobFailedWhenDispatchFails(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.dispatcher.err = errors.New("queue full")

	_, err := f.orch.Start(context.Background(), pipeline.StartRequest{CampaignID: "camp-1", CustomerID: "cust-1"})
	require.Error(t, err)

	job, err := f.store.GetByCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
}

func TestRunDeliversWhenEveryAssetPasses(t *testing.T) {
	pkg := &stubPackager{}
	f := newFixture(t, nil, nil, pkg)
	job := f.startAndRun(t, "camp-1", nil)

	assert.Equal(t, domain.JobStatusDelivered, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 12, job.PlannedAssets)
	require.Len(t, job.Assets, 12)
	require.NotNil(t, job.QualityReport)
	assert.False(t, job.QualityReport.ReviewRequired)
	assert.Equal(t, 90, job.QualityReport.OverallScore)
	assert.Empty(t, job.QualityReport.FailedChecks)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, "archives/"+job.ID+".zip", job.ArchiveKey)
	assert.Equal(t, 1, pkg.called)

	ids := map[string]bool{}
	for _, a := range job.Assets {
		assert.GreaterOrEqual(t, a.QualityScore, domain.AcceptanceScore)
		assert.Equal(t, domain.AssetStatusDelivered, a.Status)
		assert.False(t, ids[a.ID], "duplicate asset id %s", a.ID)
		ids[a.ID] = true
	}
}

func TestRunPartialFailureRequiresReview(t *testing.T) {
	gen := stubGenerator{fail: func(req pipeline.CreativeRequest) error {
		if req.Size == domain.Size4x5 || (req.Angle == "trust" && req.Size == domain.Size16x9) {
			return errors.New("renderer timeout")
		}
		return nil
	}}
	f := newFixture(t, gen, nil, nil)
	job := f.startAndRun(t, "camp-1", nil)

	assert.Equal(t, domain.JobStatusCustomerReview, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Len(t, job.Assets, 8)
	assert.Len(t, job.Failures, 4)
	require.NotNil(t, job.QualityReport)
	assert.Equal(t, 90, job.QualityReport.OverallScore)
	assert.Contains(t, job.QualityReport.FailedChecks, domain.CheckGenerationSuccessRate)
	assert.True(t, job.QualityReport.ReviewRequired)
	assert.Len(t, job.QualityReport.Recommendations, len(job.QualityReport.FailedChecks))
}

func TestRunEveryGenerationFailing(t *testing.T) {
	gen := stubGenerator{fail: func(pipeline.CreativeRequest) error { return errors.New("down") }}
	f := newFixture(t, gen, nil, &stubPackager{})
	job := f.startAndRun(t, "camp-1", nil)

	assert.Equal(t, domain.JobStatusCustomerReview, job.Status)
	assert.Empty(t, job.Assets)
	assert.Len(t, job.Failures, 12)
	require.NotNil(t, job.QualityReport)
	assert.Equal(t, 0, job.QualityReport.OverallScore)
	assert.Len(t, job.QualityReport.FailedChecks, 3)
}

func TestRunValidatorFailureKeepsAssetWithFallbackScore(t *testing.T) {
	val := stubValidator{verdict: func(req pipeline.ValidationRequest) (pipeline.Validation, error) {
		if req.Size == domain.Size16x9 {
			return pipeline.Validation{}, errors.New("validator unavailable")
		}
		return pipeline.Validation{Valid: true, Score: 95}, nil
	}}
	f := newFixture(t, nil, val, nil)
	job := f.startAndRun(t, "camp-1", nil)

	require.Len(t, job.Assets, 12)
	assert.Equal(t, domain.JobStatusCustomerReview, job.Status)
	for _, a := range job.Assets {
		if a.Size != domain.Size16x9 {
			assert.Equal(t, domain.AssetStatusReady, a.Status)
			continue
		}
		assert.Equal(t, pipeline.DefaultFallbackScore, a.QualityScore)
		assert.Equal(t, domain.AssetStatusGenerating, a.Status)
		require.Len(t, a.Issues, 1)
		assert.Contains(t, a.Issues[0], "validator unavailable")
	}
}

func TestRunMissingCampaignFails(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	job := f.startAndRun(t, "camp-unknown", nil)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.QualityReport)
	assert.True(t, strings.HasPrefix(job.Stage, "Pipeline failed:"), job.Stage)
	assert.NotNil(t, job.CompletedAt)

	view, err := f.orch.Lookup(context.Background(), job.ID, "")
	require.NoError(t, err)
	assert.False(t, view.CanDownload)
	assert.False(t, view.HasIssues)
}

func TestRunPackagingFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil, nil, &stubPackager{err: errors.New("disk full")})
	job := f.startAndRun(t, "camp-1", nil)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.QualityReport)
	assert.Contains(t, job.Stage, "disk full")
}

func TestRunProgressIsMonotonicUntilTerminal(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	job := f.startAndRun(t, "camp-1", nil)

	history := f.store.history(job.ID)
	require.NotEmpty(t, history)
	seen := map[int]bool{}
	last := 0
	for _, snap := range history {
		assert.GreaterOrEqual(t, snap.Progress, last)
		last = snap.Progress
		seen[snap.Progress] = true
		assert.Equal(t, snap.Progress == 100, domain.IsPipelineTerminal(snap.Status), "progress %d with status %s", snap.Progress, snap.Status)
		assert.Equal(t, snap.QualityReport != nil, domain.HasQualityReport(snap.Status))
	}
	for _, checkpoint := range []int{10, 20, 35, 50, 65, 80, 95, 100} {
		assert.True(t, seen[checkpoint], "checkpoint %d never persisted", checkpoint)
	}
}

func TestRunSkipsJobsThatAlreadyRan(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	job := f.startAndRun(t, "camp-1", nil)
	before := len(f.store.history(job.ID))

	require.NoError(t, f.orch.Run(context.Background(), job.ID))
	assert.Len(t, f.store.history(job.ID), before)
}

func TestRunRecoversPanickingGenerator(t *testing.T) {
	gen := stubGenerator{fail: func(req pipeline.CreativeRequest) error {
		if req.Size == domain.Size4x5 {
			var renderers map[string]int
			renderers[req.Angle]++
		}
		return nil
	}}
	f := newFixture(t, gen, nil, nil)
	job := f.startAndRun(t, "camp-1", nil)

	assert.Equal(t, domain.JobStatusCustomerReview, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Len(t, job.Assets, 9)
	require.Len(t, job.Failures, 3)
	for _, failure := range job.Failures {
		assert.Equal(t, domain.Size4x5, failure.Size)
		assert.Contains(t, failure.Error, "panic")
	}
}

func TestRunPanickingStageFailsJob(t *testing.T) {
	f := newFixture(t, nil, nil, panickingPackager{})
	job := f.startAndRun(t, "camp-1", nil)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Contains(t, job.Stage, "archive writer closed")
	assert.True(t, domain.IsPipelineTerminal(job.Status))
}

// gatedStore holds the first reads of a job until all of them have
// happened, so concurrent runners all see it queued.
type gatedStore struct {
	*snapshotStore
	pending atomic.Int32
	arrived sync.WaitGroup
}

func (s *gatedStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.snapshotStore.Get(ctx, id)
	if s.pending.Add(-1) >= 0 {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return job, err
}

func TestDuplicateRunsLeaveClaimedJobAlone(t *testing.T) {
	const runners = 2
	store := &gatedStore{snapshotStore: newSnapshotStore()}
	orch, err := pipeline.New(pipeline.Deps{
		Jobs:       store,
		Campaigns:  repo.NewMemoryCampaignRepository(domain.Campaign{ID: "camp-1", CustomerID: "cust-1", BusinessName: "Clear View Windows"}),
		Generator:  stubGenerator{},
		Validator:  stubValidator{},
		Dispatcher: &recordingDispatcher{},
		Logger:     infra.NopLogger(),
	}, pipeline.Config{})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := orch.Start(ctx, pipeline.StartRequest{CampaignID: "camp-1", CustomerID: "cust-1"})
	require.NoError(t, err)

	store.arrived.Add(runners)
	store.pending.Store(runners)
	var wg sync.WaitGroup
	for range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, orch.Run(ctx, res.JobID))
		}()
	}
	wg.Wait()

	job, err := store.snapshotStore.Get(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDelivered, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Error)
	assert.Len(t, job.Assets, 12)

	claims := 0
	for _, snap := range store.history(res.JobID) {
		assert.NotEqual(t, domain.JobStatusFailed, snap.Status)
		if snap.Progress == 10 {
			claims++
		}
	}
	assert.Equal(t, 1, claims)
}

func TestConcurrentJobsKeepAssetsApart(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	a, err := f.orch.Start(ctx, pipeline.StartRequest{CampaignID: "camp-1", CustomerID: "cust-1"})
	require.NoError(t, err)
	b, err := f.orch.Start(ctx, pipeline.StartRequest{
		CampaignID:           "camp-2",
		CustomerID:           "cust-2",
		BusinessIntelligence: jsoncfg.BusinessIntelligence{"offers_financing": true, "current_promotion": "spring sale"},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []string{a.JobID, b.JobID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.orch.Run(ctx, id))
		}()
	}
	wg.Wait()

	for _, id := range []string{a.JobID, b.JobID} {
		job, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, job.Assets, 12)
		for _, asset := range job.Assets {
			assert.True(t, strings.HasPrefix(asset.NodeHandle, id+"/"), "job %s holds foreign asset %s", id, asset.NodeHandle)
		}
	}
}

func TestCustomerApprovalFlow(t *testing.T) {
	val := stubValidator{verdict: func(req pipeline.ValidationRequest) (pipeline.Validation, error) {
		if req.Size == domain.Size4x5 {
			return pipeline.Validation{Valid: false, Issues: []string{"text too small"}, Score: 70}, nil
		}
		return pipeline.Validation{Valid: true, Score: 92}, nil
	}}
	f := newFixture(t, nil, val, nil)
	job := f.startAndRun(t, "camp-1", nil)
	require.Equal(t, domain.JobStatusCustomerReview, job.Status)
	ctx := context.Background()

	view, err := f.orch.Lookup(ctx, "", "camp-1")
	require.NoError(t, err)
	assert.True(t, view.RequiresReview)
	assert.False(t, view.CanDownload)

	_, err = f.orch.Deliver(ctx, job.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	view, err = f.orch.Approve(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusApproved, view.Status)
	assert.True(t, view.CanDownload)

	view, err = f.orch.Deliver(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDelivered, view.Status)
	assert.Equal(t, job.CompletedAt.Unix(), view.CompletedAt.Unix())
	for _, a := range view.Assets {
		if a.Size == domain.Size4x5 {
			assert.Equal(t, domain.AssetStatusGenerating, a.Status)
			continue
		}
		assert.Equal(t, domain.AssetStatusDelivered, a.Status)
	}

	_, err = f.orch.Approve(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLookup(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	job := f.startAndRun(t, "camp-1", nil)
	ctx := context.Background()

	_, err := f.orch.Lookup(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.orch.Lookup(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	view, err := f.orch.Lookup(ctx, "missing", "camp-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, view.ID)
	assert.True(t, view.CanDownload)

	first, err := f.orch.Lookup(ctx, job.ID, "")
	require.NoError(t, err)
	second, err := f.orch.Lookup(ctx, job.ID, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	pub := &recordingPublisher{}
	store := repo.NewMemoryJobStore()
	dispatcher := &recordingDispatcher{}
	orch, err := pipeline.New(pipeline.Deps{
		Jobs:       store,
		Campaigns:  repo.NewMemoryCampaignRepository(domain.Campaign{ID: "camp-1", CustomerID: "cust-1", BusinessName: "Clear View Windows"}),
		Generator:  stubGenerator{},
		Validator:  stubValidator{},
		Dispatcher: dispatcher,
		Events:     pub,
		Logger:     infra.NopLogger(),
	}, pipeline.Config{})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := orch.Start(ctx, pipeline.StartRequest{CampaignID: "camp-1", CustomerID: "cust-1"})
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, res.JobID))

	require.NotEmpty(t, pub.events)
	first, last := pub.events[0], pub.events[len(pub.events)-1]
	assert.Equal(t, string(domain.JobStatusQueued), first.Status)
	assert.Equal(t, string(domain.JobStatusDelivered), last.Status)
	assert.Equal(t, 100, last.Progress)
	for i := 1; i < len(pub.events); i++ {
		assert.Equal(t, res.JobID, pub.events[i].JobID)
		assert.Equal(t, "camp-1", pub.events[i].CampaignID)
		assert.GreaterOrEqual(t, pub.events[i].Progress, pub.events[i-1].Progress)
	}
}
