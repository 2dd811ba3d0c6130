package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"adforge/internal/domain"
)

func assetsWith(sizes []domain.SizeClass, scores ...int) []domain.Asset {
	out := make([]domain.Asset, len(scores))
	for i, s := range scores {
		size := domain.Size16x9
		if i < len(sizes) {
			size = sizes[i]
		}
		out[i] = domain.Asset{ID: domain.AssetID("trust", size), Size: size, QualityScore: s}
	}
	return out
}

func TestComputeQualityReport(t *testing.T) {
	tests := []struct {
		name       string
		assets     []domain.Asset
		planned    int
		wantScore  int
		wantFailed []string
		wantReview bool
	}{
		{
			name:       "mean is rounded",
			assets:     assetsWith(domain.DefaultSizes, 90, 70, 85, 60),
			planned:    4,
			wantScore:  76,
			wantFailed: []string{domain.CheckAverageQualityThreshold},
			wantReview: true,
		},
		{
			name:       "low scores on critical formats",
			assets:     assetsWith([]domain.SizeClass{domain.Size1x1, domain.Size9x16}, 50, 50),
			planned:    2,
			wantScore:  50,
			wantFailed: []string{domain.CheckAverageQualityThreshold},
			wantReview: true,
		},
		{
			name:       "failed generations count against the rate",
			assets:     assetsWith([]domain.SizeClass{domain.Size1x1, domain.Size9x16, domain.Size1x1, domain.Size9x16, domain.Size1x1, domain.Size9x16, domain.Size1x1, domain.Size9x16}, 90, 90, 90, 90, 90, 90, 90, 90),
			planned:    12,
			wantScore:  90,
			wantFailed: []string{domain.CheckGenerationSuccessRate},
			wantReview: true,
		},
		{
			name:       "missing critical format",
			assets:     assetsWith([]domain.SizeClass{domain.Size1x1, domain.Size16x9, domain.Size4x5}, 90, 90, 90),
			planned:    3,
			wantScore:  90,
			wantFailed: []string{domain.CheckCriticalFormatsPresent},
			wantReview: true,
		},
		{
			name:       "no assets",
			planned:    12,
			wantScore:  0,
			wantFailed: []string{domain.CheckGenerationSuccessRate, domain.CheckAverageQualityThreshold, domain.CheckCriticalFormatsPresent},
			wantReview: true,
		},
		{
			name:       "all good",
			assets:     assetsWith(domain.DefaultSizes, 85, 80, 95, 88),
			planned:    4,
			wantScore:  87,
			wantFailed: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := ComputeQualityReport(tc.assets, tc.planned)
			assert.Equal(t, tc.wantScore, r.OverallScore)
			assert.Equal(t, tc.wantFailed, r.FailedChecks)
			assert.Len(t, r.PassedChecks, 3-len(tc.wantFailed))
			assert.Len(t, r.Recommendations, len(tc.wantFailed))
			assert.Equal(t, tc.wantReview, r.ReviewRequired)
		})
	}
}

func TestNeedsReview(t *testing.T) {
	passing := domain.QualityReport{ReviewRequired: false}
	assert.False(t, NeedsReview(passing, assetsWith(nil, 80, 95)))
	assert.True(t, NeedsReview(passing, assetsWith(nil, 95, 79)))
	assert.True(t, NeedsReview(domain.QualityReport{ReviewRequired: true}, assetsWith(nil, 95)))
}

func TestScoreFor(t *testing.T) {
	tests := []struct {
		in   Validation
		want int
	}{
		{Validation{Valid: true}, 100},
		{Validation{Valid: true, Score: 84}, 84},
		{Validation{Valid: false, Score: 90}, 79},
		{Validation{Valid: false}, 0},
		{Validation{Valid: true, Score: 140}, 100},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, scoreFor(tc.in), "%+v", tc.in)
	}
}

func TestStageNames(t *testing.T) {
	names := StageNames()
	assert.Len(t, names, 7)
	assert.Equal(t, "Analyzing business intelligence", names[0])
	assert.Equal(t, "Packaging for delivery", names[6])
}

func TestNewJobView(t *testing.T) {
	tests := []struct {
		status   domain.JobStatus
		report   *domain.QualityReport
		download bool
		review   bool
		issues   bool
	}{
		{status: domain.JobStatusProcessing},
		{status: domain.JobStatusCustomerReview, report: &domain.QualityReport{ReviewRequired: true}, review: true, issues: true},
		{status: domain.JobStatusApproved, report: &domain.QualityReport{ReviewRequired: true}, download: true, issues: true},
		{status: domain.JobStatusDelivered, report: &domain.QualityReport{}, download: true},
		{status: domain.JobStatusFailed},
	}
	for _, tc := range tests {
		v := NewJobView(&domain.Job{Status: tc.status, QualityReport: tc.report})
		assert.Equal(t, tc.download, v.CanDownload, tc.status)
		assert.Equal(t, tc.review, v.RequiresReview, tc.status)
		assert.Equal(t, tc.issues, v.HasIssues, tc.status)
	}
}
