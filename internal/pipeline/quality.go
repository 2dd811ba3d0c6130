package pipeline

import (
	"math"

	"adforge/internal/domain"
)

const (
	successRateThreshold = 0.8
	reviewScoreThreshold = 75
)

var criticalSizes = []domain.SizeClass{domain.Size1x1, domain.Size9x16}

// ComputeQualityReport aggregates the assets of a job. planned is the number
// of angle/size pairs attempted, including those whose generation failed.
// Every retained asset counts as generated; promotion to ready happens after
// the report is computed.
func ComputeQualityReport(assets []domain.Asset, planned int) domain.QualityReport {
	report := domain.QualityReport{
		PassedChecks:    []string{},
		FailedChecks:    []string{},
		Recommendations: []string{},
	}

	total := 0
	for _, a := range assets {
		total += a.QualityScore
	}
	if len(assets) > 0 {
		report.OverallScore = int(math.Round(float64(total) / float64(len(assets))))
	}

	if planned < len(assets) {
		planned = len(assets)
	}
	rate := 0.0
	if planned > 0 {
		rate = float64(len(assets)) / float64(planned)
	}
	addCheck(&report, rate >= successRateThreshold, domain.CheckGenerationSuccessRate,
		"Review template configuration: too many creatives failed to generate")

	addCheck(&report, report.OverallScore >= domain.AcceptanceScore, domain.CheckAverageQualityThreshold,
		"Manual review recommended: average quality is below the acceptance score")

	present := make(map[domain.SizeClass]bool, len(criticalSizes))
	for _, a := range assets {
		present[a.Size] = true
	}
	critical := true
	for _, s := range criticalSizes {
		if !present[s] {
			critical = false
		}
	}
	addCheck(&report, critical, domain.CheckCriticalFormatsPresent,
		"Ensure the 1x1 and 9x16 formats generate successfully")

	report.ReviewRequired = len(report.FailedChecks) > 0 || report.OverallScore < reviewScoreThreshold
	return report
}

// NeedsReview decides whether a finished job waits for the customer.
func NeedsReview(report domain.QualityReport, assets []domain.Asset) bool {
	if report.ReviewRequired {
		return true
	}
	for _, a := range assets {
		if a.QualityScore < domain.AcceptanceScore {
			return true
		}
	}
	return false
}

func addCheck(r *domain.QualityReport, passed bool, name, recommendation string) {
	if passed {
		r.PassedChecks = append(r.PassedChecks, name)
		return
	}
	r.FailedChecks = append(r.FailedChecks, name)
	r.Recommendations = append(r.Recommendations, recommendation)
}
