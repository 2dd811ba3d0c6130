package domain

// Names of the checks evaluated by the quality gate.
const (
	CheckGenerationSuccessRate   = "generation success rate"
	CheckAverageQualityThreshold = "average quality threshold"
	CheckCriticalFormatsPresent  = "critical formats present"
)

// QualityReport summarises a job's assets once every planned pair was attempted.
type QualityReport struct {
	OverallScore    int      `json:"overallScore"`
	PassedChecks    []string `json:"passedChecks"`
	FailedChecks    []string `json:"failedChecks"`
	Recommendations []string `json:"recommendations"`
	ReviewRequired  bool     `json:"reviewRequired"`
}

func (r QualityReport) clone() QualityReport {
	r.PassedChecks = append([]string(nil), r.PassedChecks...)
	r.FailedChecks = append([]string(nil), r.FailedChecks...)
	r.Recommendations = append([]string(nil), r.Recommendations...)
	return r
}
