package pipeline

import "adforge/internal/domain"

// JobView is a job plus flags derived at read time.
type JobView struct {
	*domain.Job
	CanDownload    bool `json:"canDownload"`
	RequiresReview bool `json:"requiresReview"`
	HasIssues      bool `json:"hasIssues"`
}

func NewJobView(job *domain.Job) JobView {
	v := JobView{Job: job}
	if job == nil {
		return v
	}
	v.CanDownload = job.Status == domain.JobStatusDelivered || job.Status == domain.JobStatusApproved
	v.RequiresReview = job.Status == domain.JobStatusCustomerReview
	v.HasIssues = job.QualityReport != nil && job.QualityReport.ReviewRequired
	return v
}
