package domain

import (
	"fmt"
	"time"

	"adforge/internal/domain/jsoncfg"
)

// JobStatus enumerates pipeline job lifecycle states.
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusQualityCheck   JobStatus = "quality_check"
	JobStatusCustomerReview JobStatus = "customer_review"
	JobStatusApproved       JobStatus = "approved"
	JobStatusDelivered      JobStatus = "delivered"
	JobStatusFailed         JobStatus = "failed"
)

// DefaultPriority is stored when the request omits a priority. Priority is advisory only.
const DefaultPriority = "normal"

var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusQueued: {
		JobStatusProcessing: true,
		JobStatusFailed:     true,
	},
	JobStatusProcessing: {
		JobStatusQualityCheck: true,
		JobStatusFailed:       true,
	},
	JobStatusQualityCheck: {
		JobStatusCustomerReview: true,
		JobStatusDelivered:      true,
		JobStatusFailed:         true,
	},
	JobStatusCustomerReview: {
		JobStatusApproved: true,
	},
	JobStatusApproved: {
		JobStatusDelivered: true,
	},
	JobStatusDelivered: {},
	JobStatusFailed:    {},
}

// ValidateTransition reports whether a job may move from one status to another.
func ValidateTransition(from, to JobStatus) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidTransition, from)
	}
	if !allowed[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsPipelineTerminal reports whether the pipeline has finished with the job.
func IsPipelineTerminal(s JobStatus) bool {
	switch s {
	case JobStatusCustomerReview, JobStatusApproved, JobStatusDelivered, JobStatusFailed:
		return true
	}
	return false
}

// HasQualityReport reports whether a job in status s must carry a quality report.
func HasQualityReport(s JobStatus) bool {
	switch s {
	case JobStatusCustomerReview, JobStatusApproved, JobStatusDelivered:
		return true
	}
	return false
}

// GenerationFailure records an angle/size pair whose creative could not be generated.
type GenerationFailure struct {
	Angle string    `json:"angle"`
	Size  SizeClass `json:"size"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Job is one end-to-end pipeline execution for a campaign.
type Job struct {
	ID                   string                       `json:"id"`
	CampaignID           string                       `json:"campaignId"`
	CustomerID           string                       `json:"customerId"`
	Priority             string                       `json:"priority"`
	BusinessIntelligence jsoncfg.BusinessIntelligence `json:"businessIntelligence,omitempty"`
	Status               JobStatus                    `json:"status"`
	Stage                string                       `json:"stage"`
	Progress             int                          `json:"progress"`
	PlannedAssets        int                          `json:"plannedAssets"`
	Assets               []Asset                      `json:"assets"`
	Failures             []GenerationFailure          `json:"failures,omitempty"`
	QualityReport        *QualityReport               `json:"qualityReport,omitempty"`
	ArchiveKey           string                       `json:"archiveKey,omitempty"`
	Error                string                       `json:"error,omitempty"`
	Version              int                          `json:"version"`
	CreatedAt            time.Time                    `json:"created"`
	UpdatedAt            time.Time                    `json:"updated"`
	CompletedAt          *time.Time                   `json:"completed,omitempty"`
}

// Clone returns a deep copy so callers never share slices or maps with a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.BusinessIntelligence = j.BusinessIntelligence.Clone()
	if j.Assets != nil {
		out.Assets = make([]Asset, len(j.Assets))
		for i, a := range j.Assets {
			out.Assets[i] = a.clone()
		}
	}
	if j.Failures != nil {
		out.Failures = append([]GenerationFailure(nil), j.Failures...)
	}
	if j.QualityReport != nil {
		r := j.QualityReport.clone()
		out.QualityReport = &r
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Transition moves the job to status to, stamping CompletedAt on the first
// entry into a pipeline-terminal status.
func (j *Job) Transition(to JobStatus, now time.Time) error {
	if j.Status == to {
		return nil
	}
	if err := ValidateTransition(j.Status, to); err != nil {
		return err
	}
	j.Status = to
	if IsPipelineTerminal(to) && j.CompletedAt == nil {
		t := now
		j.CompletedAt = &t
	}
	return nil
}

// AdvanceProgress raises progress to p. Lower values are ignored.
func (j *Job) AdvanceProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > j.Progress {
		j.Progress = p
	}
}
