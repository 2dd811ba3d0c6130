package pipeline

import (
	"context"
	"time"

	"adforge/internal/domain"
)

// CreativeRequest carries the business facts a single creative is rendered from.
type CreativeRequest struct {
	JobID        string
	BusinessName string
	City         string
	Phone        string
	LogoURL      string
	PrimaryColor string
	Angle        string
	Size         domain.SizeClass
	CustomText   string
}

// Creative is a rendered creative as returned by a Generator.
type Creative struct {
	NodeHandle string
	PreviewURL string
	FullResURL string
}

// Generator renders one creative. Implementations are blocking network calls;
// any timeout surfaces as an ordinary error.
type Generator interface {
	Generate(ctx context.Context, req CreativeRequest) (Creative, error)
}

// ValidationRequest identifies the creative to judge. Size is the class the
// creative was requested at.
type ValidationRequest struct {
	Handle string
	Size   domain.SizeClass
}

// Validation is a validator's verdict. Score is 0-100; zero with Valid set
// means the validator does not score and a pass is worth 100.
type Validation struct {
	Valid  bool
	Issues []string
	Score  int
}

// Validator judges a rendered creative.
type Validator interface {
	Validate(ctx context.Context, req ValidationRequest) (Validation, error)
}

// Packager bundles a job's assets for delivery and returns the archive key.
type Packager interface {
	Package(ctx context.Context, jobID string, assets []domain.Asset) (string, error)
}

// Dispatcher hands a job to whatever executes pipelines.
type Dispatcher interface {
	Submit(ctx context.Context, jobID string) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	JobStarted()
	JobFinished(status domain.JobStatus)
	AssetOutcome(outcome string)
	StageCompleted(stage string, d time.Duration)
}

// Asset outcomes reported to the Recorder.
const (
	OutcomeGenerated      = "generated"
	OutcomeGenerationFail = "generation_failed"
	OutcomeValidatorError = "validator_error"
)

type nopRecorder struct{}

func (nopRecorder) JobStarted()                          {}
func (nopRecorder) JobFinished(domain.JobStatus)         {}
func (nopRecorder) AssetOutcome(string)                  {}
func (nopRecorder) StageCompleted(string, time.Duration) {}
