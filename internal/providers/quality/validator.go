// Package quality judges rendered creatives before they reach a customer.
package quality

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"adforge/internal/domain"
	"adforge/internal/pipeline"
)

// Reader loads a stored creative by handle.
type Reader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Options tunes the checks. Zero values use the defaults.
type Options struct {
	AspectTolerance float64
	MinSide         int
	MaxBytes        int
	MinContrast     float64
}

const (
	defaultAspectTolerance = 0.02
	defaultMinSide         = 600
	defaultMaxBytes        = 8 << 20
	defaultMinContrast     = 4.0

	// issuePenalty keeps any creative with an issue below the acceptance score.
	issuePenalty = 25
)

// ImageValidator implements pipeline.Validator by decoding the creative.
type ImageValidator struct {
	store Reader
	opts  Options
}

func NewImageValidator(store Reader, opts Options) *ImageValidator {
	if opts.AspectTolerance <= 0 {
		opts.AspectTolerance = defaultAspectTolerance
	}
	if opts.MinSide <= 0 {
		opts.MinSide = defaultMinSide
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.MinContrast <= 0 {
		opts.MinContrast = defaultMinContrast
	}
	return &ImageValidator{store: store, opts: opts}
}

func (v *ImageValidator) Validate(ctx context.Context, req pipeline.ValidationRequest) (pipeline.Validation, error) {
	data, err := v.store.Read(ctx, req.Handle)
	if err != nil {
		return pipeline.Validation{}, fmt.Errorf("%w: load %s: %v", domain.ErrValidation, req.Handle, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return pipeline.Validation{}, fmt.Errorf("%w: decode %s: %v", domain.ErrValidation, req.Handle, err)
	}

	issues := []string{}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if req.Size.Valid() && h > 0 {
		want := req.Size.Ratio()
		got := float64(w) / float64(h)
		if math.Abs(got-want)/want > v.opts.AspectTolerance {
			issues = append(issues, fmt.Sprintf("aspect ratio %.2f does not match %s", got, req.Size))
		}
	}
	if w < v.opts.MinSide || h < v.opts.MinSide {
		issues = append(issues, fmt.Sprintf("resolution %dx%d is below %dpx", w, h, v.opts.MinSide))
	}
	if len(data) > v.opts.MaxBytes {
		issues = append(issues, fmt.Sprintf("file size %d bytes exceeds %d", len(data), v.opts.MaxBytes))
	}
	if luminanceStdDev(img) < v.opts.MinContrast {
		issues = append(issues, "creative is blank or has no contrast")
	}

	score := 100 - issuePenalty*len(issues)
	if score < 0 {
		score = 0
	}
	return pipeline.Validation{Valid: len(issues) == 0, Issues: issues, Score: score}, nil
}

// luminanceStdDev samples a 32x32 grayscale copy of img.
func luminanceStdDev(img image.Image) float64 {
	small := imaging.Grayscale(imaging.Resize(img, 32, 32, imaging.Box))
	n := 0
	var sum, sumSq float64
	for i := 0; i < len(small.Pix); i += 4 {
		l := float64(small.Pix[i])
		sum += l
		sumSq += l * l
		n++
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
}

var _ pipeline.Validator = (*ImageValidator)(nil)
