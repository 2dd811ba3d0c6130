package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"adforge/internal/domain"
)

type pair struct {
	angle string
	size  domain.SizeClass
}

type pairResult struct {
	pair    pair
	asset   *domain.Asset
	failure *domain.GenerationFailure
}

// generateProgressSpan is how far stage 3 may move progress before the
// branding checkpoint.
const generateProgressSpan = 14

func (r *run) plan() []pair {
	out := make([]pair, 0, len(r.angles)*len(r.o.cfg.Sizes))
	for _, a := range r.angles {
		for _, s := range r.o.cfg.Sizes {
			out = append(out, pair{angle: string(a.ID), size: s})
		}
	}
	return out
}

// generate fans pairs out to a bounded set of goroutines. Results come back
// over a channel and only this goroutine appends to the job.
func (r *run) generate(ctx context.Context) error {
	pairs := r.plan()
	r.job.PlannedAssets = len(pairs)
	if len(pairs) == 0 {
		return r.save(ctx)
	}

	results := make(chan pairResult)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.Concurrency)
	go func() {
		for _, p := range pairs {
			g.Go(func() error {
				results <- r.produce(gctx, p)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var saveErr error
	done := 0
	for res := range results {
		done++
		if res.asset != nil {
			r.job.Assets = append(r.job.Assets, *res.asset)
		}
		if res.failure != nil {
			r.job.Failures = append(r.job.Failures, *res.failure)
		}
		r.job.AdvanceProgress(35 + generateProgressSpan*done/len(pairs))
		if saveErr == nil {
			saveErr = r.save(ctx)
		}
	}
	return saveErr
}

// produce renders and validates one pair. A panicking collaborator costs
// only this pair.
func (r *run) produce(ctx context.Context, p pair) (res pairResult) {
	log := r.o.logger.With().Str("job_id", r.job.ID).Str("angle", p.angle).Str("size", string(p.size)).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("pipeline: creative production panicked")
			res = r.generationFailure(p, fmt.Errorf("panic: %v", rec))
		}
	}()
	c := r.campaign
	req := CreativeRequest{
		JobID:        r.job.ID,
		BusinessName: c.BusinessName,
		City:         c.City,
		Phone:        c.Phone,
		LogoURL:      c.LogoURL,
		PrimaryColor: c.PrimaryColor,
		Angle:        p.angle,
		Size:         p.size,
		CustomText:   c.CustomText,
	}
	creative, err := r.o.generator.Generate(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: creative generation failed")
		return r.generationFailure(p, err)
	}

	asset := &domain.Asset{
		ID:          domain.AssetID(p.angle, p.size),
		Angle:       p.angle,
		Size:        p.size,
		NodeHandle:  creative.NodeHandle,
		PreviewURL:  creative.PreviewURL,
		DownloadURL: creative.FullResURL,
		Status:      domain.AssetStatusGenerating,
		Issues:      []string{},
		CreatedAt:   r.o.now(),
	}

	verdict, err := r.o.validator.Validate(ctx, ValidationRequest{Handle: creative.NodeHandle, Size: p.size})
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: quality validation failed")
		r.o.metrics.AssetOutcome(OutcomeValidatorError)
		asset.QualityScore = r.o.cfg.FallbackScore
		asset.Issues = []string{fmt.Sprintf("quality validation failed: %v", err)}
		return pairResult{pair: p, asset: asset}
	}
	asset.QualityScore = scoreFor(verdict)
	if len(verdict.Issues) > 0 {
		asset.Issues = append([]string(nil), verdict.Issues...)
	}
	r.o.metrics.AssetOutcome(OutcomeGenerated)
	return pairResult{pair: p, asset: asset}
}

func (r *run) generationFailure(p pair, err error) pairResult {
	r.o.metrics.AssetOutcome(OutcomeGenerationFail)
	return pairResult{pair: p, failure: &domain.GenerationFailure{
		Angle: p.angle,
		Size:  p.size,
		Error: err.Error(),
		At:    r.o.now(),
	}}
}

// scoreFor maps a verdict to 0-100. An invalid verdict never reaches the
// acceptance score.
func scoreFor(v Validation) int {
	score := v.Score
	if score <= 0 && v.Valid {
		score = 100
	}
	if !v.Valid && score >= domain.AcceptanceScore {
		score = domain.AcceptanceScore - 1
	}
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
