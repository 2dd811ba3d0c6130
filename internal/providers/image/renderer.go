// Package image renders ad creatives and stores them for delivery.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/disintegration/imaging"

	"adforge/internal/domain"
	"adforge/internal/infra"
	"adforge/internal/pipeline"
	"adforge/internal/providers/genai"
)

// ImageClient renders a single image.
type ImageClient interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (genai.ImageAsset, error)
}

// ObjectStore persists rendered creatives.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

// Options configures a Renderer.
type Options struct {
	MaxTries        uint
	InitialInterval time.Duration
	CallTimeout     time.Duration
	PreviewSize     int
	Logger          infra.Logger
}

// Renderer implements pipeline.Generator on top of an ImageClient.
type Renderer struct {
	client ImageClient
	store  ObjectStore
	opts   Options
}

func NewRenderer(client ImageClient, store ObjectStore, opts Options) *Renderer {
	if opts.MaxTries == 0 {
		opts.MaxTries = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = 480
	}
	return &Renderer{client: client, store: store, opts: opts}
}

// CreativeKey is the storage key of a full-resolution creative.
func CreativeKey(jobID, angle string, size domain.SizeClass) string {
	return fmt.Sprintf("creatives/%s/%s/%s.png", jobID, angle, size)
}

func previewKey(jobID, angle string, size domain.SizeClass) string {
	return fmt.Sprintf("creatives/%s/%s/%s.preview.jpg", jobID, angle, size)
}

func (r *Renderer) Generate(ctx context.Context, req pipeline.CreativeRequest) (pipeline.Creative, error) {
	imgReq := genai.ImageRequest{
		Prompt:      BuildCreativePrompt(req),
		AspectRatio: req.Size.AspectRatio(),
		BrandColor:  req.PrimaryColor,
		Seed:        req.JobID + "/" + req.Angle,
	}

	asset, err := r.render(ctx, imgReq)
	if err != nil {
		return pipeline.Creative{}, fmt.Errorf("%w: %s/%s: %v", domain.ErrGeneration, req.Angle, req.Size, err)
	}

	fullKey, err := r.store.Write(ctx, CreativeKey(req.JobID, req.Angle, req.Size), asset.Data)
	if err != nil {
		return pipeline.Creative{}, fmt.Errorf("%w: store creative: %v", domain.ErrGeneration, err)
	}

	preview, err := r.preview(asset.Data)
	if err != nil {
		return pipeline.Creative{}, fmt.Errorf("%w: preview: %v", domain.ErrGeneration, err)
	}
	prevKey, err := r.store.Write(ctx, previewKey(req.JobID, req.Angle, req.Size), preview)
	if err != nil {
		return pipeline.Creative{}, fmt.Errorf("%w: store preview: %v", domain.ErrGeneration, err)
	}

	return pipeline.Creative{
		NodeHandle: fullKey,
		PreviewURL: r.store.URL(prevKey),
		FullResURL: r.store.URL(fullKey),
	}, nil
}

func (r *Renderer) render(ctx context.Context, req genai.ImageRequest) (genai.ImageAsset, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.opts.InitialInterval

	attempt := 0
	return backoff.Retry(ctx, func() (genai.ImageAsset, error) {
		attempt++
		callCtx := ctx
		if r.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
			defer cancel()
		}
		asset, err := r.client.GenerateImage(callCtx, req)
		if err == nil {
			return asset, nil
		}
		if !retryable(err) {
			return genai.ImageAsset{}, backoff.Permanent(err)
		}
		r.opts.Logger.Debug().Err(err).Int("attempt", attempt).Msg("renderer: retrying image generation")
		return genai.ImageAsset{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.opts.MaxTries),
	)
}

func retryable(err error) bool {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (r *Renderer) preview(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, r.opts.PreviewSize, r.opts.PreviewSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(82)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ pipeline.Generator = (*Renderer)(nil)
