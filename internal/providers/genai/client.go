package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"adforge/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client renders creatives through the Gemini image API. Without an API key
// it renders deterministic synthetic creatives so local runs and CI exercise
// the whole pipeline.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest describes one creative to render.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	BrandColor  string
	Seed        string
}

// ImageAsset is the normalized representation returned by the client.
type ImageAsset struct {
	Format    string
	Width     int
	Height    int
	Data      []byte
	Synthetic bool
}

// APIError is a non-2xx answer from the Gemini API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.Status)
	}
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ErrNoImage is returned when the API answered without image content.
var ErrNoImage = errors.New("gemini returned no image content")

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client. A nil HTTP client gets a 60s timeout.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Synthetic reports whether the client renders locally.
func (c *Client) Synthetic() bool {
	return c.apiKey == ""
}

// GenerateImage renders one creative. Remote failures are returned to the
// caller; only a missing API key selects synthetic rendering.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return ImageAsset{}, err
	}
	if c.apiKey == "" {
		return c.syntheticImage(req)
	}
	return c.remoteGenerateImage(ctx, req)
}

func (c *Client) syntheticImage(req ImageRequest) (ImageAsset, error) {
	width, height := Dimensions(req.AspectRatio)
	seed := deterministicSeed(req.Seed, req.Prompt, req.AspectRatio, c.model)
	data, err := renderSyntheticImage(width, height, seed, req.BrandColor)
	if err != nil {
		return ImageAsset{}, err
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("aspect", req.AspectRatio).
		Msg("genai: rendered synthetic creative")

	return ImageAsset{
		Format:    "image/png",
		Width:     width,
		Height:    height,
		Data:      data,
		Synthetic: true,
	}, nil
}

func (c *Client) remoteGenerateImage(ctx context.Context, req ImageRequest) (ImageAsset, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: req.Prompt}},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &geminiImageConfig{AspectRatio: req.AspectRatio},
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return ImageAsset{}, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return ImageAsset{}, fmt.Errorf("decode inline data: %w", err)
			}
			w, h := decodeImageDimensions(data)
			if w == 0 || h == 0 {
				return ImageAsset{}, fmt.Errorf("gemini returned undecodable image (%s)", part.InlineData.MimeType)
			}
			format := part.InlineData.MimeType
			if format == "" {
				format = "image/png"
			}

			c.logger.Debug().
				Str("model", c.model).
				Int("width", w).
				Int("height", h).
				Msg("genai: rendered remote creative")

			return ImageAsset{Format: format, Width: w, Height: h, Data: data}, nil
		}
	}
	return ImageAsset{}, ErrNoImage
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded geminiErrorResponse
		if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error.Message != "" {
			apiErr.Message = decoded.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// renderSyntheticImage paints a striped card in the brand colour. Stripes keep
// the creative from reading as blank.
func renderSyntheticImage(width, height int, seed, brandColor string) ([]byte, error) {
	base, ok := ParseHexColor(brandColor)
	if !ok {
		base = colorFromSeed(seed, 0)
	}
	accent := contrastColor(base)
	img := imaging.New(width, height, base)

	stripeHeight := maxInt(32, height/12)
	stripe := imaging.New(width, stripeHeight, accent)
	for y := stripeHeight; y < height; y += stripeHeight * 3 {
		img = imaging.Paste(img, stripe, image.Pt(0, y))
	}

	block := imaging.New(width/3, height/5, colorFromSeed(seed, 1))
	img = imaging.Overlay(img, block, image.Pt(width/12, height-height/4), 0.85)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode synthetic creative: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.NRGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func contrastColor(c color.NRGBA) color.NRGBA {
	luma := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	if luma > 140 {
		return color.NRGBA{R: 20, G: 24, B: 32, A: 255}
	}
	return color.NRGBA{R: 245, G: 245, B: 240, A: 255}
}

func colorFromSeed(seed string, shift int) color.NRGBA {
	if len(seed) < 6 {
		seed = "3b6ea5" + seed
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	c, _ := ParseHexColor(doubled[start : start+6])
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// Dimensions maps an aspect ratio to the pixel size rendered for it.
func Dimensions(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:5":
		return 1080, 1350
	case "1:1", "square", "":
		return 1080, 1080
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			if a, errA := strconv.Atoi(strings.TrimSpace(parts[0])); errA == nil {
				if b, errB := strconv.Atoi(strings.TrimSpace(parts[1])); errB == nil && a > 0 && b > 0 {
					width := 1080
					height := int(float64(width) * float64(b) / float64(a))
					return width, height
				}
			}
		}
		return 1080, 1080
	}
}
