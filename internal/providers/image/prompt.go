package image

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"adforge/internal/domain"
	"adforge/internal/pipeline"
)

var angleDirection = map[string]string{
	"energy_savings":  "Show a bright, comfortable home with new double-pane windows and a clear message about lower energy bills.",
	"trust":           "Show a friendly installation crew at a finished home; emphasise years of experience and happy customers.",
	"financing":       "Lead with affordable monthly payments and a simple approval message over a modern home exterior.",
	"speed":           "Convey fast installation: a clean before/after with a short turnaround promise.",
	"local_expert":    "Feature a recognisable neighbourhood street and position the business as the local window specialist.",
	"warranty":        "Highlight long-term peace of mind with a prominent warranty badge over crisp new windows.",
	"seasonal_promo":  "Build the creative around the current promotion with a bold offer banner and seasonal colours.",
	"premium_quality": "Use an upscale interior with premium window frames, soft natural light and refined typography.",
}

var titleCaser = cases.Title(language.English)

// AngleHeadline turns an angle id into display text, e.g. "Energy Savings".
func AngleHeadline(angle string) string {
	return titleCaser.String(strings.ReplaceAll(strings.TrimSpace(angle), "_", " "))
}

// BuildCreativePrompt converts a creative request into an instruction for the
// image model.
func BuildCreativePrompt(req pipeline.CreativeRequest) string {
	var lines []string

	business := strings.TrimSpace(req.BusinessName)
	if business == "" {
		business = "a local window replacement company"
	}
	lines = append(lines, fmt.Sprintf("Create a %s social ad creative for %s.", describeSize(req.Size), business))

	lines = append(lines, fmt.Sprintf("Campaign angle: %s.", AngleHeadline(req.Angle)))
	if direction, ok := angleDirection[req.Angle]; ok {
		lines = append(lines, direction)
	}
	if city := strings.TrimSpace(req.City); city != "" {
		lines = append(lines, fmt.Sprintf("Mention serving %s.", titleCaser.String(city)))
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		lines = append(lines, fmt.Sprintf("Include the call-to-action phone number %s in legible type.", phone))
	}
	if color := strings.TrimSpace(req.PrimaryColor); color != "" {
		lines = append(lines, fmt.Sprintf("Use %s as the dominant brand colour.", color))
	}
	if logo := strings.TrimSpace(req.LogoURL); logo != "" {
		lines = append(lines, fmt.Sprintf("Reserve a clear corner for the brand logo from %s.", logo))
	}
	if text := strings.TrimSpace(req.CustomText); text != "" {
		lines = append(lines, fmt.Sprintf("Headline copy: %q.", text))
	}
	lines = append(lines, "Avoid: "+DefaultNegativePrompt+".")
	return strings.Join(lines, "\n")
}

// DefaultNegativePrompt lists artefacts the model should avoid.
const DefaultNegativePrompt = "blurry, distorted frames, warped text, watermark, stock-photo logos, cluttered layout"

func describeSize(size domain.SizeClass) string {
	switch size {
	case domain.Size9x16:
		return "vertical 9:16 story"
	case domain.Size16x9:
		return "landscape 16:9"
	case domain.Size4x5:
		return "portrait 4:5 feed"
	default:
		return "square 1:1 feed"
	}
}
