package domain

import (
	"fmt"
	"time"
)

// AcceptanceScore is the minimum quality score for an asset to be considered ready.
const AcceptanceScore = 80

// SizeClass enumerates the fixed creative dimension classes.
type SizeClass string

const (
	Size1x1  SizeClass = "1x1"
	Size9x16 SizeClass = "9x16"
	Size16x9 SizeClass = "16x9"
	Size4x5  SizeClass = "4x5"
)

// DefaultSizes is the ordered set of sizes generated for every angle.
var DefaultSizes = []SizeClass{Size1x1, Size9x16, Size16x9, Size4x5}

// AspectRatio returns the "w:h" form understood by generation providers.
func (s SizeClass) AspectRatio() string {
	switch s {
	case Size9x16:
		return "9:16"
	case Size16x9:
		return "16:9"
	case Size4x5:
		return "4:5"
	default:
		return "1:1"
	}
}

// Ratio returns width divided by height.
func (s SizeClass) Ratio() float64 {
	switch s {
	case Size9x16:
		return 9.0 / 16.0
	case Size16x9:
		return 16.0 / 9.0
	case Size4x5:
		return 4.0 / 5.0
	default:
		return 1
	}
}

// Valid reports whether s is one of the known size classes.
func (s SizeClass) Valid() bool {
	switch s {
	case Size1x1, Size9x16, Size16x9, Size4x5:
		return true
	}
	return false
}

// AssetStatus enumerates asset lifecycle states. Status never regresses.
type AssetStatus string

const (
	AssetStatusGenerating AssetStatus = "generating"
	AssetStatusReady      AssetStatus = "ready"
	AssetStatusApproved   AssetStatus = "approved"
	AssetStatusDelivered  AssetStatus = "delivered"
)

var assetStatusRank = map[AssetStatus]int{
	AssetStatusGenerating: 0,
	AssetStatusReady:      1,
	AssetStatusApproved:   2,
	AssetStatusDelivered:  3,
}

// Asset is one rendered creative for an angle and size.
type Asset struct {
	ID           string      `json:"id"`
	Angle        string      `json:"angle"`
	Size         SizeClass   `json:"size"`
	NodeHandle   string      `json:"nodeHandle"`
	PreviewURL   string      `json:"previewUrl"`
	DownloadURL  string      `json:"downloadUrl"`
	Status       AssetStatus `json:"status"`
	QualityScore int         `json:"qualityScore"`
	Issues       []string    `json:"issues"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// AssetID builds the job-unique identifier for an angle/size pair.
func AssetID(angle string, size SizeClass) string {
	return fmt.Sprintf("asset-%s-%s", angle, size)
}

// Promote advances the asset to status to. Regressions are ignored.
func (a *Asset) Promote(to AssetStatus) {
	if assetStatusRank[to] > assetStatusRank[a.Status] {
		a.Status = to
	}
}

func (a Asset) clone() Asset {
	a.Issues = append([]string(nil), a.Issues...)
	return a
}
