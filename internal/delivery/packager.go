// Package delivery bundles a job's creatives into a downloadable archive.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"adforge/internal/domain"
	"adforge/pkg/zip"
)

// Store is the object storage the packager reads creatives from and writes
// archives to.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// ZipPackager writes archives/<jobID>.zip holding each creative and a manifest.
type ZipPackager struct {
	store Store
	now   func() time.Time
}

func NewZipPackager(store Store) *ZipPackager {
	return &ZipPackager{store: store, now: time.Now}
}

type manifestEntry struct {
	ID           string             `json:"id"`
	Angle        string             `json:"angle"`
	Size         domain.SizeClass   `json:"size"`
	File         string             `json:"file"`
	QualityScore int                `json:"qualityScore"`
	Status       domain.AssetStatus `json:"status"`
	Issues       []string           `json:"issues,omitempty"`
}

// ArchiveKey returns the storage key of a job's archive.
func ArchiveKey(jobID string) string {
	return path.Join("archives", jobID+".zip")
}

func (p *ZipPackager) Package(ctx context.Context, jobID string, assets []domain.Asset) (string, error) {
	now := p.now()
	files := make([]zip.Asset, 0, len(assets)+1)
	manifest := make([]manifestEntry, 0, len(assets))
	for _, a := range assets {
		data, err := p.store.Read(ctx, a.NodeHandle)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", a.ID, err)
		}
		name := path.Join(a.Angle, string(a.Size)+extensionFor(a.NodeHandle))
		files = append(files, zip.Asset{Filename: name, Data: data, Modified: now})
		manifest = append(manifest, manifestEntry{
			ID:           a.ID,
			Angle:        a.Angle,
			Size:         a.Size,
			File:         name,
			QualityScore: a.QualityScore,
			Status:       a.Status,
			Issues:       a.Issues,
		})
	}
	raw, err := json.MarshalIndent(map[string]any{"jobId": jobID, "assets": manifest}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	files = append(files, zip.Asset{Filename: "manifest.json", MIME: "application/json", Data: raw, Modified: now})

	archive, err := zip.ArchiveAssets(files)
	if err != nil {
		return "", err
	}
	return p.store.Write(ctx, ArchiveKey(jobID), archive)
}

func extensionFor(key string) string {
	if ext := path.Ext(key); ext != "" {
		return ext
	}
	return ".png"
}
