package delivery

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"adforge/internal/domain"
	"adforge/internal/storage"
)

func TestZipPackager(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	for _, key := range []string{"creatives/job-1/trust/1x1.png", "creatives/job-1/trust/9x16.png"} {
		if _, err := store.Write(ctx, key, []byte(key)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	assets := []domain.Asset{
		{ID: "asset-trust-1x1", Angle: "trust", Size: domain.Size1x1, NodeHandle: "creatives/job-1/trust/1x1.png", QualityScore: 90},
		{ID: "asset-trust-9x16", Angle: "trust", Size: domain.Size9x16, NodeHandle: "creatives/job-1/trust/9x16.png", QualityScore: 85},
	}

	key, err := NewZipPackager(store).Package(ctx, "job-1", assets)
	if err != nil {
		t.Fatalf("Package error: %v", err)
	}
	if key != "archives/job-1.zip" {
		t.Fatalf("unexpected key %q", key)
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"trust/1x1.png", "trust/9x16.png", "manifest.json"} {
		if !names[want] {
			t.Fatalf("archive missing %s: %v", want, names)
		}
	}
}

func TestZipPackagerMissingCreative(t *testing.T) {
	store, _ := storage.NewFileStore(t.TempDir(), "")
	_, err := NewZipPackager(store).Package(context.Background(), "job-1", []domain.Asset{{ID: "x", Angle: "trust", Size: domain.Size1x1, NodeHandle: "missing.png"}})
	if err == nil {
		t.Fatal("expected error for missing creative")
	}
}
