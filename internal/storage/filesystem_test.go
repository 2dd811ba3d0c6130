package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileStoreWriteRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	key, err := store.Write(context.Background(), "/creatives/job-1/../job-1/a.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "creatives/job-1/a.png" {
		t.Fatalf("unexpected key %q", key)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil || string(data) != "png" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	if got := store.URL(key); got != "http://localhost:8080/static/creatives/job-1/a.png" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestFileStoreReadMissing(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "")
	if _, err := store.Read(context.Background(), "nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b.png", want: "a/b.png"},
		{in: `a\b.png`, want: "a/b.png"},
		{in: "./a.png", want: "a.png"},
		{in: "../etc/passwd", wantErr: true},
		{in: "a/../../b", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}
