package blobstore

import (
	"regexp"
	"testing"
	"time"
)

var keyPattern = regexp.MustCompile(`^reports/1763546400_[0-9a-f-]{36}\.(jpg|png|gif|jpeg|bin)$`)

func TestNewKey(t *testing.T) {
	now := time.Unix(1763546400, 0)

	tests := []struct {
		name      string
		filename  string
		mediaType string
		wantExt   string
	}{
		{name: "extension from filename", filename: "IMG_0001.JPEG", mediaType: "image/jpeg", wantExt: ".jpeg"},
		{name: "extension from media type", filename: "photo", mediaType: "image/png", wantExt: ".png"},
		{name: "unsafe extension falls back", filename: "x.j/pg", mediaType: "image/gif", wantExt: ".gif"},
		{name: "unknown everything", filename: "", mediaType: "", wantExt: ".bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewKey(now, tt.filename, tt.mediaType)
			if !keyPattern.MatchString(key) {
				t.Fatalf("key %q does not match expected shape", key)
			}
			if got := key[len(key)-len(tt.wantExt):]; got != tt.wantExt {
				t.Fatalf("expected extension %q, got key %q", tt.wantExt, key)
			}
			if err := ValidateKey(key); err != nil {
				t.Fatalf("generated key failed validation: %v", err)
			}
		})
	}
}

func TestNewKeyIsUniquePerCall(t *testing.T) {
	now := time.Now()
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		key := NewKey(now, "a.jpg", "image/jpeg")
		if _, ok := seen[key]; ok {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = struct{}{}
	}
}

func TestGCSURLForAndMediaType(t *testing.T) {
	g := &GCSStore{bucket: "incident-images"}
	if got, want := g.URLFor("reports/1_a.png"), "https://storage.googleapis.com/incident-images/reports/1_a.png"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := MediaTypeForKey("reports/1_a.png"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if got := MediaTypeForKey("reports/1_a.jpeg"); got != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q", got)
	}
	if got := MediaTypeForKey("reports/1_a.bin"); got != "application/octet-stream" {
		t.Fatalf("expected octet-stream, got %q", got)
	}
}
