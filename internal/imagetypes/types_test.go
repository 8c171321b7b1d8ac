package imagetypes

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"IMG_0001.jpg", CategoryStandard},
		{"IMG_0001.JPEG", CategoryStandard},
		{"photo.png", CategoryStandard},
		{"photo.webp", CategoryStandard},
		{"photo.heic", CategoryStandard},
		{"scan.TIFF", CategoryStandard},
		{"IMG_0001.ORF", CategoryRaw},
		{"IMG_0001.cr2", CategoryRaw},
		{"IMG_0001.CR3", CategoryRaw},
		{"IMG_0001.nef", CategoryRaw},
		{"IMG_0001.arw", CategoryRaw},
		{"IMG_0001.rw2", CategoryRaw},
		{"IMG_0001.x3f", CategoryRaw},
		{"IMG_0001.3fr", CategoryRaw},
		{"IMG_0001.dng", CategoryDNG},
		{"IMG_0001.DNG", CategoryDNG},
		{"notes.txt", CategoryUnknown},
		{"video.mp4", CategoryUnknown},
		{"noextension", CategoryUnknown},
		{"/abs/path/to/IMG.nrw", CategoryRaw},
	}

	for _, tt := range tests {
		if got := CategoryOf(tt.path); got != tt.want {
			t.Errorf("CategoryOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsRawAndRawFormat(t *testing.T) {
	if !IsRaw("a.ORF") {
		t.Error("expected a.ORF to be RAW")
	}
	if IsRaw("a.dng") {
		t.Error("DNG must not be classified as RAW")
	}
	if IsRaw("a.jpg") {
		t.Error("JPEG must not be classified as RAW")
	}
	if got := RawFormat("a.ORF"); got != "orf" {
		t.Errorf("RawFormat(a.ORF) = %q, want orf", got)
	}
	if got := RawFormat("a.jpg"); got != "" {
		t.Errorf("RawFormat(a.jpg) = %q, want empty", got)
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("/photos/IMG_0001.ORF"); got != "/photos/IMG_0001.xmp" {
		t.Errorf("SidecarPath = %q", got)
	}

	cands := SidecarCandidates("/photos/IMG_0001.ORF")
	if len(cands) != 2 {
		t.Fatalf("expected 2 sidecar candidates, got %d", len(cands))
	}
	if cands[0] != "/photos/IMG_0001.xmp" {
		t.Errorf("canonical sidecar should come first, got %q", cands[0])
	}
	if cands[1] != "/photos/IMG_0001.XMP" {
		t.Errorf("legacy sidecar candidate = %q", cands[1])
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Known SHA-256 of "hello world"
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	got, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if got != want {
		t.Errorf("Fingerprint = %q, want %q", got, want)
	}

	// Deterministic
	again, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Error("Fingerprint is not deterministic")
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}
