package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"photo-catalog/internal/config"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 120, G: 90, B: 60, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakePreviewTool serves preview blobs per tag.
type fakePreviewTool struct {
	previews map[string][]byte
	tags     map[string]interface{}
	asked    []string
}

func (f *fakePreviewTool) ExtractBinary(_ context.Context, _ string, tag string) ([]byte, error) {
	f.asked = append(f.asked, tag)
	data, ok := f.previews[tag]
	if !ok {
		return nil, errors.New("tag not found")
	}
	return data, nil
}

func (f *fakePreviewTool) ReadTags(context.Context, string, []string) (map[string]interface{}, error) {
	if f.tags == nil {
		return map[string]interface{}{}, nil
	}
	return f.tags, nil
}

func testDeriver(tool previewTool) *Deriver {
	return &Deriver{
		tool:       tool,
		profiles:   Profiles(config.ImageOptimization{}),
		rawTimeout: 30 * time.Second,
		fallback:   true,
	}
}

func TestProfileOverrides(t *testing.T) {
	size := 2048
	method := "high_quality"
	resampling := "nearest"
	upscale := true

	profiles := Profiles(config.ImageOptimization{
		Enabled: true,
		Profiles: map[string]config.ProfileOverride{
			"clip_embedding": {TargetSize: &size, Method: &method, Resampling: &resampling, Upscale: &upscale},
			"custom":         {TargetSize: &size},
		},
	})

	p := profiles["clip_embedding"]
	if p.TargetSize != 2048 || p.Method != MethodHighQuality || p.Resampling != ResampleNearest || !p.Upscale {
		t.Errorf("override not applied: %+v", p)
	}
	// Untouched fields keep the built-in default.
	if p.Quality != builtinProfiles["clip_embedding"].Quality {
		t.Errorf("quality changed unexpectedly: %d", p.Quality)
	}
	// Unknown profile names seed from "default".
	if profiles["custom"].TargetSize != 2048 || profiles["custom"].Method != builtinProfiles["default"].Method {
		t.Errorf("custom profile = %+v", profiles["custom"])
	}
	// Disabled optimization ignores overrides.
	plain := Profiles(config.ImageOptimization{Enabled: false, Profiles: map[string]config.ProfileOverride{
		"clip_embedding": {TargetSize: &size},
	}})
	if plain["clip_embedding"].TargetSize == 2048 {
		t.Error("overrides applied while optimization is disabled")
	}
}

func TestResizeContract(t *testing.T) {
	p := Profile{TargetSize: 100, Resampling: ResampleLanczos}

	big := imaging.New(400, 200, color.NRGBA{A: 255})
	out := resizeToProfile(big, p)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Errorf("downscale = %dx%d, want 100x50", out.Bounds().Dx(), out.Bounds().Dy())
	}

	small := imaging.New(40, 20, color.NRGBA{A: 255})
	out = resizeToProfile(small, p)
	if out.Bounds().Dx() != 40 {
		t.Errorf("small image should pass through without upscale, got %dx%d",
			out.Bounds().Dx(), out.Bounds().Dy())
	}

	p.Upscale = true
	out = resizeToProfile(small, p)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Errorf("upscale = %dx%d, want 100x50", out.Bounds().Dx(), out.Bounds().Dy())
	}

	// Portrait images bound the longest side too.
	tall := imaging.New(200, 400, color.NRGBA{A: 255})
	p.Upscale = false
	out = resizeToProfile(tall, p)
	if out.Bounds().Dy() != 100 || out.Bounds().Dx() != 50 {
		t.Errorf("portrait downscale = %dx%d, want 50x100", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestApplyOrientation(t *testing.T) {
	img := imaging.New(30, 10, color.NRGBA{A: 255})

	for _, o := range []int{5, 6, 7, 8} {
		out := applyOrientation(img, o)
		if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 30 {
			t.Errorf("orientation %d: %dx%d, want swapped dimensions", o, out.Bounds().Dx(), out.Bounds().Dy())
		}
	}
	for _, o := range []int{0, 1, 2, 3, 4} {
		out := applyOrientation(img, o)
		if out.Bounds().Dx() != 30 || out.Bounds().Dy() != 10 {
			t.Errorf("orientation %d: dimensions must not swap", o)
		}
	}
}

func TestRawCascadeSkipsSmallPreviews(t *testing.T) {
	tool := &fakePreviewTool{previews: map[string][]byte{
		"PreviewImage": jpegBytes(t, 200, 150), // under the 300px bound
		"JpgFromRaw":   jpegBytes(t, 800, 600),
	}}
	d := testDeriver(tool)

	img, err := d.Derive(context.Background(), "/p/shot.nef", "clip_embedding")
	if err != nil {
		t.Fatal(err)
	}
	// clip_embedding targets 336px from the 800px JpgFromRaw preview.
	if longestSide(img) != 336 {
		t.Errorf("longest side = %d, want 336", longestSide(img))
	}

	// PreviewImage was tried first, then JpgFromRaw.
	if len(tool.asked) < 2 || tool.asked[0] != "PreviewImage" || tool.asked[1] != "JpgFromRaw" {
		t.Errorf("cascade order = %v", tool.asked)
	}
}

func TestRawCascadeHighQualityBound(t *testing.T) {
	// 350px satisfies preview_optimized (>=300) but not high_quality
	// (>=400); high_quality must keep walking to the last-resort tags.
	tool := &fakePreviewTool{previews: map[string][]byte{
		"PreviewImage": jpegBytes(t, 350, 250),
		"LargePreview": jpegBytes(t, 2000, 1500),
	}}
	d := testDeriver(tool)

	img, err := d.Derive(context.Background(), "/p/shot.cr2", "gallery_display")
	if err != nil {
		t.Fatal(err)
	}
	if longestSide(img) != 1600 {
		t.Errorf("longest side = %d, want 1600 from LargePreview", longestSide(img))
	}
}

func TestRawCascadeFallbackToUndersized(t *testing.T) {
	tool := &fakePreviewTool{previews: map[string][]byte{
		"ThumbnailImage": jpegBytes(t, 160, 120),
	}}

	d := testDeriver(tool)
	img, err := d.Derive(context.Background(), "/p/shot.arw", "default")
	if err != nil {
		t.Fatal(err)
	}
	if longestSide(img) != 160 {
		t.Errorf("longest side = %d, want the undersized preview", longestSide(img))
	}

	// Without the fallback flag the same cascade yields nothing.
	d = testDeriver(tool)
	d.fallback = false
	if _, err := d.Derive(context.Background(), "/p/shot.arw", "default"); !errors.Is(err, ErrNoThumbnail) {
		t.Errorf("err = %v, want ErrNoThumbnail", err)
	}
}

func TestDeriveUnknownCategory(t *testing.T) {
	d := testDeriver(&fakePreviewTool{})
	if _, err := d.Derive(context.Background(), "/p/document.pdf", "default"); !errors.Is(err, ErrNoThumbnail) {
		t.Errorf("err = %v, want ErrNoThumbnail", err)
	}
}

func TestDeriveStandardFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	src := imaging.New(1200, 800, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	if err := imaging.Save(src, path); err != nil {
		t.Fatal(err)
	}

	d := testDeriver(&fakePreviewTool{})
	img, err := d.Derive(context.Background(), path, "default")
	if err != nil {
		t.Fatal(err)
	}
	if longestSide(img) != 800 {
		t.Errorf("longest side = %d, want 800", longestSide(img))
	}
}

func TestDeriveStandardAppliesOrientation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	src := imaging.New(600, 300, color.NRGBA{R: 50, A: 255})
	if err := imaging.Save(src, path); err != nil {
		t.Fatal(err)
	}

	d := testDeriver(&fakePreviewTool{tags: map[string]interface{}{
		"EXIF:Orientation": "Rotate 90 CW",
	}})
	img, err := d.Derive(context.Background(), path, "default")
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 600 {
		t.Errorf("oriented dimensions = %dx%d, want 300x600", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "shot.nef")
	if err := imaging.Save(imaging.New(10, 10, color.NRGBA{A: 255}), imgPath+".png"); err != nil {
		t.Fatal(err)
	}
	// key() stats the source file; use the png we just wrote.
	srcPath := imgPath + ".png"

	c := NewCache(filepath.Join(dir, "cache"))
	if c == nil {
		t.Fatal("cache creation failed")
	}
	p := Profile{Name: "default", TargetSize: 100, Quality: 85}

	if got := c.Get(srcPath, p); got != nil {
		t.Error("cold cache should miss")
	}

	thumb := imaging.New(100, 60, color.NRGBA{R: 9, A: 255})
	c.Put(srcPath, p, thumb)

	got := c.Get(srcPath, p)
	if got == nil {
		t.Fatal("cache should hit after put")
	}
	if got.Bounds().Dx() != 100 || got.Bounds().Dy() != 60 {
		t.Errorf("cached dimensions = %dx%d", got.Bounds().Dx(), got.Bounds().Dy())
	}

	// A different profile is a different key.
	other := Profile{Name: "llm_vision", TargetSize: 1024}
	if c.Get(srcPath, other) != nil {
		t.Error("different profile must not share cache entries")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	if c.Get("/p/a.nef", Profile{}) != nil {
		t.Error("nil cache Get should miss")
	}
	c.Put("/p/a.nef", Profile{}, image.NewRGBA(image.Rect(0, 0, 1, 1)))
}
