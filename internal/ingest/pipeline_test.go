package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/config"
	"photo-catalog/internal/metadata"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/xmpsync"
)

// fakeTool stands in for the external metadata tool, serving canned
// responses for full extraction, tag reads and preview extraction.
type fakeTool struct {
	extract  map[string]map[string]interface{} // per path
	tags     map[string]map[string]interface{} // per path
	previews map[string][]byte                 // per preview tag
	written  map[string][][]string             // per path
}

func (f *fakeTool) ExtractJSON(_ context.Context, path string) (map[string]interface{}, error) {
	if m, ok := f.extract[path]; ok {
		return m, nil
	}
	return map[string]interface{}{}, nil
}

func (f *fakeTool) ReadTags(_ context.Context, path string, _ []string) (map[string]interface{}, error) {
	if m, ok := f.tags[path]; ok {
		return m, nil
	}
	return map[string]interface{}{}, nil
}

func (f *fakeTool) ExtractBinary(_ context.Context, _ string, tag string) ([]byte, error) {
	if data, ok := f.previews[tag]; ok {
		return data, nil
	}
	return nil, errors.New("tag not found")
}

func (f *fakeTool) WriteTags(_ context.Context, path string, assignments []string) error {
	if f.written == nil {
		f.written = make(map[string][][]string)
	}
	f.written[path] = append(f.written[path], assignments)
	return nil
}

// fakeEmbedder returns a fixed vector for any image.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (f *fakeEmbedder) EmbedImage(context.Context, image.Image) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

func testPipeline(t *testing.T, tool *fakeTool, providers Providers) (*Pipeline, *catalog.Store) {
	t.Helper()
	store, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.ImageProcessing.ConvertRaw = false
	cfg.ImageProcessing.RawProcessing.CacheThumbnails = false
	cfg.ImageProcessing.RawProcessing.FallbackThumbnail = true

	extractor := metadata.NewExtractor(tool)
	deriver := thumbnail.New(tool, cfg)
	analyzer := xmpsync.NewAnalyzer(extractor)
	writer := xmpsync.NewWriter(tool)
	engine := xmpsync.NewEngine(store, extractor, analyzer, writer, nil)

	return New(store, extractor, deriver, engine, providers, cfg), store
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
}

func jpegBlob(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, imaging.New(w, h, color.NRGBA{A: 255}), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIngestStandardFileWithEmbeddedXMP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IMG_0002.jpg")
	writeJPEG(t, path, 800, 600)

	tool := &fakeTool{
		extract: map[string]map[string]interface{}{path: {
			"EXIF:Make":  "Canon",
			"EXIF:Model": "EOS R5",
			"EXIF:ISO":   float64(400),
		}},
		tags: map[string]map[string]interface{}{path: {
			"XMP-dc:Title":  "Venice",
			"XMP-xmp:Label": "Green",
		}},
	}
	p, store := testPipeline(t, tool, Providers{})

	id, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Venice" || rec.ColorLabel != "Green" {
		t.Errorf("descriptive fields: title=%q label=%q", rec.Title, rec.ColorLabel)
	}
	if rec.CameraMake != "Canon" || rec.ISO != 400 {
		t.Errorf("technical fields: make=%q iso=%d", rec.CameraMake, rec.ISO)
	}
	if rec.IsRaw || rec.FileFormat != "jpg" {
		t.Errorf("format: is_raw=%v format=%q", rec.IsRaw, rec.FileFormat)
	}
	if rec.FileHash == "" {
		t.Error("fingerprint missing")
	}
	if rec.SyncState != string(xmpsync.StatePerfectSync) {
		t.Errorf("sync state = %q, want PERFECT_SYNC", rec.SyncState)
	}
}

func TestIngestRawWithSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IMG_0001.ORF")
	if err := os.WriteFile(path, []byte("raw sensor payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(dir, "IMG_0001.xmp")
	if err := os.WriteFile(sidecar, []byte("<xmp/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := &fakeTool{
		tags: map[string]map[string]interface{}{
			sidecar: {
				"XMP-dc:Subject": []interface{}{"sunset", "sea"},
				"XMP-xmp:Rating": float64(4),
			},
			// Embedded descriptive data that must never reach the record.
			path: {
				"XMP-dc:Title": "stale embedded title",
			},
		},
		previews: map[string][]byte{"PreviewImage": jpegBlob(t, 640, 480)},
	}
	p, store := testPipeline(t, tool, Providers{})

	id, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsRaw || rec.RawFormat != "orf" {
		t.Errorf("raw dispatch: is_raw=%v format=%q", rec.IsRaw, rec.RawFormat)
	}
	if len(rec.Tags) != 2 || rec.Tags[0] != "sunset" || rec.Tags[1] != "sea" {
		t.Errorf("tags = %v", rec.Tags)
	}
	if rec.LrRating != 4 {
		t.Errorf("rating = %d, want 4", rec.LrRating)
	}
	if rec.Title != "" {
		t.Errorf("embedded title leaked into a RAW record: %q", rec.Title)
	}
	if rec.SyncState != string(xmpsync.StatePerfectSync) {
		t.Errorf("sync state = %q, want PERFECT_SYNC", rec.SyncState)
	}
}

func TestIngestDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeJPEG(t, path, 100, 100)

	p, _ := testPipeline(t, &fakeTool{}, Providers{})
	if _, err := p.IngestFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, err := p.IngestFile(context.Background(), path); !errors.Is(err, catalog.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}

	// Same bytes under a different name: caught by the content hash.
	other := filepath.Join(dir, "b.jpg")
	data, _ := os.ReadFile(path)
	if err := os.WriteFile(other, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.IngestFile(context.Background(), other); !errors.Is(err, catalog.ErrDuplicate) {
		t.Errorf("hash duplicate err = %v, want ErrDuplicate", err)
	}
}

func TestIngestUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, _ := testPipeline(t, &fakeTool{}, Providers{})
	if _, err := p.IngestFile(context.Background(), path); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestIngestDetectsMonochromeWithoutProviders(t *testing.T) {
	dir := t.TempDir()
	gray := filepath.Join(dir, "gray.jpg")
	img := imaging.New(400, 300, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	if err := imaging.Save(img, gray); err != nil {
		t.Fatal(err)
	}
	colored := filepath.Join(dir, "colored.jpg")
	writeJPEG(t, colored, 400, 300)

	p, store := testPipeline(t, &fakeTool{}, Providers{})

	grayID, err := p.IngestFile(context.Background(), gray)
	if err != nil {
		t.Fatal(err)
	}
	coloredID, err := p.IngestFile(context.Background(), colored)
	if err != nil {
		t.Fatal(err)
	}

	grayRec, _ := store.GetByID(context.Background(), grayID)
	if !grayRec.IsMonochrome {
		t.Error("gray image should be flagged monochrome")
	}
	if !grayRec.Success {
		t.Errorf("monochrome detection degraded the record: %q", grayRec.ErrorMessage)
	}
	coloredRec, _ := store.GetByID(context.Background(), coloredID)
	if coloredRec.IsMonochrome {
		t.Error("colored image flagged monochrome")
	}
}

func TestIngestWithProviders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeJPEG(t, path, 800, 600)

	clip := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	p, store := testPipeline(t, &fakeTool{}, Providers{Clip: clip})

	id, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.ClipEmbedding) != 3 || !rec.EmbeddingGenerated {
		t.Errorf("embedding = %v generated=%v", rec.ClipEmbedding, rec.EmbeddingGenerated)
	}
	if !rec.Success {
		t.Errorf("record should be fully successful: %q", rec.ErrorMessage)
	}
}

func TestIngestProviderFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeJPEG(t, path, 800, 600)

	clip := &fakeEmbedder{err: errors.New("model offline")}
	p, store := testPipeline(t, &fakeTool{}, Providers{Clip: clip})

	id, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Success {
		t.Error("record should carry the enrichment failure")
	}
	if rec.ErrorMessage == "" {
		t.Error("error message missing")
	}
	if len(rec.ClipEmbedding) != 0 {
		t.Error("no embedding should be stored after a provider failure")
	}
}

func TestIngestDirSummary(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 200, 100)
	writeJPEG(t, filepath.Join(dir, "b.jpg"), 300, 100)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, store := testPipeline(t, &fakeTool{}, Providers{})
	summary, err := p.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 2 || summary.Succeeded != 2 {
		t.Errorf("summary = %+v", summary)
	}

	all, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("records = %d, want 2", len(all))
	}

	// A second run finds only duplicates.
	summary, err = p.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Duplicates != 2 || summary.Succeeded != 0 {
		t.Errorf("rerun summary = %+v", summary)
	}
}
