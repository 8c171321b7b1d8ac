package xmpsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeWriteTool records write assignments per path and serves canned
// reads.
type fakeWriteTool struct {
	reads    map[string]map[string]interface{}
	writes   map[string][][]string
	writeErr map[string]error
}

func newFakeWriteTool() *fakeWriteTool {
	return &fakeWriteTool{
		reads:    map[string]map[string]interface{}{},
		writes:   map[string][][]string{},
		writeErr: map[string]error{},
	}
}

func (f *fakeWriteTool) ReadTags(_ context.Context, path string, _ []string) (map[string]interface{}, error) {
	return f.reads[path], nil
}

func (f *fakeWriteTool) WriteTags(_ context.Context, path string, assignments []string) error {
	if err := f.writeErr[path]; err != nil {
		return err
	}
	f.writes[path] = append(f.writes[path], assignments)
	return nil
}

func (f *fakeWriteTool) wrotePaths() []string {
	var out []string
	for p := range f.writes {
		out = append(out, p)
	}
	return out
}

func hasAssignment(assignments []string, want string) bool {
	for _, a := range assignments {
		if a == want {
			return true
		}
	}
	return false
}

func TestMergeKeywords(t *testing.T) {
	existing := []string{"sunset", "AI|Taxonomy|Animalia", "Geo|Europe", "bad|entry", "Sea", ""}
	added := []string{"sea", "harbor", "sunset"}

	got := MergeKeywords(existing, added)
	want := []string{"sunset", "Sea", "harbor"}
	if len(got) != len(want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("merged = %v, want %v", got, want)
			break
		}
	}
}

func TestWriteStandardGoesEmbedded(t *testing.T) {
	tool := newFakeWriteTool()
	w := NewWriter(tool)

	fields := XMPFields{Title: "Venice", Keywords: []string{"canal"}, Rating: 4}
	if err := w.WriteXMPByFormat(context.Background(), "/p/a.jpg", fields, "", false); err != nil {
		t.Fatal(err)
	}

	writes := tool.writes["/p/a.jpg"]
	if len(writes) != 1 {
		t.Fatalf("writes to image = %d, want 1 (paths: %v)", len(writes), tool.wrotePaths())
	}
	if !hasAssignment(writes[0], "-XMP-dc:Title=Venice") {
		t.Errorf("missing title assignment: %v", writes[0])
	}
	if !hasAssignment(writes[0], "-XMP-dc:Subject+=canal") {
		t.Errorf("missing keyword assignment: %v", writes[0])
	}
	if !hasAssignment(writes[0], "-XMP-xmp:Rating=4") {
		t.Errorf("missing rating assignment: %v", writes[0])
	}
}

func TestWriteRawGoesSidecarOnly(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "shot.nef")
	if err := os.WriteFile(rawPath, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := newFakeWriteTool()
	w := NewWriter(tool)

	if err := w.WriteXMPByFormat(context.Background(), rawPath, XMPFields{Title: "x"}, "", false); err != nil {
		t.Fatal(err)
	}

	if len(tool.writes[rawPath]) != 0 {
		t.Error("RAW file itself must never be written")
	}
	sidecar := filepath.Join(dir, "shot.xmp")
	if len(tool.writes[sidecar]) != 1 {
		t.Errorf("sidecar writes = %d (paths: %v)", len(tool.writes[sidecar]), tool.wrotePaths())
	}
}

func TestWriteSidecarMergesKeywords(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "shot.nef")
	sidecar := filepath.Join(dir, "shot.xmp")
	if err := os.WriteFile(rawPath, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sidecar, []byte("<xmp/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := newFakeWriteTool()
	tool.reads[sidecar] = map[string]interface{}{
		"XMP-dc:Subject": []interface{}{"existing", "AI|Taxonomy|Animalia"},
	}
	w := NewWriter(tool)

	fields := XMPFields{Keywords: []string{"new", "Existing"}}
	if err := w.WriteXMPByFormat(context.Background(), rawPath, fields, "", true); err != nil {
		t.Fatal(err)
	}

	writes := tool.writes[sidecar]
	if len(writes) != 1 {
		t.Fatalf("sidecar writes = %d", len(writes))
	}
	if !hasAssignment(writes[0], "-XMP-dc:Subject+=existing") {
		t.Errorf("existing keyword lost: %v", writes[0])
	}
	if !hasAssignment(writes[0], "-XMP-dc:Subject+=new") {
		t.Errorf("new keyword missing: %v", writes[0])
	}
	if hasAssignment(writes[0], "-XMP-dc:Subject+=Existing") {
		t.Errorf("case-duplicate keyword not deduplicated: %v", writes[0])
	}
	if hasAssignment(writes[0], "-XMP-dc:Subject+=AI|Taxonomy|Animalia") {
		t.Errorf("hierarchical entry leaked into flat keywords: %v", writes[0])
	}
}

func TestWriteDNGBothIsOrOverChannels(t *testing.T) {
	dir := t.TempDir()
	dngPath := filepath.Join(dir, "shot.dng")
	if err := os.WriteFile(dngPath, []byte("dng"), 0o644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(dir, "shot.xmp")

	// Embedded write fails, sidecar succeeds: overall success.
	tool := newFakeWriteTool()
	tool.writeErr[dngPath] = errors.New("locked")
	w := NewWriter(tool)
	if err := w.WriteXMPByFormat(context.Background(), dngPath, XMPFields{Title: "x"}, ModeBoth, false); err != nil {
		t.Errorf("one successful channel should be enough: %v", err)
	}
	if len(tool.writes[sidecar]) != 1 {
		t.Error("sidecar channel was not written")
	}

	// Both fail: overall failure.
	tool = newFakeWriteTool()
	tool.writeErr[dngPath] = errors.New("locked")
	tool.writeErr[sidecar] = errors.New("read-only")
	w = NewWriter(tool)
	if err := w.WriteXMPByFormat(context.Background(), dngPath, XMPFields{Title: "x"}, ModeBoth, false); err == nil {
		t.Error("both channels failing should fail the write")
	}
}

func TestWriteDNGExplicitModes(t *testing.T) {
	dir := t.TempDir()
	dngPath := filepath.Join(dir, "shot.dng")
	if err := os.WriteFile(dngPath, []byte("dng"), 0o644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(dir, "shot.xmp")

	tool := newFakeWriteTool()
	w := NewWriter(tool)

	if err := w.WriteXMPByFormat(context.Background(), dngPath, XMPFields{Title: "x"}, ModeEmbeddedOnly, false); err != nil {
		t.Fatal(err)
	}
	if len(tool.writes[dngPath]) != 1 || len(tool.writes[sidecar]) != 0 {
		t.Errorf("embedded_only touched wrong channels: %v", tool.wrotePaths())
	}

	tool = newFakeWriteTool()
	w = NewWriter(tool)
	if err := w.WriteXMPByFormat(context.Background(), dngPath, XMPFields{Title: "x"}, ModeSidecarOnly, false); err != nil {
		t.Fatal(err)
	}
	if len(tool.writes[dngPath]) != 0 || len(tool.writes[sidecar]) != 1 {
		t.Errorf("sidecar_only touched wrong channels: %v", tool.wrotePaths())
	}

	if err := w.WriteXMPByFormat(context.Background(), dngPath, XMPFields{}, WriteMode("bogus"), false); err == nil {
		t.Error("invalid mode should fail")
	}
}

func TestWriteTaxonomyHierarchyPreservesForeignBranches(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(imgPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := newFakeWriteTool()
	tool.reads[imgPath] = map[string]interface{}{
		"XMP-lr:HierarchicalSubject": []interface{}{
			"Places|Italy|Venice",
			"AI|Taxonomy|Plantae|Rosales", // owned, must be replaced
		},
	}
	w := NewWriter(tool)

	if err := w.WriteTaxonomyHierarchy(context.Background(), imgPath, []string{"Animalia", "Chordata"}); err != nil {
		t.Fatal(err)
	}

	writes := tool.writes[imgPath]
	if len(writes) != 1 {
		t.Fatalf("writes = %d", len(writes))
	}
	a := writes[0]
	if !hasAssignment(a, "-XMP-lr:HierarchicalSubject+=Places|Italy|Venice") {
		t.Errorf("foreign branch lost: %v", a)
	}
	if hasAssignment(a, "-XMP-lr:HierarchicalSubject+=AI|Taxonomy|Plantae|Rosales") {
		t.Errorf("owned branch not replaced: %v", a)
	}
	if !hasAssignment(a, "-XMP-lr:HierarchicalSubject+=AI|Taxonomy|Animalia") ||
		!hasAssignment(a, "-XMP-lr:HierarchicalSubject+=AI|Taxonomy|Animalia|Chordata") {
		t.Errorf("taxonomy levels missing: %v", a)
	}
	// Hierarchical writes never touch the flat keyword list.
	for _, assignment := range a {
		if strings.HasPrefix(assignment, "-XMP-dc:Subject") {
			t.Errorf("dc:Subject touched by hierarchical write: %v", a)
		}
	}
}

func TestWriteGeoHierarchy(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "shot.orf")
	if err := os.WriteFile(rawPath, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(dir, "shot.xmp")

	tool := newFakeWriteTool()
	w := NewWriter(tool)

	if err := w.WriteGeoHierarchy(context.Background(), rawPath, "Geo|Europe|Italy|Veneto|Venice"); err != nil {
		t.Fatal(err)
	}
	writes := tool.writes[sidecar]
	if len(writes) != 1 {
		t.Fatalf("geo write should target the sidecar, paths: %v", tool.wrotePaths())
	}
	if !hasAssignment(writes[0], "-XMP-lr:HierarchicalSubject+=Geo|Europe|Italy|Veneto|Venice") {
		t.Errorf("geo entry missing: %v", writes[0])
	}

	// Empty hierarchy is a no-op.
	if err := w.WriteGeoHierarchy(context.Background(), rawPath, "  "); err != nil {
		t.Fatal(err)
	}
	if len(tool.writes[sidecar]) != 1 {
		t.Error("empty hierarchy should not write")
	}
}
