package xmpsync

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"photo-catalog/internal/imagetypes"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// WriteMode selects the target channel(s) for DNG writes. Standard and
// RAW files have a single valid channel and ignore the mode.
type WriteMode string

const (
	ModeEmbeddedOnly WriteMode = "embedded_only"
	ModeSidecarOnly  WriteMode = "sidecar_only"
	ModeBoth         WriteMode = "both"
	ModeSmart        WriteMode = "smart"
)

// Owned hierarchical-subject branches.
const (
	taxonomyBranch = "AI|Taxonomy"
	geoBranch      = "Geo"
)

// writeTool is the tool surface the writer needs.
type writeTool interface {
	ReadTags(ctx context.Context, path string, tags []string) (map[string]interface{}, error)
	WriteTags(ctx context.Context, path string, assignments []string) error
}

// Writer performs XMP writes honoring the per-category channel rules.
type Writer struct {
	tool writeTool
}

// NewWriter creates a Writer over the given tool client.
func NewWriter(tool writeTool) *Writer {
	return &Writer{tool: tool}
}

// WriteXMPByFormat writes fields to the channel(s) valid for the file's
// category. For DNG with ModeBoth/ModeSmart, success is the OR of the
// two sub-writes. mergeKeywords applies to sidecar writes only: the
// existing flat keywords of the sidecar are united with the new ones
// instead of being replaced.
func (w *Writer) WriteXMPByFormat(ctx context.Context, path string, fields XMPFields, mode WriteMode, mergeKeywords bool) error {
	switch imagetypes.CategoryOf(path) {
	case imagetypes.CategoryStandard:
		return w.writeEmbedded(ctx, path, fields)

	case imagetypes.CategoryRaw:
		// The embedded channel of a RAW file is never written.
		return w.writeSidecar(ctx, path, fields, mergeKeywords)

	case imagetypes.CategoryDNG:
		switch mode {
		case ModeEmbeddedOnly:
			return w.writeEmbedded(ctx, path, fields)
		case ModeSidecarOnly:
			return w.writeSidecar(ctx, path, fields, mergeKeywords)
		case ModeBoth, ModeSmart, "":
			embErr := w.writeEmbedded(ctx, path, fields)
			sideErr := w.writeSidecar(ctx, path, fields, mergeKeywords)
			if embErr != nil && sideErr != nil {
				return fmt.Errorf("both channels failed: embedded: %v; sidecar: %v", embErr, sideErr)
			}
			if embErr != nil {
				logging.Warn("embedded write failed for %s, sidecar succeeded: %v", path, embErr)
			}
			if sideErr != nil {
				logging.Warn("sidecar write failed for %s, embedded succeeded: %v", path, sideErr)
			}
			return nil
		default:
			return fmt.Errorf("invalid write mode %q for DNG", mode)
		}
	}

	return fmt.Errorf("unsupported file category for %s", path)
}

func (w *Writer) writeEmbedded(ctx context.Context, path string, fields XMPFields) error {
	err := w.tool.WriteTags(ctx, path, fieldAssignments(fields, fields.Keywords))
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SyncWritesTotal.WithLabelValues("embedded", status).Inc()
	return err
}

func (w *Writer) writeSidecar(ctx context.Context, path string, fields XMPFields, mergeKeywords bool) error {
	sidecar := activeSidecarPath(path)

	keywords := fields.Keywords
	if mergeKeywords {
		if existing := w.readSidecarKeywords(ctx, sidecar); len(existing) > 0 {
			keywords = MergeKeywords(existing, fields.Keywords)
		}
	}

	err := w.tool.WriteTags(ctx, sidecar, fieldAssignments(fields, keywords))
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SyncWritesTotal.WithLabelValues("sidecar", status).Inc()
	return err
}

// activeSidecarPath returns the existing sidecar for path, or the
// canonical sidecar path when none exists yet (the tool creates it).
func activeSidecarPath(path string) string {
	for _, candidate := range imagetypes.SidecarCandidates(path) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return imagetypes.SidecarPath(path)
}

func (w *Writer) readSidecarKeywords(ctx context.Context, sidecar string) []string {
	if _, err := os.Stat(sidecar); err != nil {
		return nil
	}
	m, err := w.tool.ReadTags(ctx, sidecar, []string{"XMP-dc:Subject"})
	if err != nil {
		logging.Warn("could not read existing sidecar keywords from %s: %v", sidecar, err)
		return nil
	}
	if v, ok := m["XMP-dc:Subject"]; ok {
		return keywordsFromValue(v)
	}
	return nil
}

func keywordsFromValue(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// MergeKeywords unites existing sidecar keywords with new ones.
// Existing entries keep their insertion order after dropping malformed
// ones and anything hierarchical; new entries are appended with
// case-insensitive deduplication.
func MergeKeywords(existing, added []string) []string {
	merged := filterFlatKeywords(existing)
	seen := keywordSet(merged)
	for _, k := range added {
		k = strings.TrimSpace(k)
		if k == "" || seen[fold(k)] {
			continue
		}
		merged = append(merged, k)
		seen[fold(k)] = true
	}
	return merged
}

// fieldAssignments renders fields as tool tag assignments. keywords is
// passed separately so sidecar merges can substitute the list.
func fieldAssignments(fields XMPFields, keywords []string) []string {
	assignments := []string{
		"-XMP-dc:Title=" + fields.Title,
		"-XMP-dc:Description=" + fields.Description,
		"-XMP-dc:Subject=", // clear, then re-add below
	}
	for _, k := range keywords {
		assignments = append(assignments, "-XMP-dc:Subject+="+k)
	}
	if fields.Rating > 0 {
		assignments = append(assignments, "-XMP-xmp:Rating="+strconv.Itoa(fields.Rating))
	} else {
		assignments = append(assignments, "-XMP-xmp:Rating=")
	}
	assignments = append(assignments, "-XMP-xmp:Label="+fields.ColorLabel)
	return assignments
}

// WriteTaxonomyHierarchy emits the BioCLIP taxonomic chain into the
// hierarchical subject under the AI|Taxonomy branch. One entry is
// written per depth so hierarchy browsers see every level. Entries
// outside the owned branch are preserved verbatim; these writes never
// touch the flat dc:Subject.
func (w *Writer) WriteTaxonomyHierarchy(ctx context.Context, path string, taxonomy []string) error {
	if len(taxonomy) == 0 {
		return nil
	}
	entries := make([]string, 0, len(taxonomy))
	prefix := taxonomyBranch
	for _, level := range taxonomy {
		prefix = prefix + "|" + level
		entries = append(entries, prefix)
	}
	return w.writeHierarchical(ctx, path, taxonomyBranch, entries)
}

// WriteGeoHierarchy emits the pipe-separated geographic chain
// ("Geo|Europe|Italy|Veneto|Venice") under the Geo branch.
func (w *Writer) WriteGeoHierarchy(ctx context.Context, path, hierarchy string) error {
	hierarchy = strings.TrimSpace(hierarchy)
	if hierarchy == "" {
		return nil
	}
	if !strings.HasPrefix(hierarchy, geoBranch+"|") && hierarchy != geoBranch {
		hierarchy = geoBranch + "|" + hierarchy
	}
	return w.writeHierarchical(ctx, path, geoBranch, []string{hierarchy})
}

// writeHierarchical replaces the owned branch of the hierarchical
// subject, preserving all foreign entries. The target channel follows
// the category rules: sidecar for RAW and DNG, embedded for standard.
func (w *Writer) writeHierarchical(ctx context.Context, path, branch string, entries []string) error {
	target := path
	switch imagetypes.CategoryOf(path) {
	case imagetypes.CategoryRaw, imagetypes.CategoryDNG:
		target = activeSidecarPath(path)
	case imagetypes.CategoryStandard:
		// embedded
	default:
		return fmt.Errorf("unsupported file category for %s", path)
	}

	var preserved []string
	if _, err := os.Stat(target); err == nil {
		m, err := w.tool.ReadTags(ctx, target, []string{"XMP-lr:HierarchicalSubject"})
		if err != nil {
			return fmt.Errorf("hierarchical read of %s: %w", target, err)
		}
		for _, e := range keywordsFromValue(m["XMP-lr:HierarchicalSubject"]) {
			if e != branch && !strings.HasPrefix(e, branch+"|") {
				preserved = append(preserved, e)
			}
		}
	}

	assignments := []string{"-XMP-lr:HierarchicalSubject="}
	for _, e := range append(preserved, entries...) {
		assignments = append(assignments, "-XMP-lr:HierarchicalSubject+="+e)
	}
	return w.tool.WriteTags(ctx, target, assignments)
}
