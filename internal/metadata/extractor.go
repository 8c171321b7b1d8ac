package metadata

import (
	"context"
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"photo-catalog/internal/imagetypes"
	"photo-catalog/internal/logging"
)

// ToolClient is the subset of the external metadata tool used for reads.
type ToolClient interface {
	ExtractJSON(ctx context.Context, path string) (map[string]interface{}, error)
	ReadTags(ctx context.Context, path string, tags []string) (map[string]interface{}, error)
}

// DescriptiveTags are the XMP fields the catalog synchronizes.
var DescriptiveTags = []string{
	"XMP-dc:Subject",
	"XMP-dc:Title",
	"XMP-dc:Description",
	"XMP-xmp:Rating",
	"XMP-lr:Rating",
	"XMP-xmp:Label",
	"XMP-lr:Label",
	"XMP-lr:HierarchicalSubject",
	"XMP-photoshop:Instructions",
}

// Extractor produces normalized metadata records.
type Extractor struct {
	tool ToolClient
}

// NewExtractor creates an Extractor over the given tool client.
func NewExtractor(tool ToolClient) *Extractor {
	return &Extractor{tool: tool}
}

// Extract reads all metadata of path and normalizes it. It never fails:
// when the external tool errors or times out a partial record is returned
// and a warning is logged. For standard files a native EXIF fallback fills
// in basic capture fields.
func (e *Extractor) Extract(ctx context.Context, path string) *Normalized {
	raw, err := e.tool.ExtractJSON(ctx, path)
	if err != nil {
		logging.Warn("metadata extraction failed for %s: %v", path, err)
		if n := fallbackExtract(path); n != nil {
			return n
		}
		return &Normalized{}
	}
	return Normalize(raw)
}

// ReadXMPEmbedded reads the descriptive XMP fields embedded in the image
// file itself.
func (e *Extractor) ReadXMPEmbedded(ctx context.Context, path string) (map[string]interface{}, error) {
	return e.tool.ReadTags(ctx, path, DescriptiveTags)
}

// ReadXMPSidecar reads the descriptive XMP fields from the sidecar
// adjacent to path. A nil map with nil error means no sidecar exists.
func (e *Extractor) ReadXMPSidecar(ctx context.Context, path string) (map[string]interface{}, error) {
	for _, candidate := range imagetypes.SidecarCandidates(path) {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		m, err := e.tool.ReadTags(ctx, candidate, DescriptiveTags)
		if err != nil {
			return nil, fmt.Errorf("sidecar read %s: %w", candidate, err)
		}
		if m == nil {
			m = map[string]interface{}{}
		}
		return m, nil
	}
	return nil, nil
}

// ReadXMPByFormat applies the format-aware read policy:
//
//	standard: embedded only
//	raw:      sidecar only (the embedded stream is deliberately ignored)
//	dng:      embedded merged with sidecar, sidecar wins on conflict
func (e *Extractor) ReadXMPByFormat(ctx context.Context, path string) (map[string]interface{}, error) {
	switch imagetypes.CategoryOf(path) {
	case imagetypes.CategoryStandard:
		return e.ReadXMPEmbedded(ctx, path)

	case imagetypes.CategoryRaw:
		m, err := e.ReadXMPSidecar(ctx, path)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return map[string]interface{}{}, nil
		}
		return m, nil

	case imagetypes.CategoryDNG:
		embedded, err := e.ReadXMPEmbedded(ctx, path)
		if err != nil {
			embedded = map[string]interface{}{}
		}
		sidecar, err := e.ReadXMPSidecar(ctx, path)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]interface{}, len(embedded)+len(sidecar))
		for k, v := range embedded {
			merged[k] = v
		}
		for k, v := range sidecar {
			merged[k] = v
		}
		return merged, nil
	}

	return nil, fmt.Errorf("unsupported file category for %s", path)
}

// fallbackExtract decodes basic capture fields with the native EXIF
// parser when the external tool is unavailable. Only JPEG/TIFF containers
// are supported; other formats return nil.
func fallbackExtract(path string) *Normalized {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}

	n := &Normalized{}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if o, err := tag.Int(0); err == nil && o >= 1 && o <= 8 {
			n.Orientation = o
		}
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			n.CameraMake = s
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			n.CameraModel = s
		}
	}
	if tag, err := x.Get(exif.DateTimeOriginal); err == nil {
		if s, err := tag.StringVal(); err == nil {
			n.DateTimeOriginal = NormalizeDateTime(s)
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if iso, err := tag.Int(0); err == nil {
			n.ISO = iso
		}
	}
	if tag, err := x.Get(exif.PixelXDimension); err == nil {
		if w, err := tag.Int(0); err == nil {
			n.Width = w
		}
	}
	if tag, err := x.Get(exif.PixelYDimension); err == nil {
		if h, err := tag.Int(0); err == nil {
			n.Height = h
		}
	}

	logging.Debug("used native EXIF fallback for %s", path)
	return n
}
