// Package thumbnail derives in-memory images of a requested target
// size from standard, RAW and DNG files, steered by named optimization
// profiles. RAW derivation walks a cascade of embedded previews before
// falling back to a full decode.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"photo-catalog/internal/config"
	"photo-catalog/internal/imagetypes"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metadata"
	"photo-catalog/internal/metrics"
)

// ErrNoThumbnail means every strategy in the cascade failed; the caller
// decides what to show instead.
var ErrNoThumbnail = errors.New("no thumbnail could be derived")

// previewTool is the external tool surface the deriver needs.
type previewTool interface {
	ExtractBinary(ctx context.Context, path, tag string) ([]byte, error)
	ReadTags(ctx context.Context, path string, tags []string) (map[string]interface{}, error)
}

// Preview tag cascade stages for RAW/DNG files. Order matters.
var (
	primaryPreviewTags    = []string{"PreviewImage"}
	secondaryPreviewTags  = []string{"JpgFromRaw", "OtherImage"}
	embeddedThumbnailTags = []string{"ThumbnailImage"}
	lastResortTags        = []string{"LargePreview", "SubIFD:PreviewImage", "OriginalRawImage", "PreviewTIFF", "RawThumbnailImage"}
)

// Deriver produces profile-sized thumbnails.
type Deriver struct {
	tool       previewTool
	profiles   map[string]Profile
	cache      *Cache
	rawTimeout time.Duration
	fallback   bool // return undersized previews rather than nothing
	useVips    bool
}

// New creates a Deriver from configuration. tool provides binary
// preview extraction for RAW files.
func New(tool previewTool, cfg *config.Config) *Deriver {
	raw := cfg.ImageProcessing.RawProcessing

	var cache *Cache
	if raw.CacheThumbnails {
		cache = NewCache(raw.CacheDir)
	}

	return &Deriver{
		tool:       tool,
		profiles:   Profiles(cfg.ImageOptimization),
		cache:      cache,
		rawTimeout: cfg.RawTimeout(),
		fallback:   raw.FallbackThumbnail,
		useVips:    cfg.ImageProcessing.ConvertRaw,
	}
}

// Profile resolves a profile by name, falling back to "default".
func (d *Deriver) Profile(name string) Profile {
	if p, ok := d.profiles[name]; ok {
		return p
	}
	return d.profiles["default"]
}

// Derive produces an oriented, RGB, profile-sized image for path.
// Returns ErrNoThumbnail when every strategy fails.
func (d *Deriver) Derive(ctx context.Context, path, profileName string) (image.Image, error) {
	p := d.Profile(profileName)
	start := time.Now()

	img, err := d.derive(ctx, path, p)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ThumbnailDerivationsTotal.WithLabelValues(p.Name, status).Inc()
	metrics.ThumbnailDerivationDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
	return img, err
}

func (d *Deriver) derive(ctx context.Context, path string, p Profile) (image.Image, error) {
	switch imagetypes.CategoryOf(path) {
	case imagetypes.CategoryStandard:
		return d.deriveStandard(ctx, path, p)
	case imagetypes.CategoryRaw, imagetypes.CategoryDNG:
		return d.deriveRaw(ctx, path, p)
	}
	return nil, ErrNoThumbnail
}

func (d *Deriver) deriveStandard(ctx context.Context, path string, p Profile) (image.Image, error) {
	img, err := decodeFile(path, p.TargetSize, d.useVips)
	if err != nil {
		return nil, err
	}
	img = applyOrientation(img, d.fileOrientation(ctx, path))
	return resizeToProfile(img, p), nil
}

func (d *Deriver) deriveRaw(ctx context.Context, path string, p Profile) (image.Image, error) {
	if img := d.cache.Get(path, p); img != nil {
		return img, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.rawTimeout)
	defer cancel()

	img, ownOrientation := d.runCascade(ctx, path, p)
	if img == nil {
		return nil, ErrNoThumbnail
	}

	// The preview's own orientation tag wins over the file's when the
	// preview declares a non-default one.
	orientation := ownOrientation
	if orientation <= 1 {
		orientation = d.fileOrientation(ctx, path)
	}
	img = applyOrientation(img, orientation)
	img = resizeToProfile(img, p)

	d.cache.Put(path, p, img)
	return img, nil
}

// runCascade walks the preview extraction stages and returns the first
// sufficiently large image plus the orientation declared by the preview
// itself (0 when none). With the fallback flag set, an undersized
// candidate beats returning nothing.
func (d *Deriver) runCascade(ctx context.Context, path string, p Profile) (image.Image, int) {
	minSide := p.minAcceptableSide()
	var best image.Image
	var bestOrientation int

	try := func(tags []string) (image.Image, int) {
		for _, tag := range tags {
			if ctx.Err() != nil {
				return nil, 0
			}
			data, err := d.tool.ExtractBinary(ctx, path, tag)
			if err != nil || len(data) == 0 {
				continue
			}
			img, err := decodeBytes(data)
			if err != nil {
				logging.Debug("preview tag %s of %s undecodable: %v", tag, path, err)
				continue
			}
			orientation := previewOrientation(data)
			if longestSide(img) >= minSide {
				return img, orientation
			}
			if best == nil || longestSide(img) > longestSide(best) {
				best, bestOrientation = img, orientation
			}
		}
		return nil, 0
	}

	for _, stage := range [][]string{primaryPreviewTags, secondaryPreviewTags, embeddedThumbnailTags} {
		if img, o := try(stage); img != nil {
			return img, o
		}
	}

	// Full pipeline decode, for profiles that demand native resolution.
	if p.Method == MethodRawpyFull {
		if img, err := decodeFile(path, p.TargetSize, d.useVips); err == nil {
			return img, 0
		}
	}

	if img, o := try(lastResortTags); img != nil {
		return img, o
	}

	if best != nil && d.fallback {
		logging.Debug("using undersized preview (%d px) for %s", longestSide(best), path)
		return best, bestOrientation
	}
	return nil, 0
}

// fileOrientation reads the EXIF orientation of the original file via
// the external tool; 0 means unknown.
func (d *Deriver) fileOrientation(ctx context.Context, path string) int {
	m, err := d.tool.ReadTags(ctx, path, []string{"Orientation"})
	if err != nil {
		return 0
	}
	if v, ok := metadata.FirstValue(m, "Orientation"); ok {
		return metadata.ParseOrientation(v)
	}
	return 0
}

// previewOrientation reads the orientation tag embedded in the
// extracted preview blob itself; 0 when absent.
func previewOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 0
	}
	return o
}
