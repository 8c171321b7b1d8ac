// Package ingest drives the ingestion pipeline: resolve, extract,
// derive, enrich, insert. Batch runs fan out over a bounded worker
// pool; single-file ingestion is synchronous.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/config"
	"photo-catalog/internal/imagetypes"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metadata"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/provider"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/workers"
	"photo-catalog/internal/xmpsync"
)

// ErrUnsupported marks files outside the recognized extension sets.
var ErrUnsupported = errors.New("unsupported file type")

// Providers bundles the optional AI collaborators. Nil members simply
// skip the corresponding enrichment step.
type Providers struct {
	Clip       provider.EmbeddingProvider
	Dinov2     provider.EmbeddingProvider
	Scorer     provider.Scorer
	Classifier provider.Classifier
}

// Pipeline ingests image files into the catalog.
type Pipeline struct {
	store     *catalog.Store
	extractor *metadata.Extractor
	deriver   *thumbnail.Deriver
	sync      *xmpsync.Engine
	providers Providers
	workers   int
}

// New builds an ingestion pipeline. The worker count comes from
// image_processing.max_workers, sized for mixed CPU/IO load and
// overridable through the INGEST_WORKERS environment variable.
func New(store *catalog.Store, extractor *metadata.Extractor, deriver *thumbnail.Deriver, syncEngine *xmpsync.Engine, providers Providers, cfg *config.Config) *Pipeline {
	n := workers.ForMixed(cfg.ImageProcessing.MaxWorkers)
	metrics.IngestWorkers.Set(float64(n))
	return &Pipeline{
		store:     store,
		extractor: extractor,
		deriver:   deriver,
		sync:      syncEngine,
		providers: providers,
		workers:   n,
	}
}

// Summary aggregates the outcome of a batch run.
type Summary struct {
	Processed  int
	Succeeded  int
	Duplicates int
	Skipped    int
	Failed     int
}

// IngestFile ingests a single file and returns the new record id.
// Duplicates surface as catalog.ErrDuplicate, unrecognized extensions
// as ErrUnsupported. Enrichment failures (thumbnails, providers) do
// not abort the insert; they are recorded on the record itself.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	id, err := p.ingestFile(ctx, path)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.IngestFilesTotal.WithLabelValues("success").Inc()
	case errors.Is(err, catalog.ErrDuplicate):
		metrics.IngestFilesTotal.WithLabelValues("duplicate").Inc()
	case errors.Is(err, ErrUnsupported):
		metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
	default:
		metrics.IngestFilesTotal.WithLabelValues("error").Inc()
	}
	return id, err
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) (int64, error) {
	category := imagetypes.CategoryOf(path)
	if category == imagetypes.CategoryUnknown {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	name := filepath.Base(abs)

	if exists, err := p.store.ExistsFilename(ctx, name); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("%w: filename %s", catalog.ErrDuplicate, name)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", abs, err)
	}

	hash, err := imagetypes.Fingerprint(abs)
	if err != nil {
		return 0, err
	}
	if exists, err := p.store.ExistsHash(ctx, hash); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("%w: hash %s", catalog.ErrDuplicate, hash)
	}

	procStart := time.Now()
	rec := p.buildRecord(ctx, abs, name, category, hash, info.Size())
	p.enrich(ctx, abs, rec)
	rec.ProcessingTime = time.Since(procStart).Seconds()

	id, err := p.store.Insert(ctx, rec)
	if err != nil {
		return 0, err
	}

	if p.sync != nil {
		if err := p.sync.RefreshSyncState(ctx, id); err != nil {
			logging.Warn("initial sync analysis failed for %s: %v", name, err)
		}
	}
	return id, nil
}

// buildRecord assembles the record from resolver output, normalized
// technical metadata and the format-aware descriptive XMP read.
func (p *Pipeline) buildRecord(ctx context.Context, abs, name string, category imagetypes.Category, hash string, size int64) *catalog.ImageRecord {
	n := p.extractor.Extract(ctx, abs)

	rec := &catalog.ImageRecord{
		Filename:   name,
		Filepath:   abs,
		FileHash:   hash,
		FileSize:   size,
		FileFormat: imagetypes.Ext(abs),
		IsRaw:      category == imagetypes.CategoryRaw,
		RawFormat:  imagetypes.RawFormat(abs),

		Width:  n.Width,
		Height: n.Height,

		CameraMake:          n.CameraMake,
		CameraModel:         n.CameraModel,
		LensModel:           n.LensModel,
		FocalLength:         n.FocalLength,
		FocalLength35mm:     n.FocalLength35mm,
		Aperture:            n.Aperture,
		ShutterSpeed:        n.ShutterSpeed,
		ShutterSpeedDecimal: n.ShutterDecimal,
		ISO:                 n.ISO,
		ExposureMode:        n.ExposureMode,
		ExposureBias:        n.ExposureBias,
		MeteringMode:        n.MeteringMode,
		WhiteBalance:        n.WhiteBalance,
		FlashUsed:           n.FlashUsed,
		FlashMode:           n.FlashMode,
		ColorSpace:          n.ColorSpace,
		Orientation:         n.Orientation,

		DateTimeOriginal:  n.DateTimeOriginal,
		DateTimeDigitized: n.DateTimeDigitized,
		DateTimeModified:  n.DateTimeModified,

		GPSLatitude:  n.GPSLatitude,
		GPSLongitude: n.GPSLongitude,
		GPSAltitude:  n.GPSAltitude,
		GPSDirection: n.GPSDirection,

		Artist:    n.Artist,
		Copyright: n.Copyright,
		Software:  n.Software,

		AppVersion: config.Version,
		Success:    true,
	}

	if len(n.Raw) > 0 {
		if data, err := json.Marshal(n.Raw); err == nil {
			rec.ExifJSON = string(data)
		}
	}

	// Descriptive fields follow the format-aware read policy, not the
	// full metadata dump: a RAW file's embedded stream must not leak
	// into the record.
	m, err := p.extractor.ReadXMPByFormat(ctx, abs)
	if err != nil {
		logging.Warn("descriptive XMP read failed for %s: %v", name, err)
		return rec
	}
	f := xmpsync.FieldsFromMap(m)
	rec.Title = f.Title
	rec.Description = f.Description
	rec.Tags = f.Keywords
	rec.LrRating = f.Rating
	rec.ColorLabel = f.ColorLabel
	return rec
}

// enrich detects monochrome and runs the AI collaborators over derived
// thumbnails. Failures degrade the record instead of aborting the
// ingest.
func (p *Pipeline) enrich(ctx context.Context, abs string, rec *catalog.ImageRecord) {
	fail := func(stage string, err error) {
		logging.Warn("%s failed for %s: %v", stage, rec.Filename, err)
		rec.Success = false
		if rec.ErrorMessage == "" {
			rec.ErrorMessage = stage + ": " + err.Error()
		}
	}

	// Monochrome detection runs once per ingest regardless of which
	// providers are wired.
	if img, err := p.deriver.Derive(ctx, abs, "metadata_extraction"); err != nil {
		fail("monochrome detection", err)
	} else {
		rec.IsMonochrome = metadata.IsMonochrome(img)
	}

	if p.providers.Clip != nil {
		img, err := p.deriver.Derive(ctx, abs, "clip_embedding")
		if err != nil {
			fail("clip thumbnail", err)
		} else {
			vec, err := p.providers.Clip.EmbedImage(ctx, img)
			if err != nil {
				fail("clip embedding", err)
			} else {
				rec.ClipEmbedding = vec
				rec.EmbeddingGenerated = true
			}
		}
	}

	if p.providers.Dinov2 != nil {
		img, err := p.deriver.Derive(ctx, abs, "dinov2_embedding")
		if err != nil {
			fail("dinov2 thumbnail", err)
		} else if vec, err := p.providers.Dinov2.EmbedImage(ctx, img); err != nil {
			fail("dinov2 embedding", err)
		} else {
			rec.Dinov2Embedding = vec
		}
	}

	if p.providers.Scorer != nil {
		img, err := p.deriver.Derive(ctx, abs, "aesthetic_score")
		if err != nil {
			fail("score thumbnail", err)
		} else {
			if s, err := p.providers.Scorer.AestheticScore(ctx, img); err != nil {
				fail("aesthetic score", err)
			} else {
				rec.AestheticScore = s
			}
			if s, err := p.providers.Scorer.TechnicalScore(ctx, img); err != nil {
				fail("technical score", err)
			} else {
				rec.TechnicalScore = s
			}
		}
	}

	if p.providers.Classifier != nil {
		img, err := p.deriver.Derive(ctx, abs, "bioclip_classification")
		if err != nil {
			fail("classification thumbnail", err)
		} else if taxonomy, _, err := p.providers.Classifier.Classify(ctx, img); err != nil {
			fail("classification", err)
		} else {
			rec.BioclipTaxonomy = taxonomy
		}
	}
}

// IngestDir walks dir recursively and ingests every recognized image
// file over the worker pool. Cancellation stops scheduling new files;
// in-flight files finish. The summary always reflects the files that
// were actually attempted.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (Summary, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imagetypes.CategoryOf(path) == imagetypes.CategoryUnknown {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("walk %s: %w", dir, err)
	}

	logging.Info("ingesting %d files from %s with %d workers", len(paths), dir, p.workers)

	var mu sync.Mutex
	summary := Summary{}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, path := range paths {
		if gCtx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			_, err := p.IngestFile(gCtx, path)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch {
			case err == nil:
				summary.Succeeded++
			case errors.Is(err, catalog.ErrDuplicate):
				summary.Duplicates++
			case errors.Is(err, ErrUnsupported):
				summary.Skipped++
			default:
				summary.Failed++
				logging.Error("ingest failed for %s: %v", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}
