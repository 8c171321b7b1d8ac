package xmpsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/imagetypes"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// ErrBusy is returned when an import or export is already running.
var ErrBusy = errors.New("an XMP transfer is already in progress")

// importReader resolves the active XMP source for a file following the
// per-category read policy.
type importReader interface {
	ReadXMPByFormat(ctx context.Context, path string) (map[string]interface{}, error)
}

// BadgeNotifier enqueues records for asynchronous badge refresh.
type BadgeNotifier interface {
	Request(id int64)
}

// Engine ties the analyzer, writer and store together and implements
// the directional transfer protocols.
type Engine struct {
	store    *catalog.Store
	reader   importReader
	analyzer *Analyzer
	writer   *Writer
	badges   BadgeNotifier

	importing atomic.Bool
	exporting atomic.Bool
}

// NewEngine creates an Engine. The store's mutation hook is wired to
// the analyzer cache so that any record mutation invalidates its
// cached sync analysis. badges may be nil.
func NewEngine(store *catalog.Store, reader importReader, analyzer *Analyzer, writer *Writer, badges BadgeNotifier) *Engine {
	e := &Engine{
		store:    store,
		reader:   reader,
		analyzer: analyzer,
		writer:   writer,
		badges:   badges,
	}
	store.SetMutationHook(analyzer.Invalidate)
	return e
}

// SetBadges installs the badge notifier after construction. The badge
// scheduler consumes the engine as its refresher, so the two are wired
// in two steps.
func (e *Engine) SetBadges(badges BadgeNotifier) {
	e.badges = badges
}

// Analyzer exposes the engine's analyzer.
func (e *Engine) Analyzer() *Analyzer { return e.analyzer }

// Writer exposes the engine's writer.
func (e *Engine) Writer() *Writer { return e.writer }

func (e *Engine) requestBadge(id int64) {
	if e.badges != nil {
		e.badges.Request(id)
	}
}

// ImportXMP transfers XMP truth into the catalog for the given records
// and returns the number imported. Per-record failures are logged and
// skipped; re-entrant invocations fail with ErrBusy.
func (e *Engine) ImportXMP(ctx context.Context, ids []int64) (int, error) {
	if !e.importing.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer e.importing.Store(false)

	imported := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if err := e.importOne(ctx, id); err != nil {
			logging.Warn("XMP import of record %d failed: %v", id, err)
			continue
		}
		imported++
		metrics.SyncImportsTotal.Inc()
	}
	return imported, nil
}

func (e *Engine) importOne(ctx context.Context, id int64) error {
	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %d not found", id)
	}

	m, err := e.reader.ReadXMPByFormat(ctx, rec.Filepath)
	if err != nil {
		return fmt.Errorf("XMP read of %s: %w", rec.Filepath, err)
	}
	fields := FieldsFromMap(m)

	if _, err := e.store.UpdateTitle(ctx, id, fields.Title); err != nil {
		return err
	}
	if _, err := e.store.UpdateDescription(ctx, id, fields.Description); err != nil {
		return err
	}
	if _, err := e.store.UpdateRating(ctx, id, fields.Rating); err != nil {
		return err
	}
	if _, err := e.store.UpdateColorLabel(ctx, id, fields.ColorLabel); err != nil {
		return err
	}
	if _, err := e.store.UpdateTags(ctx, id, fields.Keywords); err != nil {
		return err
	}

	e.analyzer.Invalidate(id)
	e.requestBadge(id)
	return nil
}

// ExportXMP transfers catalog truth into XMP for the given records and
// returns the number exported. The record is re-read from the store
// before each write so stale in-memory copies cannot leak out.
func (e *Engine) ExportXMP(ctx context.Context, ids []int64, mode WriteMode) (int, error) {
	if !e.exporting.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer e.exporting.Store(false)

	exported := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := e.exportOne(ctx, id, mode); err != nil {
			logging.Warn("XMP export of record %d failed: %v", id, err)
			continue
		}
		exported++
		metrics.SyncExportsTotal.Inc()
	}
	return exported, nil
}

func (e *Engine) exportOne(ctx context.Context, id int64, mode WriteMode) error {
	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %d not found", id)
	}

	fields := FieldsFromRecord(rec)
	if err := e.writer.WriteXMPByFormat(ctx, rec.Filepath, fields, mode, false); err != nil {
		return err
	}
	if len(rec.BioclipTaxonomy) > 0 {
		if err := e.writer.WriteTaxonomyHierarchy(ctx, rec.Filepath, rec.BioclipTaxonomy); err != nil {
			return err
		}
	}
	if rec.GeoHierarchy != "" {
		if err := e.writer.WriteGeoHierarchy(ctx, rec.Filepath, rec.GeoHierarchy); err != nil {
			return err
		}
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = e.store.UpdateSyncState(ctx, id, catalog.SyncFields{
		State:           string(StatePerfectSync),
		LastXMPMtime:    sidecarMtime(rec.Filepath),
		LastSyncAt:      now,
		LastSyncCheckAt: now,
		LastImportMtime: rec.LastImportMtime,
	})
	if err != nil {
		return err
	}

	e.analyzer.Invalidate(id)
	e.requestBadge(id)
	return nil
}

// RefreshSyncState recomputes and persists the sync state of one
// record. This is the unit of work behind badge refreshes.
func (e *Engine) RefreshSyncState(ctx context.Context, id int64) error {
	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %d not found", id)
	}

	e.analyzer.Invalidate(id)
	an := e.analyzer.AnalyzeRecord(ctx, rec)

	_, err = e.store.UpdateSyncState(ctx, id, catalog.SyncFields{
		State:           string(an.State),
		LastXMPMtime:    sidecarMtime(rec.Filepath),
		LastSyncAt:      rec.LastSyncAt,
		LastSyncCheckAt: time.Now().Format("2006-01-02 15:04:05"),
		LastImportMtime: rec.LastImportMtime,
	})
	return err
}

// sidecarMtime returns the unix mtime of the file's sidecar, or 0 when
// no sidecar exists.
func sidecarMtime(path string) float64 {
	for _, candidate := range imagetypes.SidecarCandidates(path) {
		if info, err := os.Stat(candidate); err == nil {
			return float64(info.ModTime().Unix())
		}
	}
	return 0
}
