package xmpsync

import (
	"context"
	"fmt"
	"sync"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/imagetypes"
	"photo-catalog/internal/metrics"
)

// State classifies a record against its XMP truth sources.
type State string

const (
	StatePerfectSync   State = "PERFECT_SYNC"
	StateEmbeddedDirty State = "EMBEDDED_DIRTY"
	StateSidecarDirty  State = "SIDECAR_DIRTY"
	StateMixedState    State = "MIXED_STATE"
	StateMixedDirty    State = "MIXED_DIRTY"
	StateDBOnly        State = "DB_ONLY"
	StateEmbeddedOnly  State = "EMBEDDED_ONLY"
	StateSidecarOnly   State = "SIDECAR_ONLY"
	StateNoXMP         State = "NO_XMP"
	StateError         State = "ERROR"
)

// Analysis is the outcome of classifying one record.
type Analysis struct {
	State State
	Info  string
}

// xmpReader reads the two XMP channels of a file. A nil sidecar map
// with nil error means no sidecar exists.
type xmpReader interface {
	ReadXMPEmbedded(ctx context.Context, path string) (map[string]interface{}, error)
	ReadXMPSidecar(ctx context.Context, path string) (map[string]interface{}, error)
}

// Analyzer computes sync states. It keeps a per-record cache of the
// last analysis; the cache is invalidated by any mutating store
// operation (via the store's mutation hook) or explicitly.
type Analyzer struct {
	reader xmpReader

	mu    sync.Mutex
	cache map[int64]Analysis
}

// NewAnalyzer creates an Analyzer over the given XMP reader.
func NewAnalyzer(reader xmpReader) *Analyzer {
	return &Analyzer{
		reader: reader,
		cache:  make(map[int64]Analysis),
	}
}

// Invalidate drops the cached analysis for a record.
func (a *Analyzer) Invalidate(id int64) {
	a.mu.Lock()
	delete(a.cache, id)
	a.mu.Unlock()
}

// InvalidateAll drops every cached analysis.
func (a *Analyzer) InvalidateAll() {
	a.mu.Lock()
	a.cache = make(map[int64]Analysis)
	a.mu.Unlock()
}

func (a *Analyzer) cached(id int64) (Analysis, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	an, ok := a.cache[id]
	return an, ok
}

func (a *Analyzer) remember(id int64, an Analysis) {
	a.mu.Lock()
	a.cache[id] = an
	a.mu.Unlock()
}

// AnalyzeRecord classifies rec against its truth sources. Failures
// never propagate: they yield StateError with the error text as info.
func (a *Analyzer) AnalyzeRecord(ctx context.Context, rec *catalog.ImageRecord) Analysis {
	if an, ok := a.cached(rec.ID); ok {
		return an
	}

	an := a.analyze(ctx, rec)
	a.remember(rec.ID, an)
	metrics.SyncAnalysesTotal.WithLabelValues(string(an.State)).Inc()
	return an
}

func (a *Analyzer) analyze(ctx context.Context, rec *catalog.ImageRecord) Analysis {
	category := imagetypes.CategoryOf(rec.Filepath)
	if category == imagetypes.CategoryUnknown {
		return Analysis{State: StateError, Info: fmt.Sprintf("unsupported file type: %s", rec.Filepath)}
	}

	var embedded, sidecar XMPFields
	var embPresent, sidePresent bool

	// RAW: the embedded channel does not exist as far as sync is
	// concerned, whatever the file actually contains.
	if category != imagetypes.CategoryRaw {
		m, err := a.reader.ReadXMPEmbedded(ctx, rec.Filepath)
		if err != nil {
			return Analysis{State: StateError, Info: fmt.Sprintf("embedded read failed: %v", err)}
		}
		embedded = FieldsFromMap(m)
		embPresent = embedded.HasData()
	}

	m, err := a.reader.ReadXMPSidecar(ctx, rec.Filepath)
	if err != nil {
		return Analysis{State: StateError, Info: fmt.Sprintf("sidecar read failed: %v", err)}
	}
	if m != nil {
		sidecar = FieldsFromMap(m)
		sidePresent = sidecar.HasData()
	}

	dbHasData := rec.Title != "" || rec.Description != "" || len(rec.Tags) > 0 || rec.LrRating != 0

	switch {
	case !embPresent && !sidePresent:
		if !dbHasData {
			return Analysis{State: StateNoXMP}
		}
		return Analysis{State: StateDBOnly}

	case embPresent && sidePresent:
		embEq := embedded.EqualsRecord(rec)
		sideEq := sidecar.EqualsRecord(rec)
		switch {
		case embEq && sideEq:
			return Analysis{State: StatePerfectSync}
		case embEq || sideEq:
			return Analysis{State: StateMixedState, Info: mixedInfo(embEq)}
		default:
			return Analysis{State: StateMixedDirty}
		}

	case embPresent:
		if embedded.EqualsRecord(rec) {
			return Analysis{State: StatePerfectSync}
		}
		return Analysis{State: StateEmbeddedDirty}

	default: // sidecar only
		if sidecar.EqualsRecord(rec) {
			return Analysis{State: StatePerfectSync}
		}
		return Analysis{State: StateSidecarDirty}
	}
}

func mixedInfo(embeddedMatches bool) string {
	if embeddedMatches {
		return "embedded matches catalog, sidecar differs"
	}
	return "sidecar matches catalog, embedded differs"
}

// AnalyzePath classifies a file with no catalog record, used during
// discovery. The sidecar wins when both channels carry data.
func (a *Analyzer) AnalyzePath(ctx context.Context, path string) Analysis {
	category := imagetypes.CategoryOf(path)
	if category == imagetypes.CategoryUnknown {
		return Analysis{State: StateError, Info: fmt.Sprintf("unsupported file type: %s", path)}
	}

	m, err := a.reader.ReadXMPSidecar(ctx, path)
	if err != nil {
		return Analysis{State: StateError, Info: fmt.Sprintf("sidecar read failed: %v", err)}
	}
	if m != nil && FieldsFromMap(m).HasData() {
		return Analysis{State: StateSidecarOnly}
	}

	if category != imagetypes.CategoryRaw {
		m, err := a.reader.ReadXMPEmbedded(ctx, path)
		if err != nil {
			return Analysis{State: StateError, Info: fmt.Sprintf("embedded read failed: %v", err)}
		}
		if FieldsFromMap(m).HasData() {
			return Analysis{State: StateEmbeddedOnly}
		}
	}

	return Analysis{State: StateNoXMP}
}
