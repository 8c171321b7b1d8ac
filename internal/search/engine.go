package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/config"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/provider"
)

// Mode selects the scoring strategy.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeTags     Mode = "tags"
)

// Query describes one retrieval request.
type Query struct {
	Text string
	Mode Mode

	Filters *Filters

	// Semantic-mode options.
	DeepSearch   bool
	MinThreshold float64
	// Language is the query language as reported by the caller;
	// anything other than "" or "en" goes through the translator
	// before embedding.
	Language string

	// Tags-mode options.
	Fuzzy              bool
	IncludeDescription bool
	IncludeTitle       bool

	// Strictness in [0,1] controls deep-search stem length and the
	// bonus/penalty magnitudes.
	Strictness float64

	MaxResults int
}

// Result is one scored record.
type Result struct {
	Record *catalog.ImageRecord
	Score  float64
}

// Engine evaluates hybrid queries over the catalog store.
type Engine struct {
	store      *catalog.Store
	embedder   provider.EmbeddingProvider
	translator provider.Translator
	cfg        config.Search
}

// NewEngine builds a retrieval engine. The translator may be nil;
// non-English queries then embed untranslated.
func NewEngine(store *catalog.Store, embedder provider.EmbeddingProvider, translator provider.Translator, cfg config.Search) *Engine {
	return &Engine{store: store, embedder: embedder, translator: translator, cfg: cfg}
}

// defaultOrder ranks unscored result sets: best-rated first, then by
// the composite AI score, then newest capture.
const defaultOrder = "lr_rating DESC, (0.7 * aesthetic_score + 0.3 * technical_score) DESC, datetime_original DESC"

// Search runs the four retrieval phases: filter compilation, candidate
// materialization, scoring, ordering. It returns the scored results
// (truncated to the query's max) and the total candidate count before
// scoring. Cancellation is honored between candidates; a cancelled
// query returns the partial result set with the context error.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, int, error) {
	start := time.Now()
	mode := string(q.Mode)
	status := "success"
	defer func() {
		metrics.SearchQueriesTotal.WithLabelValues(mode, status).Inc()
		metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	if q.Mode != ModeSemantic && q.Mode != ModeTags {
		status = "error"
		return nil, 0, fmt.Errorf("unknown search mode %q", q.Mode)
	}
	if q.MaxResults <= 0 {
		q.MaxResults = e.cfg.MaxResults
	}
	if q.Strictness < 0 {
		q.Strictness = 0
	} else if q.Strictness > 1 {
		q.Strictness = 1
	}

	where, args, err := q.Filters.Compile()
	if err != nil {
		status = "error"
		return nil, 0, fmt.Errorf("filter compilation failed: %w", err)
	}

	total, err := e.store.CountWhere(ctx, where, args)
	if err != nil {
		status = "error"
		return nil, 0, err
	}

	candWhere := where
	if q.Mode == ModeSemantic && strings.TrimSpace(q.Text) != "" {
		clause := "clip_embedding IS NOT NULL"
		if candWhere != "" {
			candWhere += " AND " + clause
		} else {
			candWhere = clause
		}
	}

	// Empty query text skips scoring entirely; the store ranks.
	if strings.TrimSpace(q.Text) == "" {
		records, err := e.store.SelectWhere(ctx, candWhere, args, defaultOrder)
		if err != nil {
			status = "error"
			return nil, 0, err
		}
		metrics.SearchCandidates.WithLabelValues(mode).Observe(float64(len(records)))
		results := make([]Result, 0, len(records))
		for _, r := range records {
			if len(results) >= q.MaxResults {
				break
			}
			results = append(results, Result{Record: r})
		}
		return results, total, nil
	}

	candidates, err := e.store.SelectWhere(ctx, candWhere, args, "")
	if err != nil {
		status = "error"
		return nil, 0, err
	}
	metrics.SearchCandidates.WithLabelValues(mode).Observe(float64(len(candidates)))

	var results []Result
	switch q.Mode {
	case ModeSemantic:
		results, err = e.scoreSemantic(ctx, q, candidates)
	case ModeTags:
		results, err = e.scoreTags(ctx, q, candidates)
	}
	if err != nil && ctx.Err() == nil {
		status = "error"
		return nil, 0, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	// Partial results on cancellation.
	return results, total, err
}

// queryEmbedding embeds the (possibly translated) query text.
func (e *Engine) queryEmbedding(ctx context.Context, q Query) ([]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	text := q.Text
	if e.translator != nil && q.Language != "" && q.Language != "en" {
		translated, err := e.translator.Translate(ctx, text, q.Language, "en")
		if err != nil {
			logging.Warn("query translation failed, embedding as-is: %v", err)
		} else if translated != "" {
			text = translated
		}
	}
	return e.embedder.EmbedText(ctx, text)
}

func (e *Engine) scoreSemantic(ctx context.Context, q Query, candidates []*catalog.ImageRecord) ([]Result, error) {
	qvec, err := e.queryEmbedding(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	words := queryWords(q.Text)
	threshold := q.MinThreshold
	if threshold == 0 {
		threshold = e.cfg.SemanticThreshold
	}

	var results []Result
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if len(rec.ClipEmbedding) == 0 {
			continue
		}

		score := cosineSimilarity(qvec, rec.ClipEmbedding)
		if q.DeepSearch {
			content := strings.Join(rec.Tags, " ")
			if q.IncludeDescription && rec.Description != "" {
				content += " " + rec.Description
			}
			score = deepSearchAdjust(score, words, content, q.Strictness)
		}

		if score >= threshold {
			results = append(results, Result{Record: rec, Score: score})
		}
	}
	return results, nil
}

func (e *Engine) scoreTags(ctx context.Context, q Query, candidates []*catalog.ImageRecord) ([]Result, error) {
	words := queryWords(q.Text)
	if len(words) == 0 {
		return nil, nil
	}
	fuzzy := q.Fuzzy && e.cfg.FuzzyEnabled

	var results []Result
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		content := tagContent(rec, q)
		if content == "" {
			continue
		}
		contentWords := strings.Fields(normalizeText(content))

		var score float64
		if fuzzy {
			score = scoreTagsFuzzy(words, contentWords)
		} else {
			set := make(map[string]bool, len(contentWords))
			for _, w := range contentWords {
				set[w] = true
			}
			score = scoreTagsExact(words, set)
		}
		if score <= 0 {
			continue
		}
		score += richnessBonus(len(content))
		results = append(results, Result{Record: rec, Score: score})
	}
	return results, nil
}

// tagContent joins the searchable text of a record: tags always,
// description and title on request.
func tagContent(rec *catalog.ImageRecord, q Query) string {
	parts := make([]string, 0, len(rec.Tags)+2)
	parts = append(parts, rec.Tags...)
	if q.IncludeDescription && rec.Description != "" {
		parts = append(parts, rec.Description)
	}
	if q.IncludeTitle && rec.Title != "" {
		parts = append(parts, rec.Title)
	}
	return strings.Join(parts, " ")
}
