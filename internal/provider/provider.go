// Package provider declares the interfaces through which the catalog
// talks to AI model backends and auxiliary services. The core never
// links model runtimes directly; implementations live behind these
// contracts and may run out of process.
package provider

import (
	"context"
	"image"
)

// EmbeddingProvider produces dense float32 vectors. Implementations
// declare their dimension; the store enforces it on write. A provider
// may support only one of the two directions; unsupported calls return
// an error.
type EmbeddingProvider interface {
	// EmbedText embeds a natural-language string.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedImage embeds a decoded image.
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
	// Dimension is the declared vector length.
	Dimension() int
}

// GenerateKind selects what a language model produces for an image.
type GenerateKind string

const (
	GenerateTitle       GenerateKind = "title"
	GenerateTags        GenerateKind = "tags"
	GenerateDescription GenerateKind = "description"
)

// GenerateParams are the sampling knobs passed through verbatim.
type GenerateParams struct {
	Temperature float64
	TopK        int
	TopP        float64
	NumCtx      int
	NumBatch    int
	NumPredict  int
}

// LanguageModelProvider generates descriptive text from images.
type LanguageModelProvider interface {
	Generate(ctx context.Context, kind GenerateKind, img image.Image, params GenerateParams) (string, error)
}

// Translator normalizes non-English query text before embedding.
type Translator interface {
	Translate(ctx context.Context, text, src, tgt string) (string, error)
}

// Scorer rates image quality. Aesthetic scores are on a 0-10 scale,
// technical scores on 0-100.
type Scorer interface {
	AestheticScore(ctx context.Context, img image.Image) (float64, error)
	TechnicalScore(ctx context.Context, img image.Image) (float64, error)
}

// Classifier produces a taxonomic chain (kingdom down to species
// epithet) for an image, with a confidence in [0,1].
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (taxonomy []string, confidence float64, err error)
}
