// Package ai defines the vendor-capability interfaces the pipeline consumes:
// embedding, tokenization, OCR/layout recognition, and LLM augmentation.
// Implementations are constructed at startup and injected into the pipeline
// driver; there is no process-wide connector cache.
package ai

import (
	"context"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// Model family identifiers.
const (
	ModelFamilyOpenAI = "openai"
	ModelFamilyGemini = "gemini"
)

// EmbeddingClient computes vector representations for batches of texts.
type EmbeddingClient interface {
	// Name returns the model family identifier.
	Name() string
	// Dimensionality returns the fixed output vector width of the model.
	Dimensionality() int
	// MaxInputTokens returns the model's maximum input length; longer
	// content is truncated, never errored.
	MaxInputTokens() int
	// Embed encodes texts into vectors and reports the token usage of the
	// call. One call per batch; the caller owns batching.
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Tokenizer counts and truncates text in model tokens.
type Tokenizer interface {
	Count(text string) int
	// Truncate cuts text to at most maxTokens tokens, preserving a valid
	// prefix.
	Truncate(text string, maxTokens int) string
}

// OCRRegion is one recognized text region on a page image.
type OCRRegion struct {
	Box        types.Position
	Text       string
	Confidence float64
}

// OCRClient recognizes text and layout on page images.
type OCRClient interface {
	DetectAndRecognize(ctx context.Context, image []byte) ([]OCRRegion, error)
}

// AugmentationClient derives keywords and candidate questions for a chunk.
// Failures here degrade gracefully: the chunk proceeds without augmentation.
type AugmentationClient interface {
	ExtractKeywords(ctx context.Context, text string, n int) ([]string, error)
	ProposeQuestions(ctx context.Context, text string, n int) ([]string, error)
}
