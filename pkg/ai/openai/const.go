package openai

// Constants for the OpenAI embedding client
const (
	// Embedding dimensions (constant, not configurable)
	// OpenAI text-embedding-3-small produces 1536-dimensional embeddings
	DefaultEmbeddingDimension = 1536

	// Default embedding model for OpenAI
	DefaultEmbeddingModel = "text-embedding-3-small"

	// MaxInputTokens is the model's maximum input length; longer content is
	// hard truncated before the call.
	MaxInputTokens = 8191

	// Encoding used by the embedding models for token accounting.
	EncodingName = "cl100k_base"
)
