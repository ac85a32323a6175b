// Package openai implements the embedding capability on the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dallisoft/ingest-backend/pkg/ai"

	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
)

// Client implements ai.EmbeddingClient for OpenAI. It only supports
// embedding generation; augmentation and OCR are served by the Gemini
// client.
type Client struct {
	client         *openai.Client
	embeddingModel string
}

// NewClient creates a new OpenAI embedding client.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errorsx.AddMessage(
			fmt.Errorf("missing OpenAI API key"),
			"Embedding client configuration is missing. Please contact your administrator.",
		)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Client{
		client:         &client,
		embeddingModel: DefaultEmbeddingModel,
	}, nil
}

// Name returns the model family identifier.
func (c *Client) Name() string {
	return ai.ModelFamilyOpenAI
}

// Dimensionality returns the OpenAI embedding vector dimensionality (1536).
func (c *Client) Dimensionality() int {
	return DefaultEmbeddingDimension
}

// MaxInputTokens returns the model's maximum input length.
func (c *Client) MaxInputTokens() int {
	return MaxInputTokens
}

const maxRetries = 3

// Embed encodes one batch of texts, retrying transient failures with
// exponential backoff. Exhausted retries surface as ErrEmbeddingService so
// the task becomes eligible for queue redelivery; an authentication
// rejection surfaces as ErrUnauthenticated and fails the task terminally.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return [][]float32{}, 0, nil
	}

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				switch apiErr.StatusCode {
				case http.StatusUnauthorized, http.StatusForbidden:
					return nil, 0, errorsx.AddMessage(
						fmt.Errorf("%w: %v", errorsx.ErrUnauthenticated, err),
						"The embedding service rejected the configured credentials.",
					)
				}
			}
			lastErr = err
			continue
		}

		if len(resp.Data) != len(texts) {
			lastErr = fmt.Errorf("embedding response has %d vectors, want %d", len(resp.Data), len(texts))
			continue
		}

		vectors := make([][]float32, len(resp.Data))
		for i, item := range resp.Data {
			vec := make([]float32, len(item.Embedding))
			for j, v := range item.Embedding {
				vec[j] = float32(v)
			}
			vectors[i] = vec
		}
		return vectors, int(resp.Usage.TotalTokens), nil
	}

	return nil, 0, errorsx.AddMessage(
		fmt.Errorf("%w: %v", errorsx.ErrEmbeddingService, lastErr),
		"Unable to generate embeddings. Please try again.",
	)
}
