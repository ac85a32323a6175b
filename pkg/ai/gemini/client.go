// Package gemini implements the LLM augmentation and OCR/layout
// capabilities on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
)

// Client implements ai.AugmentationClient and ai.OCRClient.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errorsx.AddMessage(
			fmt.Errorf("missing Gemini API key"),
			"Augmentation client configuration is missing. Please contact your administrator.",
		)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Client{client: client, model: DefaultModel}, nil
}

// generate runs one prompt with bounded retry and exponential backoff for
// transient failures.
func (c *Client) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
		if err != nil {
			lastErr = err
			continue
		}
		text := result.Text()
		if text == "" {
			lastErr = fmt.Errorf("empty response from model")
			continue
		}
		return text, nil
	}
	return "", lastErr
}

// parseLines splits a model response into at most n trimmed, non-empty
// lines, stripping common list markers.
func parseLines(response string, n int) []string {
	var items []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789. ")
		if line == "" {
			continue
		}
		items = append(items, line)
		if len(items) == n {
			break
		}
	}
	return items
}
