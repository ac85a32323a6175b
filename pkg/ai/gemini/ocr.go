package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/dallisoft/ingest-backend/pkg/ai"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

const ocrPrompt = `Recognize all text regions in this page image. Respond with a JSON array and nothing else. Each element has the fields "text" (the recognized text), "box" (an object with "left", "top", "right", "bottom" in pixel coordinates) and "confidence" (0 to 1).`

type ocrResponse struct {
	Text string `json:"text"`
	Box  struct {
		Left   int `json:"left"`
		Top    int `json:"top"`
		Right  int `json:"right"`
		Bottom int `json:"bottom"`
	} `json:"box"`
	Confidence float64 `json:"confidence"`
}

// DetectAndRecognize extracts text regions from a page image. When the
// model answers with prose instead of the requested JSON, the whole answer
// is returned as a single region so scanned pages still yield text.
func (c *Client) DetectAndRecognize(ctx context.Context, image []byte) ([]ai.OCRRegion, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, http.DetectContentType(image)),
		genai.NewPartFromText(ocrPrompt),
	}
	response, err := c.generate(ctx, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	})
	if err != nil {
		return nil, fmt.Errorf("recognizing page image: %w", err)
	}

	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var decoded []ocrResponse
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return []ai.OCRRegion{{Text: response, Confidence: 0}}, nil
	}

	regions := make([]ai.OCRRegion, 0, len(decoded))
	for _, r := range decoded {
		if r.Text == "" {
			continue
		}
		regions = append(regions, ai.OCRRegion{
			Box: types.Position{
				Left:   r.Box.Left,
				Top:    r.Box.Top,
				Right:  r.Box.Right,
				Bottom: r.Box.Bottom,
			},
			Text:       r.Text,
			Confidence: r.Confidence,
		})
	}
	return regions, nil
}
