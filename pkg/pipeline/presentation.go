package pipeline

import (
	"context"
	"fmt"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// ParsePresentation emits exactly one chunk per slide. A slide is a
// self-contained unit, so it stays intact even above the token budget
// rather than being split across chunks.
func ParsePresentation(ctx context.Context, in ParseInput) ([]types.Chunk, error) {
	pages, err := extractPages(ctx, in)
	if err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(pages))
	for i, page := range pages {
		chunks = append(chunks, types.Chunk{
			ContentWithWeight: page.text,
			PageNum:           page.num,
			TokenNum:          in.Tokenizer.Count(page.text),
		})
		if in.Progress != nil {
			in.Progress(float64(i+1)/float64(len(pages)),
				fmt.Sprintf("Extracted slide %d/%d", i+1, len(pages)))
		}
	}
	return chunks, nil
}
