package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// imageExtensions are the page-image formats routed through OCR.
var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"webp": true,
	"tiff": true,
}

// pageText is one extracted page before splitting.
type pageText struct {
	// num is the 1-based page number used for citation.
	num  int
	text string
}

// splitPages cuts document text at form-feed page separators and applies
// the task's page range. FromPage is zero-based inclusive, ToPage exclusive
// with 0 meaning all remaining pages.
func splitPages(text string, fromPage, toPage int) []pageText {
	raw := strings.Split(text, "\f")
	if fromPage < 0 {
		fromPage = 0
	}
	if toPage <= 0 || toPage > len(raw) {
		toPage = len(raw)
	}
	var pages []pageText
	for i := fromPage; i < toPage; i++ {
		if strings.TrimSpace(raw[i]) == "" {
			continue
		}
		pages = append(pages, pageText{num: i + 1, text: raw[i]})
	}
	return pages
}

// extractPages turns the input bytes into page texts. Image files go
// through OCR; everything else is treated as text with form-feed page
// separators.
func extractPages(ctx context.Context, in ParseInput) ([]pageText, error) {
	ext := types.FileExtension(in.Filename)
	if imageExtensions[ext] {
		if in.OCR == nil {
			return nil, fmt.Errorf("no OCR capability configured for %s files", ext)
		}
		regions, err := in.OCR.DetectAndRecognize(ctx, in.Content)
		if err != nil {
			return nil, fmt.Errorf("recognizing %s: %w", in.Filename, err)
		}
		texts := make([]string, 0, len(regions))
		for _, region := range regions {
			texts = append(texts, region.Text)
		}
		page := strings.TrimSpace(strings.Join(texts, "\n"))
		if page == "" {
			return nil, nil
		}
		return []pageText{{num: 1, text: page}}, nil
	}
	return splitPages(string(in.Content), in.FromPage, in.ToPage), nil
}

// ParseNaive is the general text strategy: pages are segmented at the
// configured delimiters and the segments packed into token-bounded chunks.
// Chunks never span a page boundary, so every chunk carries an unambiguous
// page number.
func ParseNaive(ctx context.Context, in ParseInput) ([]types.Chunk, error) {
	pages, err := extractPages(ctx, in)
	if err != nil {
		return nil, err
	}

	var chunks []types.Chunk
	for i, page := range pages {
		segments := SplitSegments(page.text, in.Config.Delimiter)
		for _, content := range MergeSegments(segments, in.Tokenizer, in.Config.ChunkTokenNum, in.Config.Overlap) {
			chunks = append(chunks, types.Chunk{
				ContentWithWeight: content,
				PageNum:           page.num,
				TokenNum:          in.Tokenizer.Count(content),
			})
		}
		if in.Progress != nil {
			in.Progress(float64(i+1)/float64(len(pages)),
				fmt.Sprintf("Extracted page %d/%d", i+1, len(pages)))
		}
	}
	return chunks, nil
}
