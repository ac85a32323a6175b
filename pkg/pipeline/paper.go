package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// sectionHeading matches numbered or roman-numeral section titles, the
// usual skeleton of an academic paper.
var sectionHeading = regexp.MustCompile(`(?m)^\s*(?:\d+(?:\.\d+)*\.?|[IVX]+\.)\s+\S|^\s*(?:Abstract|Introduction|Related Work|Methodology|Experiments|Results|Discussion|Conclusion|References|Appendix)\b`)

// ParsePaper is the academic-paper variant of the text strategy: section
// headings are treated as hard boundaries so a chunk never mixes two
// sections, and each chunk is prefixed with the heading of the section it
// belongs to, keeping it citable out of context.
func ParsePaper(ctx context.Context, in ParseInput) ([]types.Chunk, error) {
	pages, err := extractPages(ctx, in)
	if err != nil {
		return nil, err
	}

	var chunks []types.Chunk
	for i, page := range pages {
		heading := ""
		for _, block := range splitSections(page.text) {
			if sectionHeading.MatchString(block.heading) {
				heading = block.heading
			}
			segments := SplitSegments(block.body, in.Config.Delimiter)
			for _, content := range MergeSegments(segments, in.Tokenizer, in.Config.ChunkTokenNum, in.Config.Overlap) {
				if heading != "" && !strings.HasPrefix(content, heading) {
					content = heading + "\n" + content
				}
				chunks = append(chunks, types.Chunk{
					ContentWithWeight: content,
					PageNum:           page.num,
					TokenNum:          in.Tokenizer.Count(content),
				})
			}
		}
		if in.Progress != nil {
			in.Progress(float64(i+1)/float64(len(pages)),
				fmt.Sprintf("Extracted page %d/%d", i+1, len(pages)))
		}
	}
	return chunks, nil
}

type section struct {
	heading string
	body    string
}

// splitSections cuts page text at heading lines. Text before the first
// heading forms a headingless leading section.
func splitSections(text string) []section {
	var sections []section
	current := section{}
	var body []string

	flush := func() {
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.heading != "" || current.body != "" {
			sections = append(sections, current)
		}
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if sectionHeading.MatchString(line) {
			flush()
			current = section{heading: strings.TrimSpace(line)}
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}
