package pipeline

import (
	"strings"

	"github.com/dallisoft/ingest-backend/pkg/ai"
)

// SplitSegments cuts text at every rune in delimiters, keeping the
// delimiter attached to the segment it terminates so punctuation survives
// into the chunk text. Segments are whitespace-trimmed and empty ones are
// dropped, so reassembling the output reproduces the source text only up
// to leading and trailing whitespace per segment.
func SplitSegments(text, delimiters string) []string {
	var segments []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if strings.ContainsRune(delimiters, r) {
			if s := strings.TrimSpace(b.String()); s != "" {
				segments = append(segments, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		segments = append(segments, s)
	}
	return segments
}

// MergeSegments packs consecutive segments into chunks of at most budget
// tokens, preserving segment order. A single segment larger than the budget
// becomes a chunk on its own rather than being cut mid-segment. When
// overlap is positive, each chunk after the first opens with roughly that
// many tokens repeated from the tail of its predecessor.
func MergeSegments(segments []string, tok ai.Tokenizer, budget, overlap int) []string {
	if budget <= 0 || len(segments) == 0 {
		return nil
	}

	var chunks []string
	var parts []string
	tokens := 0
	// carryOnly is true while parts holds nothing but the overlap repeated
	// from the previous chunk. Such a buffer never flushes on its own.
	carryOnly := false

	flush := func() {
		chunks = append(chunks, strings.Join(parts, "\n"))
		parts = parts[:0]
		tokens = 0
		carryOnly = false
		if overlap > 0 {
			if tail := overlapTail(chunks[len(chunks)-1], tok, overlap); tail != "" {
				parts = append(parts, tail)
				tokens = tok.Count(tail)
				carryOnly = true
			}
		}
	}

	for _, seg := range segments {
		n := tok.Count(seg)
		if !carryOnly && len(parts) > 0 && tokens+n > budget {
			flush()
		}
		parts = append(parts, seg)
		tokens += n
		carryOnly = false
		if n > budget {
			// Oversized segment: emit the buffer intact rather than cutting
			// mid-segment, and start fresh without carrying overlap out of
			// it.
			chunks = append(chunks, strings.Join(parts, "\n"))
			parts = parts[:0]
			tokens = 0
		}
	}
	if len(parts) > 0 && !carryOnly {
		chunks = append(chunks, strings.Join(parts, "\n"))
	}
	return chunks
}

// overlapTail returns a word-aligned suffix of text of roughly n tokens.
func overlapTail(text string, tok ai.Tokenizer, n int) string {
	words := strings.Fields(text)
	for i := len(words) - 1; i >= 0; i-- {
		tail := strings.Join(words[i:], " ")
		if tok.Count(tail) >= n {
			return tail
		}
	}
	return text
}

// HardSplit cuts text into pieces of at most budget tokens with no regard
// for segment boundaries. Strategies whose rows have no natural interior
// boundary use it for oversized rows.
func HardSplit(text string, tok ai.Tokenizer, budget int) []string {
	if budget <= 0 {
		return nil
	}
	var pieces []string
	rest := text
	for tok.Count(rest) > budget {
		head := tok.Truncate(rest, budget)
		pieces = append(pieces, head)
		rest = strings.TrimSpace(strings.TrimPrefix(rest, head))
		if rest == "" {
			return pieces
		}
	}
	if strings.TrimSpace(rest) != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}
