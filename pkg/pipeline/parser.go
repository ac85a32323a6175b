package pipeline

import (
	"context"
	"fmt"

	"github.com/dallisoft/ingest-backend/pkg/ai"
	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// ParseInput is everything an extraction strategy needs to turn file bytes
// into chunks. Strategies receive capabilities (tokenizer, OCR) rather than
// constructing clients themselves.
type ParseInput struct {
	Filename string
	Content  []byte
	// FromPage and ToPage bound the page range to extract. FromPage is
	// zero-based inclusive; ToPage is exclusive, with 0 meaning "to the
	// end".
	FromPage int
	ToPage   int
	Language string
	Config   types.ParserConfig

	Tokenizer ai.Tokenizer
	OCR       ai.OCRClient
	Progress  ProgressFunc
}

// ParseFunc is one named extraction strategy. It returns chunks with
// content, token count and citation metadata filled in; identity fields are
// assigned by the caller.
type ParseFunc func(ctx context.Context, in ParseInput) ([]types.Chunk, error)

// Registry maps parser ids to extraction strategies. The set is open so new
// document families plug in without touching the pipeline driver.
type Registry struct {
	strategies map[types.ParserID]ParseFunc
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: map[types.ParserID]ParseFunc{}}
	r.Register(types.ParserNaive, ParseNaive)
	r.Register(types.ParserQA, ParseQA)
	r.Register(types.ParserTable, ParseTable)
	r.Register(types.ParserPaper, ParsePaper)
	r.Register(types.ParserPresentation, ParsePresentation)
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(id types.ParserID, fn ParseFunc) {
	r.strategies[id] = fn
}

// Resolve returns the strategy for id. An unknown id is a terminal
// unsupported-format failure: retrying cannot make a strategy appear.
func (r *Registry) Resolve(id types.ParserID) (ParseFunc, error) {
	fn, ok := r.strategies[id]
	if !ok {
		return nil, errorsx.AddMessage(
			fmt.Errorf("%w: no strategy registered for parser %q", errorsx.ErrUnsupportedFormat, id),
			fmt.Sprintf("The file type is not supported by the %q parser.", id),
		)
	}
	return fn, nil
}

// extensionParsers maps the allowed file extensions to the strategy that
// handles them, for tasks that do not pin a parser id. Image extensions
// route to the naive strategy, whose OCR path extracts their text.
var extensionParsers = map[string]types.ParserID{
	"txt":      types.ParserNaive,
	"text":     types.ParserNaive,
	"md":       types.ParserNaive,
	"markdown": types.ParserNaive,
	"csv":      types.ParserTable,
	"tsv":      types.ParserTable,
	"png":      types.ParserNaive,
	"jpg":      types.ParserNaive,
	"jpeg":     types.ParserNaive,
	"webp":     types.ParserNaive,
	"tiff":     types.ParserNaive,
}

// ResolveForFile dispatches by parser id when the task pins one, and falls
// back to the filename's extension otherwise. An extension outside the
// allowed set is a terminal unsupported-format failure.
func (r *Registry) ResolveForFile(id types.ParserID, filename string) (ParseFunc, error) {
	if id != "" {
		return r.Resolve(id)
	}
	ext := types.FileExtension(filename)
	fallback, ok := extensionParsers[ext]
	if !ok {
		return nil, errorsx.AddMessage(
			fmt.Errorf("%w: no parser pinned and no strategy for extension %q", errorsx.ErrUnsupportedFormat, ext),
			fmt.Sprintf("Files of type %q are not supported.", ext),
		)
	}
	return r.Resolve(fallback)
}
