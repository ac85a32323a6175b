package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dallisoft/ingest-backend/pkg/ai"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// markupPattern strips the formatting markers that carry no retrieval
// signal before a text reaches the embedding model.
var markupPattern = regexp.MustCompile("[#*`>|]+|\\[|\\]|\\(http[^)]*\\)")

// Embedder attaches vectors to chunks. The document title is embedded once
// and blended into every chunk vector with the configured weight, so title
// terms lift every chunk of the document in similarity search.
type Embedder struct {
	client    ai.EmbeddingClient
	tokenizer ai.Tokenizer
	// sem bounds in-flight embedding batches across all tasks of the
	// worker, not per task.
	sem       *semaphore.Weighted
	batchSize int
	log       *zap.Logger
}

// NewEmbedder wires the embedder's collaborators.
func NewEmbedder(client ai.EmbeddingClient, tokenizer ai.Tokenizer, sem *semaphore.Weighted, batchSize int, log *zap.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Embedder{
		client:    client,
		tokenizer: tokenizer,
		sem:       sem,
		batchSize: batchSize,
		log:       log,
	}
}

// Embed vectorizes all chunks of a task and returns the total token usage
// reported by the model. Batches run concurrently under the worker-wide
// ceiling; results are reassembled by index so chunk order is preserved
// regardless of completion order.
func (e *Embedder) Embed(ctx context.Context, task types.Task, chunks []types.Chunk, progress ProgressFunc) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	titleWeight := task.ParserConfig.WithDefaults().TitleWeight
	title := normalizeForEmbedding(task.Title)
	var titleVector []float32
	var usedTokens int64

	if title != "" {
		vectors, tokens, err := e.client.Embed(ctx, []string{e.truncate(title)})
		if err != nil {
			return 0, fmt.Errorf("embedding title: %w", err)
		}
		titleVector = vectors[0]
		usedTokens += int64(tokens)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = e.truncate(normalizeForEmbedding(chunks[i].EmbeddingText()))
	}

	vectors := make([][]float32, len(chunks))
	var done int64
	batches := (len(chunks) + e.batchSize - 1) / e.batchSize

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			batch, tokens, err := e.client.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:], batch)
			atomic.AddInt64(&usedTokens, int64(tokens))

			n := atomic.AddInt64(&done, 1)
			if progress != nil {
				progress(float64(n)/float64(batches),
					fmt.Sprintf("Embedded batch %d/%d", n, batches))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for i := range chunks {
		chunks[i].Vector = blend(titleVector, vectors[i], titleWeight)
	}
	return int(usedTokens), nil
}

func (e *Embedder) truncate(text string) string {
	return e.tokenizer.Truncate(text, e.client.MaxInputTokens())
}

// blend returns w*title + (1-w)*content. Without a title vector the
// content vector passes through unweighted.
func blend(title, content []float32, w float64) []float32 {
	if len(title) != len(content) {
		return content
	}
	blended := make([]float32, len(content))
	for i := range content {
		blended[i] = float32(w)*title[i] + float32(1-w)*content[i]
	}
	return blended
}

func normalizeForEmbedding(text string) string {
	text = markupPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
