// Package pipeline implements the document ingestion stages: chunk
// extraction, embedding, and indexing, plus the driver that runs them in
// order for one claimed task and classifies failures for the scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/dallisoft/ingest-backend/pkg/ai"
	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	"github.com/dallisoft/ingest-backend/pkg/repository"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// Pipeline drives one task through all stages. It is shared by every
// task goroutine of the worker; all per-task state lives on the stack of
// Run.
type Pipeline struct {
	repo     repository.Repository
	chunker  *Chunker
	embedder *Embedder
	indexer  *Indexer
	embedDim int
	// parseSem serializes the memory-heavy extraction stage across tasks.
	parseSem *semaphore.Weighted
	log      *zap.Logger
}

// NewPipeline wires the stage components into a driver.
func NewPipeline(repo repository.Repository, chunker *Chunker, embedder *Embedder, indexer *Indexer, embedding ai.EmbeddingClient, parseSem *semaphore.Weighted, log *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:     repo,
		chunker:  chunker,
		embedder: embedder,
		indexer:  indexer,
		embedDim: embedding.Dimensionality(),
		parseSem: parseSem,
		log:      log,
	}
}

// Run processes one claimed task to completion. The returned error, if
// any, is classified by errorsx.IsPermanent: the scheduler redelivers
// transient failures and terminates permanent ones.
func (p *Pipeline) Run(ctx context.Context, task types.Task) error {
	log := p.log.With(
		zap.String("taskUID", task.UID.String()),
		zap.String("documentUID", task.DocumentUID.String()),
		zap.String("kbUID", task.KBUID.String()))

	if _, err := p.repo.GetDocumentByUID(ctx, task.DocumentUID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorsx.AddMessage(
				fmt.Errorf("%w: document %s", errorsx.ErrTaskNotFound, task.DocumentUID),
				"The document no longer exists.",
			)
		}
		return fmt.Errorf("loading document: %w", err)
	}
	if _, err := p.repo.GetKnowledgeBaseByUID(ctx, task.KBUID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorsx.AddMessage(
				fmt.Errorf("%w: knowledge base %s", errorsx.ErrTaskNotFound, task.KBUID),
				"The knowledge base no longer exists.",
			)
		}
		return fmt.Errorf("loading knowledge base: %w", err)
	}

	if err := p.repo.MarkDocumentRunning(ctx, task.DocumentUID); err != nil {
		return fmt.Errorf("marking document running: %w", err)
	}
	if err := p.repo.CreateTaskRun(ctx, task); err != nil {
		return fmt.Errorf("creating task run: %w", err)
	}

	reporter := newProgressReporter(p.repo, task.DocumentUID, log)

	chunks, err := p.parse(ctx, task, reporter.window(ctx, 0, progressParseEnd))
	if err != nil {
		return p.fail(ctx, task, log, err)
	}
	log.Info("Extraction finished", zap.Int("chunks", len(chunks)))

	if len(chunks) == 0 {
		// Nothing to embed or index: an empty document still completes.
		if err := p.indexer.finalize(ctx, task, nil); err != nil {
			return p.fail(ctx, task, log, err)
		}
		return nil
	}

	tokens, err := p.embedder.Embed(ctx, task, chunks, reporter.window(ctx, progressParseEnd, progressEmbedEnd))
	if err != nil {
		return p.fail(ctx, task, log, err)
	}
	log.Info("Embedding finished", zap.Int("modelTokens", tokens))

	if err := p.indexer.Index(ctx, task, chunks, p.embedDim, reporter.window(ctx, progressEmbedEnd, 1)); err != nil {
		return p.fail(ctx, task, log, err)
	}
	log.Info("Task finished", zap.Int("chunks", len(chunks)))
	return nil
}

// parse runs the extraction stage under its dedicated concurrency ceiling.
func (p *Pipeline) parse(ctx context.Context, task types.Task, progress ProgressFunc) ([]types.Chunk, error) {
	if err := p.parseSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.parseSem.Release(1)
	return p.chunker.Process(ctx, task, progress)
}

// fail records the failure and passes the error through for the scheduler
// to classify. Every failure surfaces on the document as run_state failed
// with a message; the permanent/transient split only decides queue
// settlement. A redelivered attempt resets the document to running on
// claim, so a transient failed state lasts only until the next attempt.
func (p *Pipeline) fail(ctx context.Context, task types.Task, log *zap.Logger, err error) error {
	msg := errorsx.Message(err)
	if recErr := p.repo.FailTaskRun(ctx, task.UID, msg); recErr != nil {
		log.Warn("Failed to record task failure", zap.Error(recErr))
	}
	if markErr := p.repo.MarkDocumentFailed(ctx, task.DocumentUID, msg); markErr != nil {
		log.Warn("Failed to mark document failed", zap.Error(markErr))
	}
	if errorsx.IsPermanent(err) {
		log.Error("Task failed permanently", zap.Error(err))
	} else {
		log.Warn("Task failed, eligible for redelivery", zap.Error(err))
	}
	return err
}
