package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	"github.com/dallisoft/ingest-backend/pkg/milvus"
	"github.com/dallisoft/ingest-backend/pkg/repository"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// Indexer persists vectorized chunks into the per-KB collection and settles
// the relational bookkeeping: document statistics, task completion, and the
// one-time knowledge-base aggregate increment.
type Indexer struct {
	vectorStore milvus.MilvusClientI
	repo        repository.Repository
	bulkSize    int
	log         *zap.Logger
}

// NewIndexer wires the indexer's collaborators.
func NewIndexer(vectorStore milvus.MilvusClientI, repo repository.Repository, bulkSize int, log *zap.Logger) *Indexer {
	if bulkSize <= 0 {
		bulkSize = 4
	}
	return &Indexer{
		vectorStore: vectorStore,
		repo:        repo,
		bulkSize:    bulkSize,
		log:         log,
	}
}

// Index replaces the document's previous chunk generation with the given
// chunks and finalizes the task. Chunks go in sequentially in bulk batches;
// every successful batch's ids are appended to the task's rollback record
// before the next batch starts, so a mid-task crash leaves an exact list of
// what reached the store. On a batch failure the already inserted vectors
// are deleted again, best effort, using the recorded ids; the record itself
// is kept so a retry or manual cleanup can still see what was written. The
// task surfaces a transient indexing error.
func (ix *Indexer) Index(ctx context.Context, task types.Task, chunks []types.Chunk, dim int, progress ProgressFunc) error {
	if err := ix.vectorStore.CreateKnowledgeBaseCollection(ctx, task.KBUID, dim); err != nil {
		return fmt.Errorf("%w: preparing collection: %v", errorsx.ErrIndexing, err)
	}

	// Supersede the previous generation. Last write wins per document.
	if err := ix.vectorStore.DeleteVectorsByDocument(ctx, task.KBUID, task.DocumentUID); err != nil {
		return fmt.Errorf("%w: removing previous generation: %v", errorsx.ErrIndexing, err)
	}

	batches := (len(chunks) + ix.bulkSize - 1) / ix.bulkSize
	for i := 0; i < len(chunks); i += ix.bulkSize {
		batch := chunks[i:min(i+ix.bulkSize, len(chunks))]
		records := make([]milvus.VectorRecord, len(batch))
		chunkUIDs := make([]types.ChunkUIDType, len(batch))
		for j, chunk := range batch {
			records[j] = milvus.VectorRecord{
				ChunkUID:    chunk.UID,
				DocumentUID: chunk.DocumentUID,
				TenantUID:   task.TenantUID,
				Content:     chunk.ContentWithWeight,
				PageNum:     int64(chunk.PageNum),
				Vector:      chunk.Vector,
			}
			chunkUIDs[j] = chunk.UID
		}

		if err := ix.vectorStore.InsertVectors(ctx, task.KBUID, records); err != nil {
			ix.rollback(ctx, task)
			return errorsx.AddMessage(
				fmt.Errorf("%w: batch %d/%d: %v", errorsx.ErrIndexing, i/ix.bulkSize+1, batches, err),
				"Indexing the document failed. It will be retried.",
			)
		}
		if err := ix.repo.AppendRollbackChunkUIDs(ctx, task.UID, chunkUIDs); err != nil {
			return fmt.Errorf("recording inserted chunk ids: %w", err)
		}
		if progress != nil {
			batchNum := i/ix.bulkSize + 1
			progress(float64(batchNum)/float64(batches),
				fmt.Sprintf("Indexed batch %d/%d", batchNum, batches))
		}
	}

	return ix.finalize(ctx, task, chunks)
}

// finalize settles the bookkeeping. Document statistics are absolute
// counts, so re-running them is harmless; the knowledge-base aggregates are
// increments and therefore only applied inside the task's one-time
// completion transaction.
func (ix *Indexer) finalize(ctx context.Context, task types.Task, chunks []types.Chunk) error {
	chunkNum := len(chunks)
	tokenNum := 0
	for _, chunk := range chunks {
		tokenNum += chunk.TokenNum
	}

	if err := ix.repo.FinalizeDocumentSuccess(ctx, task.DocumentUID, chunkNum, tokenNum); err != nil {
		return fmt.Errorf("finalizing document: %w", err)
	}

	applied, err := ix.repo.CompleteTaskRun(ctx, task.UID, func(tx *gorm.DB) error {
		return ix.repo.IncreaseKnowledgeBaseUsage(ctx, tx, task.KBUID, chunkNum, tokenNum)
	})
	if err != nil {
		return fmt.Errorf("completing task run: %w", err)
	}
	if !applied {
		ix.log.Info("Task already completed by an earlier delivery, skipping usage increment",
			zap.String("taskUID", task.UID.String()))
	}
	return nil
}

// rollback removes the chunks this task managed to insert, using the
// per-batch record. Best effort: the superseding delete on the next
// delivery covers anything left behind.
func (ix *Indexer) rollback(ctx context.Context, task types.Task) {
	chunkUIDs, err := ix.repo.GetRollbackChunkUIDs(ctx, task.UID)
	if err != nil {
		ix.log.Warn("Failed to load rollback record",
			zap.String("taskUID", task.UID.String()), zap.Error(err))
		return
	}
	if len(chunkUIDs) == 0 {
		return
	}
	if err := ix.vectorStore.DeleteVectorsByUIDs(ctx, task.KBUID, chunkUIDs); err != nil {
		ix.log.Warn("Failed to roll back inserted chunks",
			zap.String("taskUID", task.UID.String()),
			zap.Int("chunks", len(chunkUIDs)), zap.Error(err))
	}
}
