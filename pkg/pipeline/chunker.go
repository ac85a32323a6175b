package pipeline

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"github.com/dallisoft/ingest-backend/pkg/ai"
	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	miniox "github.com/dallisoft/ingest-backend/pkg/minio"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// Chunker turns a task's source file into identified, augmented chunks. It
// owns the strategy dispatch, the size ceiling, the optional LLM
// augmentation and the page-image upload. Chunk text is whitespace
// normalized: the splitter trims each segment, so concatenating the
// produced chunks yields the source content modulo inter-segment
// whitespace.
type Chunker struct {
	registry    *Registry
	store       miniox.MinioI
	tokenizer   ai.Tokenizer
	ocr         ai.OCRClient
	augmenter   ai.AugmentationClient
	maxFileSize int64
	log         *zap.Logger
}

// NewChunker wires the chunker's collaborators.
func NewChunker(registry *Registry, store miniox.MinioI, tokenizer ai.Tokenizer, ocr ai.OCRClient, augmenter ai.AugmentationClient, maxFileSize int64, log *zap.Logger) *Chunker {
	return &Chunker{
		registry:    registry,
		store:       store,
		tokenizer:   tokenizer,
		ocr:         ocr,
		augmenter:   augmenter,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// Process extracts the task's chunks. The size ceiling is checked before
// any byte is fetched or parsed so oversized files fail fast and terminal.
func (c *Chunker) Process(ctx context.Context, task types.Task, progress ProgressFunc) ([]types.Chunk, error) {
	filePath := miniox.DocumentFilePath(task.KBUID, task.DocumentUID, task.Filename)

	size, err := c.store.StatFileSize(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("statting %s: %w", filePath, err)
	}
	if c.maxFileSize > 0 && size > c.maxFileSize {
		return nil, errorsx.AddMessage(
			fmt.Errorf("%w: %d bytes (limit %d)", errorsx.ErrFileTooLarge, size, c.maxFileSize),
			fmt.Sprintf("The file exceeds the %d MB size limit.", c.maxFileSize/(1024*1024)),
		)
	}

	parse, err := c.registry.ResolveForFile(task.ParserID, task.Filename)
	if err != nil {
		return nil, err
	}

	content, err := c.store.GetFile(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", filePath, err)
	}

	cfg := task.ParserConfig.WithDefaults()
	chunks, err := parse(ctx, ParseInput{
		Filename:  task.Filename,
		Content:   content,
		FromPage:  task.FromPage,
		ToPage:    task.ToPage,
		Language:  task.Language,
		Config:    cfg,
		Tokenizer: c.tokenizer,
		OCR:       c.ocr,
		Progress:  scaled(progress, 0, 0.8),
	})
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunkUID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("generating chunk id: %w", err)
		}
		chunks[i].UID = chunkUID
		chunks[i].DocumentUID = task.DocumentUID
		chunks[i].KBUID = task.KBUID
	}

	c.augment(ctx, cfg, chunks)

	if err := c.uploadImages(ctx, task, content, chunks); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(1, fmt.Sprintf("Extracted %d chunks", len(chunks)))
	}
	return chunks, nil
}

// augment attaches LLM-derived keywords and questions when the task asks
// for them. Augmentation is best effort: a failed call is logged and the
// chunk proceeds bare, never failing the task.
func (c *Chunker) augment(ctx context.Context, cfg types.ParserConfig, chunks []types.Chunk) {
	if c.augmenter == nil || (cfg.AutoKeywords <= 0 && cfg.AutoQuestions <= 0) {
		return
	}
	for i := range chunks {
		if cfg.AutoKeywords > 0 {
			keywords, err := c.augmenter.ExtractKeywords(ctx, chunks[i].ContentWithWeight, cfg.AutoKeywords)
			if err != nil {
				c.log.Warn("Keyword extraction failed, continuing without",
					zap.String("chunkUID", chunks[i].UID.String()), zap.Error(err))
			} else {
				chunks[i].Keywords = keywords
			}
		}
		if cfg.AutoQuestions > 0 {
			questions, err := c.augmenter.ProposeQuestions(ctx, chunks[i].ContentWithWeight, cfg.AutoQuestions)
			if err != nil {
				c.log.Warn("Question proposal failed, continuing without",
					zap.String("chunkUID", chunks[i].UID.String()), zap.Error(err))
			} else {
				chunks[i].Questions = append(chunks[i].Questions, questions...)
			}
		}
	}
}

// uploadImages stores the page image of image-born chunks and records the
// object key on the chunk. A superseded generation's images are wiped
// first so the prefix only ever holds the current generation.
func (c *Chunker) uploadImages(ctx context.Context, task types.Task, content []byte, chunks []types.Chunk) error {
	if !imageExtensions[types.FileExtension(task.Filename)] {
		return nil
	}
	prefix := miniox.DocumentImagePrefix(task.KBUID, task.DocumentUID)
	if err := c.store.DeleteFilesWithPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("wiping image prefix %s: %w", prefix, err)
	}
	for i := range chunks {
		key := miniox.ChunkImagePath(task.KBUID, task.DocumentUID, chunks[i].UID)
		if err := c.store.UploadFile(ctx, key, content, "image/png"); err != nil {
			return fmt.Errorf("uploading chunk image %s: %w", key, err)
		}
		chunks[i].ImageRef = key
	}
	return nil
}

// scaled maps a stage-local fraction into a sub-window of the given
// ProgressFunc.
func scaled(progress ProgressFunc, from, to float64) ProgressFunc {
	if progress == nil {
		return nil
	}
	return func(fraction float64, msg string) {
		progress(from+(to-from)*fraction, msg)
	}
}
