package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dallisoft/ingest-backend/pkg/repository"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// Stage boundaries of the cumulative document progress. Parsing owns the
// first window, embedding the second, indexing the rest.
const (
	progressParseEnd = 0.7
	progressEmbedEnd = 0.9
)

// ProgressFunc reports a stage-local fraction in [0, 1] with an optional
// human-readable message.
type ProgressFunc func(fraction float64, msg string)

// progressReporter maps stage-local fractions onto the document's single
// cumulative progress value and persists it. Updates are monotone: a report
// below the last persisted value is dropped, so interleaved goroutines can
// never move progress backwards.
type progressReporter struct {
	repo        repository.Document
	documentUID types.DocumentUIDType
	log         *zap.Logger

	mu   sync.Mutex
	last float64
}

func newProgressReporter(repo repository.Document, documentUID types.DocumentUIDType, log *zap.Logger) *progressReporter {
	return &progressReporter{repo: repo, documentUID: documentUID, log: log}
}

// window returns a ProgressFunc that maps stage-local [0, 1] onto the
// cumulative [from, to] window.
func (p *progressReporter) window(ctx context.Context, from, to float64) ProgressFunc {
	return func(fraction float64, msg string) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		p.report(ctx, from+(to-from)*fraction, msg)
	}
}

func (p *progressReporter) report(ctx context.Context, progress float64, msg string) {
	p.mu.Lock()
	if progress <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = progress
	p.mu.Unlock()

	if err := p.repo.UpdateDocumentProgress(ctx, p.documentUID, progress, msg); err != nil {
		// Progress is advisory. A failed write must not fail the task.
		p.log.Warn("Failed to persist document progress",
			zap.String("documentUID", p.documentUID.String()),
			zap.Float64("progress", progress),
			zap.Error(err))
	}
}
