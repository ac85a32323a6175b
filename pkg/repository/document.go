package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// Document defines the document bookkeeping operations.
type Document interface {
	GetDocumentByUID(ctx context.Context, documentUID types.DocumentUIDType) (*DocumentModel, error)
	// MarkDocumentRunning flips the run-state to running and resets progress
	// for a new task of the same document.
	MarkDocumentRunning(ctx context.Context, documentUID types.DocumentUIDType) error
	// UpdateDocumentProgress persists the latest cumulative progress fraction
	// and message.
	UpdateDocumentProgress(ctx context.Context, documentUID types.DocumentUIDType, progress float64, msg string) error
	// MarkDocumentFailed flips the run-state to failed with a human-readable
	// message. The state holds until a redelivered attempt claims the
	// document again or the failure was terminal.
	MarkDocumentFailed(ctx context.Context, documentUID types.DocumentUIDType, msg string) error
	// FinalizeDocumentSuccess sets the document's statistics to the absolute
	// counts derived from the task's chunk list. Setting absolute values,
	// not increments, keeps the update idempotent under queue redelivery.
	FinalizeDocumentSuccess(ctx context.Context, documentUID types.DocumentUIDType, chunkNum, tokenNum int) error
}

func (r *repository) GetDocumentByUID(ctx context.Context, documentUID types.DocumentUIDType) (*DocumentModel, error) {
	var doc DocumentModel
	where := fmt.Sprintf("%v = ?", DocumentColumn.UID)
	if err := r.db.WithContext(ctx).Where(where, documentUID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) MarkDocumentRunning(ctx context.Context, documentUID types.DocumentUIDType) error {
	now := time.Now().UTC()
	where := fmt.Sprintf("%v = ?", DocumentColumn.UID)
	updates := map[string]any{
		DocumentColumn.RunState:    string(types.RunStateRunning),
		DocumentColumn.Progress:    0.0,
		DocumentColumn.ProgressMsg: "",
		"process_begin_at":         now,
		"process_end_at":           gorm.Expr("NULL"),
	}
	return r.db.WithContext(ctx).Model(&DocumentModel{}).Where(where, documentUID).Updates(updates).Error
}

func (r *repository) UpdateDocumentProgress(ctx context.Context, documentUID types.DocumentUIDType, progress float64, msg string) error {
	where := fmt.Sprintf("%v = ?", DocumentColumn.UID)
	updates := map[string]any{
		DocumentColumn.Progress: progress,
	}
	if msg != "" {
		updates[DocumentColumn.ProgressMsg] = msg
	}
	return r.db.WithContext(ctx).Model(&DocumentModel{}).Where(where, documentUID).Updates(updates).Error
}

func (r *repository) MarkDocumentFailed(ctx context.Context, documentUID types.DocumentUIDType, msg string) error {
	now := time.Now().UTC()
	where := fmt.Sprintf("%v = ?", DocumentColumn.UID)
	updates := map[string]any{
		DocumentColumn.RunState:    string(types.RunStateFailed),
		DocumentColumn.ProgressMsg: msg,
		"process_end_at":           now,
	}
	return r.db.WithContext(ctx).Model(&DocumentModel{}).Where(where, documentUID).Updates(updates).Error
}

func (r *repository) FinalizeDocumentSuccess(ctx context.Context, documentUID types.DocumentUIDType, chunkNum, tokenNum int) error {
	now := time.Now().UTC()
	where := fmt.Sprintf("%v = ?", DocumentColumn.UID)
	updates := map[string]any{
		DocumentColumn.RunState:    string(types.RunStateDone),
		DocumentColumn.Progress:    1.0,
		DocumentColumn.ProgressMsg: "",
		DocumentColumn.ChunkNum:    chunkNum,
		DocumentColumn.TokenNum:    tokenNum,
		"process_end_at":           now,
	}
	return r.db.WithContext(ctx).Model(&DocumentModel{}).Where(where, documentUID).Updates(updates).Error
}
