package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// KnowledgeBase defines the knowledge-base aggregate operations.
type KnowledgeBase interface {
	GetKnowledgeBaseByUID(ctx context.Context, kbUID types.KBUIDType) (*KnowledgeBaseModel, error)
	// IncreaseKnowledgeBaseUsage increments the aggregate chunk and token
	// counters. Callers must guard it with the task's one-time completion
	// (see CompleteTaskRun) so redelivery cannot double count.
	IncreaseKnowledgeBaseUsage(ctx context.Context, tx *gorm.DB, kbUID types.KBUIDType, chunkDelta, tokenDelta int) error
}

func (r *repository) GetKnowledgeBaseByUID(ctx context.Context, kbUID types.KBUIDType) (*KnowledgeBaseModel, error) {
	var kb KnowledgeBaseModel
	whereString := fmt.Sprintf("%v = ? AND delete_time IS NULL", KnowledgeBaseColumn.UID)
	if err := r.db.WithContext(ctx).Where(whereString, kbUID).First(&kb).Error; err != nil {
		return nil, err
	}
	return &kb, nil
}

func (r *repository) IncreaseKnowledgeBaseUsage(ctx context.Context, tx *gorm.DB, kbUID types.KBUIDType, chunkDelta, tokenDelta int) error {
	if tx == nil {
		tx = r.db.WithContext(ctx)
	}
	where := fmt.Sprintf("%v = ?", KnowledgeBaseColumn.UID)
	updates := map[string]any{
		KnowledgeBaseColumn.ChunkNum: gorm.Expr(fmt.Sprintf("%v + ?", KnowledgeBaseColumn.ChunkNum), chunkDelta),
		KnowledgeBaseColumn.TokenNum: gorm.Expr(fmt.Sprintf("%v + ?", KnowledgeBaseColumn.TokenNum), tokenDelta),
	}
	return tx.Model(&KnowledgeBaseModel{}).Where(where, kbUID).Updates(updates).Error
}
