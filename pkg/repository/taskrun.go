package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// TaskRun defines the per-task execution record operations, including the
// rollback bookkeeping.
type TaskRun interface {
	// CreateTaskRun upserts the execution record for a task in running
	// state. A redelivered task reuses its UID and resets the record.
	CreateTaskRun(ctx context.Context, task types.Task) error
	GetTaskRun(ctx context.Context, taskUID types.TaskUIDType) (*TaskRunModel, error)
	// AppendRollbackChunkUIDs appends a successful insert batch's chunk ids
	// to the task's rollback record.
	AppendRollbackChunkUIDs(ctx context.Context, taskUID types.TaskUIDType, chunkUIDs []types.ChunkUIDType) error
	// GetRollbackChunkUIDs returns every chunk id recorded for the task.
	GetRollbackChunkUIDs(ctx context.Context, taskUID types.TaskUIDType) ([]types.ChunkUIDType, error)
	// FailTaskRun records a task failure with its message.
	FailTaskRun(ctx context.Context, taskUID types.TaskUIDType, msg string) error
	// CompleteTaskRun transitions the task to done and, within the same
	// transaction, applies fn exactly once: the transition is a
	// compare-and-set on the status column, so a concurrent or redelivered
	// duplicate observes zero affected rows and skips fn.
	CompleteTaskRun(ctx context.Context, taskUID types.TaskUIDType, fn func(tx *gorm.DB) error) (bool, error)
}

func (r *repository) CreateTaskRun(ctx context.Context, task types.Task) error {
	run := TaskRunModel{
		UID:               task.UID,
		DocumentUID:       task.DocumentUID,
		KBUID:             task.KBUID,
		TenantUID:         task.TenantUID,
		Status:            TaskRunStatusRunning,
		RollbackChunkUIDs: datatypes.JSON([]byte("[]")),
	}
	// Reset a previous non-terminal attempt. A completed record stays done
	// so the one-time usage increment cannot re-apply when a fully
	// processed task is redelivered.
	res := r.db.WithContext(ctx).Model(&TaskRunModel{}).
		Where("uid = ? AND status <> ?", task.UID, TaskRunStatusDone).
		Updates(map[string]any{
			"status":              TaskRunStatusRunning,
			"error_msg":           "",
			"rollback_chunk_uids": datatypes.JSON([]byte("[]")),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("uid = ?", task.UID).FirstOrCreate(&run).Error
}

func (r *repository) GetTaskRun(ctx context.Context, taskUID types.TaskUIDType) (*TaskRunModel, error) {
	var run TaskRunModel
	if err := r.db.WithContext(ctx).Where("uid = ?", taskUID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) AppendRollbackChunkUIDs(ctx context.Context, taskUID types.TaskUIDType, chunkUIDs []types.ChunkUIDType) error {
	if len(chunkUIDs) == 0 {
		return nil
	}
	ids := make([]string, len(chunkUIDs))
	for i, id := range chunkUIDs {
		ids[i] = id.String()
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding rollback chunk ids: %w", err)
	}
	// jsonb concatenation keeps the append atomic at the database level.
	return r.db.WithContext(ctx).Model(&TaskRunModel{}).
		Where("uid = ?", taskUID).
		Update("rollback_chunk_uids",
			gorm.Expr("COALESCE(rollback_chunk_uids, '[]'::jsonb) || ?::jsonb", string(payload))).
		Error
}

func (r *repository) GetRollbackChunkUIDs(ctx context.Context, taskUID types.TaskUIDType) ([]types.ChunkUIDType, error) {
	run, err := r.GetTaskRun(ctx, taskUID)
	if err != nil {
		return nil, err
	}
	var ids []string
	if len(run.RollbackChunkUIDs) > 0 {
		if err := json.Unmarshal(run.RollbackChunkUIDs, &ids); err != nil {
			return nil, fmt.Errorf("decoding rollback chunk ids: %w", err)
		}
	}
	chunkUIDs := make([]types.ChunkUIDType, 0, len(ids))
	for _, id := range ids {
		chunkUID, err := uuid.FromString(id)
		if err != nil {
			return nil, fmt.Errorf("invalid rollback chunk id %q: %w", id, err)
		}
		chunkUIDs = append(chunkUIDs, chunkUID)
	}
	return chunkUIDs, nil
}

func (r *repository) FailTaskRun(ctx context.Context, taskUID types.TaskUIDType, msg string) error {
	return r.db.WithContext(ctx).Model(&TaskRunModel{}).
		Where("uid = ?", taskUID).
		Updates(map[string]any{
			"status":    TaskRunStatusFailed,
			"error_msg": msg,
		}).Error
}

func (r *repository) CompleteTaskRun(ctx context.Context, taskUID types.TaskUIDType, fn func(tx *gorm.DB) error) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&TaskRunModel{}).
			Where("uid = ? AND status <> ?", taskUID, TaskRunStatusDone).
			Update("status", TaskRunStatusDone)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already completed by another delivery of the same task.
			return nil
		}
		applied = true
		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	return applied, err
}
