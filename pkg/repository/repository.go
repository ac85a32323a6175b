// Package repository implements the relational bookkeeping for the ingestion
// pipeline: document run-state and statistics, knowledge-base aggregates,
// and per-task rollback records.
package repository

import (
	"gorm.io/gorm"
)

// Repository groups the persistence operations the pipeline depends on.
type Repository interface {
	Document
	KnowledgeBase
	TaskRun
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}
