package repository

import (
	"time"

	"gorm.io/datatypes"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// DocumentModel is the per-document bookkeeping row. The run-state and
// progress fields are what the dashboard surfaces; chunk_num and token_num
// must reflect exactly the chunks currently indexed for the document.
type DocumentModel struct {
	UID       types.DocumentUIDType `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	KBUID     types.KBUIDType       `gorm:"column:kb_uid;type:uuid;not null" json:"kb_uid"`
	TenantUID types.TenantUIDType   `gorm:"column:tenant_uid;type:uuid;not null" json:"tenant_uid"`
	Name      string                `gorm:"column:name;size:255;not null" json:"name"`

	RunState    string  `gorm:"column:run_state;size:100;not null;default:pending" json:"run_state"`
	Progress    float64 `gorm:"column:progress;not null;default:0" json:"progress"`
	ProgressMsg string  `gorm:"column:progress_msg" json:"progress_msg"`
	ChunkNum    int     `gorm:"column:chunk_num;not null;default:0" json:"chunk_num"`
	TokenNum    int     `gorm:"column:token_num;not null;default:0" json:"token_num"`

	ProcessBeginAt *time.Time `gorm:"column:process_begin_at" json:"process_begin_at"`
	ProcessEndAt   *time.Time `gorm:"column:process_end_at" json:"process_end_at"`
	CreateTime     *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime     *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
}

// TableName overrides the table name
func (DocumentModel) TableName() string {
	return "document"
}

// DocumentColumn is the column name map for the document table
var DocumentColumn = struct {
	UID         string
	KBUID       string
	RunState    string
	Progress    string
	ProgressMsg string
	ChunkNum    string
	TokenNum    string
}{
	UID:         "uid",
	KBUID:       "kb_uid",
	RunState:    "run_state",
	Progress:    "progress",
	ProgressMsg: "progress_msg",
	ChunkNum:    "chunk_num",
	TokenNum:    "token_num",
}

// KnowledgeBaseModel aggregates usage counters across the documents of one
// knowledge base.
type KnowledgeBaseModel struct {
	UID       types.KBUIDType     `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	TenantUID types.TenantUIDType `gorm:"column:tenant_uid;type:uuid;not null" json:"tenant_uid"`
	Name      string              `gorm:"column:name;size:255;not null" json:"name"`

	DocNum   int `gorm:"column:doc_num;not null;default:0" json:"doc_num"`
	ChunkNum int `gorm:"column:chunk_num;not null;default:0" json:"chunk_num"`
	TokenNum int `gorm:"column:token_num;not null;default:0" json:"token_num"`

	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
	DeleteTime *time.Time `gorm:"column:delete_time" json:"delete_time"`
}

// TableName overrides the table name
func (KnowledgeBaseModel) TableName() string {
	return "knowledge_base"
}

// KnowledgeBaseColumn is the column name map for the knowledge_base table
var KnowledgeBaseColumn = struct {
	UID      string
	ChunkNum string
	TokenNum string
}{
	UID:      "uid",
	ChunkNum: "chunk_num",
	TokenNum: "token_num",
}

// Task run statuses. The done transition is a compare-and-set so that the
// knowledge-base aggregate increment happens at most once per task.
const (
	TaskRunStatusRunning = "running"
	TaskRunStatusFailed  = "failed"
	TaskRunStatusDone    = "done"
)

// TaskRunModel records one execution of an ingestion task. RollbackChunkUIDs
// is the rollback record: the chunk ids of every batch successfully written
// to the vector store, appended batch by batch so a retry or manual cleanup
// can always identify exactly what was written.
type TaskRunModel struct {
	UID         types.TaskUIDType     `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	DocumentUID types.DocumentUIDType `gorm:"column:document_uid;type:uuid;not null" json:"document_uid"`
	KBUID       types.KBUIDType       `gorm:"column:kb_uid;type:uuid;not null" json:"kb_uid"`
	TenantUID   types.TenantUIDType   `gorm:"column:tenant_uid;type:uuid;not null" json:"tenant_uid"`

	Status            string         `gorm:"column:status;size:100;not null;default:running" json:"status"`
	ErrorMsg          string         `gorm:"column:error_msg" json:"error_msg"`
	RollbackChunkUIDs datatypes.JSON `gorm:"column:rollback_chunk_uids;type:jsonb" json:"rollback_chunk_uids"`

	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
}

// TableName overrides the table name
func (TaskRunModel) TableName() string {
	return "task_run"
}
