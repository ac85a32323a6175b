package types

import (
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid"
)

type (
	// TaskUIDType is the ingestion task unique identifier
	TaskUIDType = uuid.UUID
	// DocumentUIDType is the document unique identifier
	DocumentUIDType = uuid.UUID
	// KBUIDType is the knowledge base unique identifier
	KBUIDType = uuid.UUID
	// TenantUIDType is the tenant unique identifier
	TenantUIDType = uuid.UUID
	// ChunkUIDType is the chunk unique identifier
	ChunkUIDType = uuid.UUID
)

// RunState represents the processing state surfaced on a document.
type RunState string

const (
	// RunStatePending means the document is enqueued but not yet claimed
	RunStatePending RunState = "pending"
	// RunStateRunning means a worker has claimed the document's task
	RunStateRunning RunState = "running"
	// RunStateFailed means the last task for the document failed terminally
	RunStateFailed RunState = "failed"
	// RunStateDone means the last task completed and chunks are indexed
	RunStateDone RunState = "done"
)

// ParserID identifies a named extraction strategy. The set is open: new
// strategies register themselves without touching the pipeline driver.
type ParserID string

const (
	// ParserNaive is the general text strategy (txt, md, plain documents)
	ParserNaive ParserID = "naive"
	// ParserQA extracts question-answer pairs, one chunk per pair
	ParserQA ParserID = "qa"
	// ParserTable extracts tabular rows (csv/tsv)
	ParserTable ParserID = "table"
	// ParserPaper is the academic-paper variant of the text strategy
	ParserPaper ParserID = "paper"
	// ParserPresentation emits one chunk per slide/page
	ParserPresentation ParserID = "presentation"
)

// ParserConfig carries the per-task chunking knobs. It is serialized as the
// task's parser_config JSONB payload.
type ParserConfig struct {
	// ChunkTokenNum is the token budget per chunk
	ChunkTokenNum int `json:"chunk_token_num"`
	// Delimiter is the segment boundary rune set used by the text splitter
	Delimiter string `json:"delimiter,omitempty"`
	// Overlap is the number of tokens repeated between consecutive chunks
	Overlap int `json:"overlap,omitempty"`
	// LayoutRecognize enables the OCR/layout sub-step for image-bearing pages
	LayoutRecognize bool `json:"layout_recognize,omitempty"`
	// AutoKeywords, when > 0, requests that many keywords per chunk from the
	// LLM augmentation capability
	AutoKeywords int `json:"auto_keywords,omitempty"`
	// AutoQuestions, when > 0, requests that many candidate questions per chunk
	AutoQuestions int `json:"auto_questions,omitempty"`
	// TitleWeight is the fraction of the title vector blended into each
	// chunk vector
	TitleWeight float64 `json:"title_weight,omitempty"`
}

// Default chunking parameters, applied when the task leaves them unset.
const (
	DefaultChunkTokenNum = 512
	DefaultDelimiter     = "\n!?。；！？"
	DefaultTitleWeight   = 0.1
)

// WithDefaults fills unset fields with the default chunking parameters.
func (c ParserConfig) WithDefaults() ParserConfig {
	if c.ChunkTokenNum <= 0 {
		c.ChunkTokenNum = DefaultChunkTokenNum
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if c.TitleWeight <= 0 {
		c.TitleWeight = DefaultTitleWeight
	}
	return c
}

// Task is one queued request to ingest or re-ingest a document. It is owned
// by the queue until claimed, then by the claiming worker until ack/nack.
type Task struct {
	UID            TaskUIDType     `json:"uid"`
	DocumentUID    DocumentUIDType `json:"document_uid"`
	KBUID          KBUIDType       `json:"kb_uid"`
	TenantUID      TenantUIDType   `json:"tenant_uid"`
	Filename       string          `json:"filename"`
	Title          string          `json:"title"`
	Language       string          `json:"language,omitempty"`
	ParserID       ParserID        `json:"parser_id"`
	ParserConfig   ParserConfig    `json:"parser_config"`
	EmbeddingModel string          `json:"embedding_model"`
	FromPage       int             `json:"from_page"`
	ToPage         int             `json:"to_page"`
	Pagerank       float64         `json:"pagerank,omitempty"`
}

// Position locates a chunk inside its source page for citation rendering.
type Position struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Chunk is the atomic retrievable unit: a bounded slice of extracted text
// with citation metadata. The Chunker creates it, the Embedder attaches the
// vector, the Indexer persists it. Once indexed it is immutable except for
// deletion together with its processing generation.
type Chunk struct {
	UID         ChunkUIDType
	DocumentUID DocumentUIDType
	KBUID       KBUIDType

	// ContentWithWeight is the chunk text including formatting weight markers
	ContentWithWeight string
	// ImageRef is the object-store key of the associated page image, if any
	ImageRef string
	// Keywords and Questions are optional LLM-derived augmentation
	Keywords  []string
	Questions []string

	// Vector is attached by the Embedder; its length is fixed per task
	Vector []float32

	PageNum  int
	Position Position
	TokenNum int
}

// EmbeddingText returns the text the Embedder should encode for this chunk:
// generated questions are preferred over the raw content when present.
func (c *Chunk) EmbeddingText() string {
	if len(c.Questions) > 0 {
		return strings.Join(c.Questions, "\n")
	}
	return c.ContentWithWeight
}

// FileExtension returns the lowercase extension of a filename without the
// leading dot, used for strategy fallback dispatch.
func FileExtension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
