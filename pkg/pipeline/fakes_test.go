package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/dallisoft/ingest-backend/pkg/ai"
	"github.com/dallisoft/ingest-backend/pkg/milvus"
	miniox "github.com/dallisoft/ingest-backend/pkg/minio"
	"github.com/dallisoft/ingest-backend/pkg/repository"
	"github.com/dallisoft/ingest-backend/pkg/types"

	miniogo "github.com/minio/minio-go/v7"
)

// wordTokenizer counts whitespace-separated words so tests do not depend on
// the real BPE encoding.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (wordTokenizer) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

// fakeEmbedder records every batch it receives and returns deterministic
// vectors so reassembly order can be asserted.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	// vectorFor lets a test control the vector per input text.
	vectorFor func(text string) []float32
	// tokensPerCall is the usage reported per Embed call.
	tokensPerCall int
	err           error
	dim           int
	maxInput      int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, maxInput: 8191}
}

func (f *fakeEmbedder) Name() string        { return "fake" }
func (f *fakeEmbedder) Dimensionality() int { return f.dim }
func (f *fakeEmbedder) MaxInputTokens() int { return f.maxInput }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	f.mu.Lock()
	batch := make([]string, len(texts))
	copy(batch, texts)
	f.batches = append(f.batches, batch)
	f.mu.Unlock()

	if f.err != nil {
		return nil, 0, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if f.vectorFor != nil {
			vectors[i] = f.vectorFor(text)
			continue
		}
		vectors[i] = make([]float32, f.dim)
	}
	return vectors, f.tokensPerCall, nil
}

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// fakeAugmenter serves fixed keywords and questions, or a configured error.
type fakeAugmenter struct {
	keywords  []string
	questions []string
	err       error
}

func (f *fakeAugmenter) ExtractKeywords(ctx context.Context, text string, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keywords, nil
}

func (f *fakeAugmenter) ProposeQuestions(ctx context.Context, text string, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

// fakeStore is an in-memory object store.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) put(key string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
}

func (f *fakeStore) GetClient() *miniogo.Client { return nil }

func (f *fakeStore) GetFile(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return content, nil
}

func (f *fakeStore) StatFileSize(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("object %s not found", key)
	}
	return int64(len(content)), nil
}

func (f *fakeStore) UploadFile(ctx context.Context, key string, content []byte, mimeType string) error {
	f.put(key, content)
	return nil
}

func (f *fakeStore) DeleteFile(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) DeleteFilesWithPrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
		}
	}
	return nil
}

// fakeVectorStore records insert batches and can be told to fail from a
// given batch on.
type fakeVectorStore struct {
	mu            sync.Mutex
	inserts       [][]milvus.VectorRecord
	deletedByUIDs [][]types.ChunkUIDType
	deletedDocs   []types.DocumentUIDType
	// failFromBatch makes InsertVectors fail on the Nth call (1-based).
	failFromBatch int
}

func (f *fakeVectorStore) GetHealth(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeVectorStore) CreateKnowledgeBaseCollection(ctx context.Context, kbUID types.KBUIDType, dim int) error {
	return nil
}

func (f *fakeVectorStore) InsertVectors(ctx context.Context, kbUID types.KBUIDType, records []milvus.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFromBatch > 0 && len(f.inserts)+1 >= f.failFromBatch {
		return fmt.Errorf("insert refused")
	}
	batch := make([]milvus.VectorRecord, len(records))
	copy(batch, records)
	f.inserts = append(f.inserts, batch)
	return nil
}

func (f *fakeVectorStore) DeleteVectorsByDocument(ctx context.Context, kbUID types.KBUIDType, documentUID types.DocumentUIDType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, documentUID)
	return nil
}

func (f *fakeVectorStore) DeleteVectorsByUIDs(ctx context.Context, kbUID types.KBUIDType, chunkUIDs []types.ChunkUIDType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedByUIDs = append(f.deletedByUIDs, chunkUIDs)
	return nil
}

func (f *fakeVectorStore) DropKnowledgeBaseCollection(ctx context.Context, kbUID types.KBUIDType) error {
	return nil
}

func (f *fakeVectorStore) Close() {}

// fakeRepository is an in-memory Repository.
type fakeRepository struct {
	mu sync.Mutex

	documents map[types.DocumentUIDType]*repository.DocumentModel
	kbs       map[types.KBUIDType]*repository.KnowledgeBaseModel
	runs      map[types.TaskUIDType]*fakeTaskRun

	// progressHistory records every persisted progress value in order.
	progressHistory []float64

	kbChunkDelta int
	kbTokenDelta int
	usageApplied int
}

type fakeTaskRun struct {
	status      string
	errorMsg    string
	rollbackIDs []types.ChunkUIDType
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		documents: map[types.DocumentUIDType]*repository.DocumentModel{},
		kbs:       map[types.KBUIDType]*repository.KnowledgeBaseModel{},
		runs:      map[types.TaskUIDType]*fakeTaskRun{},
	}
}

func (f *fakeRepository) addDocument(uid types.DocumentUIDType, kbUID types.KBUIDType) {
	f.documents[uid] = &repository.DocumentModel{UID: uid, KBUID: kbUID}
	if _, ok := f.kbs[kbUID]; !ok {
		f.kbs[kbUID] = &repository.KnowledgeBaseModel{UID: kbUID}
	}
}

func (f *fakeRepository) GetDocumentByUID(ctx context.Context, uid types.DocumentUIDType) (*repository.DocumentModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return doc, nil
}

func (f *fakeRepository) MarkDocumentRunning(ctx context.Context, uid types.DocumentUIDType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.documents[uid]; ok {
		doc.RunState = string(types.RunStateRunning)
		doc.Progress = 0
		doc.ProgressMsg = ""
	}
	return nil
}

func (f *fakeRepository) UpdateDocumentProgress(ctx context.Context, uid types.DocumentUIDType, progress float64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.documents[uid]; ok {
		doc.Progress = progress
		doc.ProgressMsg = msg
	}
	f.progressHistory = append(f.progressHistory, progress)
	return nil
}

func (f *fakeRepository) MarkDocumentFailed(ctx context.Context, uid types.DocumentUIDType, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.documents[uid]; ok {
		doc.RunState = string(types.RunStateFailed)
		doc.ProgressMsg = msg
	}
	return nil
}

func (f *fakeRepository) FinalizeDocumentSuccess(ctx context.Context, uid types.DocumentUIDType, chunkNum, tokenNum int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.documents[uid]; ok {
		doc.RunState = string(types.RunStateDone)
		doc.Progress = 1
		doc.ChunkNum = chunkNum
		doc.TokenNum = tokenNum
	}
	return nil
}

func (f *fakeRepository) GetKnowledgeBaseByUID(ctx context.Context, uid types.KBUIDType) (*repository.KnowledgeBaseModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kb, ok := f.kbs[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return kb, nil
}

func (f *fakeRepository) IncreaseKnowledgeBaseUsage(ctx context.Context, tx *gorm.DB, uid types.KBUIDType, chunkDelta, tokenDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kbChunkDelta += chunkDelta
	f.kbTokenDelta += tokenDelta
	f.usageApplied++
	return nil
}

func (f *fakeRepository) CreateTaskRun(ctx context.Context, task types.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[task.UID]; ok && run.status == repository.TaskRunStatusDone {
		// A completed record stays done, as in the real repository.
		return nil
	}
	f.runs[task.UID] = &fakeTaskRun{status: repository.TaskRunStatusRunning}
	return nil
}

func (f *fakeRepository) GetTaskRun(ctx context.Context, uid types.TaskUIDType) (*repository.TaskRunModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &repository.TaskRunModel{UID: uid, Status: run.status, ErrorMsg: run.errorMsg}, nil
}

func (f *fakeRepository) AppendRollbackChunkUIDs(ctx context.Context, uid types.TaskUIDType, chunkUIDs []types.ChunkUIDType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[uid]
	if !ok {
		run = &fakeTaskRun{status: repository.TaskRunStatusRunning}
		f.runs[uid] = run
	}
	run.rollbackIDs = append(run.rollbackIDs, chunkUIDs...)
	return nil
}

func (f *fakeRepository) GetRollbackChunkUIDs(ctx context.Context, uid types.TaskUIDType) ([]types.ChunkUIDType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[uid]
	if !ok {
		return nil, nil
	}
	return append([]types.ChunkUIDType(nil), run.rollbackIDs...), nil
}

func (f *fakeRepository) FailTaskRun(ctx context.Context, uid types.TaskUIDType, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[uid]; ok {
		run.status = repository.TaskRunStatusFailed
		run.errorMsg = msg
	}
	return nil
}

func (f *fakeRepository) CompleteTaskRun(ctx context.Context, uid types.TaskUIDType, fn func(tx *gorm.DB) error) (bool, error) {
	f.mu.Lock()
	run, ok := f.runs[uid]
	if !ok {
		run = &fakeTaskRun{}
		f.runs[uid] = run
	}
	if run.status == repository.TaskRunStatusDone {
		f.mu.Unlock()
		return false, nil
	}
	run.status = repository.TaskRunStatusDone
	f.mu.Unlock()

	if fn != nil {
		if err := fn(nil); err != nil {
			return true, err
		}
	}
	return true, nil
}

var _ repository.Repository = (*fakeRepository)(nil)
var _ miniox.MinioI = (*fakeStore)(nil)
var _ milvus.MilvusClientI = (*fakeVectorStore)(nil)
var _ ai.EmbeddingClient = (*fakeEmbedder)(nil)
var _ ai.AugmentationClient = (*fakeAugmenter)(nil)
var _ ai.Tokenizer = wordTokenizer{}
