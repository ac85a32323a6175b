// Package milvus implements the search/vector store collaborator. Each
// knowledge base maps to one collection; every chunk record carries its
// tenant and document ids so deletes and queries can be scoped correctly.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/dallisoft/ingest-backend/pkg/logger"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// MilvusClientI is the vector-store interface consumed by the Indexer.
type MilvusClientI interface {
	GetHealth(ctx context.Context) (bool, error)
	// CreateKnowledgeBaseCollection creates the per-KB collection with the
	// given vector dimensionality if it does not exist yet.
	CreateKnowledgeBaseCollection(ctx context.Context, kbUID types.KBUIDType, dim int) error
	// InsertVectors bulk-inserts one batch of vectorized chunks.
	InsertVectors(ctx context.Context, kbUID types.KBUIDType, records []VectorRecord) error
	// DeleteVectorsByDocument removes every chunk of a document, used to
	// supersede a previous parse generation before re-inserting.
	DeleteVectorsByDocument(ctx context.Context, kbUID types.KBUIDType, documentUID types.DocumentUIDType) error
	// DeleteVectorsByUIDs removes specific chunks, used for rollback of a
	// partially indexed task.
	DeleteVectorsByUIDs(ctx context.Context, kbUID types.KBUIDType, chunkUIDs []types.ChunkUIDType) error
	// DropKnowledgeBaseCollection removes the whole collection.
	DropKnowledgeBaseCollection(ctx context.Context, kbUID types.KBUIDType) error
	Close()
}

// MilvusClient wraps the milvus grpc client.
type MilvusClient struct {
	c client.Client
}

// Index parameters, kept from the catalog deployment defaults.
const (
	ScannNlist = 1024
	MetricType = entity.COSINE
	WithRaw    = true
)

// VectorRecord is one chunk row as stored in the collection.
type VectorRecord struct {
	ChunkUID    types.ChunkUIDType
	DocumentUID types.DocumentUIDType
	TenantUID   types.TenantUIDType
	Content     string
	PageNum     int64
	Vector      []float32
}

// Collection field names. The vector field name encodes the vector width so
// that collections of different embedding models stay self-describing.
const (
	FieldChunkUID    = "chunk_uid"
	FieldDocumentUID = "document_uid"
	FieldTenantUID   = "tenant_uid"
	FieldContent     = "content"
	FieldPageNum     = "page_num"
)

// VectorFieldName returns the dimension-suffixed vector field name, e.g.
// q_1536_vec for a 1536-wide model.
func VectorFieldName(dim int) string {
	return fmt.Sprintf("q_%d_vec", dim)
}

// NewMilvusClient connects to the milvus deployment.
func NewMilvusClient(ctx context.Context, host, port string) (MilvusClientI, error) {
	c, err := client.NewGrpcClient(ctx, host+":"+port)
	if err != nil {
		return nil, err
	}
	return &MilvusClient{c: c}, nil
}

// GetHealth reports whether the milvus deployment is healthy.
func (m *MilvusClient) GetHealth(ctx context.Context) (bool, error) {
	h, err := m.c.CheckHealth(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check health: %w", err)
	}
	if h == nil {
		return false, fmt.Errorf("health check returned nil")
	}
	return h.IsHealthy, nil
}

// CreateKnowledgeBaseCollection creates the per-KB collection and its index.
func (m *MilvusClient) CreateKnowledgeBaseCollection(ctx context.Context, kbUID types.KBUIDType, dim int) error {
	log, _ := logger.GetZapLogger(ctx)
	collectionName := KnowledgeBaseCollectionName(kbUID)

	has, err := m.c.HasCollection(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if has {
		log.Info("Collection already exists", zap.String("collection_name", collectionName))
		return nil
	}

	vectorField := VectorFieldName(dim)
	schema := &entity.Schema{
		CollectionName: collectionName,
		Fields: []*entity.Field{
			{Name: FieldChunkUID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{"max_length": "255"}},
			{Name: FieldDocumentUID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "255"}},
			{Name: FieldTenantUID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "255"}},
			{Name: FieldContent, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			{Name: FieldPageNum, DataType: entity.FieldTypeInt64},
			{Name: vectorField, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)}},
		},
	}

	if err := m.c.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	index, err := entity.NewIndexSCANN(MetricType, ScannNlist, WithRaw)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.c.CreateIndex(ctx, collectionName, vectorField, index, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	log.Info("Collection created successfully", zap.String("collection_name", collectionName))
	return nil
}

// InsertVectors bulk-inserts one batch of chunk records. All records of a
// batch must share the same vector dimensionality.
func (m *MilvusClient) InsertVectors(ctx context.Context, kbUID types.KBUIDType, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	collectionName := KnowledgeBaseCollectionName(kbUID)

	has, err := m.c.HasCollection(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !has {
		return fmt.Errorf("collection %s does not exist", collectionName)
	}

	dim := len(records[0].Vector)
	count := len(records)
	chunkUIDs := make([]string, count)
	documentUIDs := make([]string, count)
	tenantUIDs := make([]string, count)
	contents := make([]string, count)
	pageNums := make([]int64, count)
	vectors := make([][]float32, count)

	for i, rec := range records {
		if len(rec.Vector) != dim {
			return fmt.Errorf("record %d has dimension %d, want %d", i, len(rec.Vector), dim)
		}
		chunkUIDs[i] = rec.ChunkUID.String()
		documentUIDs[i] = rec.DocumentUID.String()
		tenantUIDs[i] = rec.TenantUID.String()
		contents[i] = rec.Content
		pageNums[i] = rec.PageNum
		vectors[i] = rec.Vector
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(FieldChunkUID, chunkUIDs),
		entity.NewColumnVarChar(FieldDocumentUID, documentUIDs),
		entity.NewColumnVarChar(FieldTenantUID, tenantUIDs),
		entity.NewColumnVarChar(FieldContent, contents),
		entity.NewColumnInt64(FieldPageNum, pageNums),
		entity.NewColumnFloatVector(VectorFieldName(dim), dim, vectors),
	}

	if _, err := m.c.Upsert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}
	if err := m.c.Flush(ctx, collectionName, false); err != nil {
		return fmt.Errorf("failed to flush collection after insertion: %w", err)
	}
	return nil
}

// DeleteVectorsByDocument removes every chunk of one document.
func (m *MilvusClient) DeleteVectorsByDocument(ctx context.Context, kbUID types.KBUIDType, documentUID types.DocumentUIDType) error {
	collectionName := KnowledgeBaseCollectionName(kbUID)
	has, err := m.c.HasCollection(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !has {
		// Nothing indexed for this KB yet; nothing to supersede.
		return nil
	}
	expr := fmt.Sprintf("%s == '%s'", FieldDocumentUID, documentUID.String())
	if err := m.c.Delete(ctx, collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return m.c.Flush(ctx, collectionName, false)
}

// DeleteVectorsByUIDs removes specific chunks by primary key.
func (m *MilvusClient) DeleteVectorsByUIDs(ctx context.Context, kbUID types.KBUIDType, chunkUIDs []types.ChunkUIDType) error {
	if len(chunkUIDs) == 0 {
		return nil
	}
	collectionName := KnowledgeBaseCollectionName(kbUID)
	ids := make([]string, len(chunkUIDs))
	for i, id := range chunkUIDs {
		ids[i] = id.String()
	}
	expr := fmt.Sprintf("%s in ['%s']", FieldChunkUID, strings.Join(ids, "','"))
	if err := m.c.Delete(ctx, collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunk vectors: %w", err)
	}
	return m.c.Flush(ctx, collectionName, false)
}

// DropKnowledgeBaseCollection removes the whole collection.
func (m *MilvusClient) DropKnowledgeBaseCollection(ctx context.Context, kbUID types.KBUIDType) error {
	return m.c.DropCollection(ctx, KnowledgeBaseCollectionName(kbUID))
}

// Close closes the underlying grpc client.
func (m *MilvusClient) Close() {
	m.c.Close()
}

const kbCollectionPrefix = "kb_"

// KnowledgeBaseCollectionName returns the collection name for a knowledge
// base. Collection names can only contain numbers, letters and underscores,
// so the UUID's dashes are replaced.
func KnowledgeBaseCollectionName(kbUID types.KBUIDType) string {
	return kbCollectionPrefix + strings.ReplaceAll(kbUID.String(), "-", "_")
}
