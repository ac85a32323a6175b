package minio

import (
	"fmt"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// DocumentFilePath is the object key of a document's uploaded source file.
// Keys are scoped by knowledge base and document so concurrent tasks never
// address the same prefix.
func DocumentFilePath(kbUID types.KBUIDType, documentUID types.DocumentUIDType, filename string) string {
	return fmt.Sprintf("kb-%s/doc-%s/%s", kbUID.String(), documentUID.String(), filename)
}

// DocumentImagePrefix is the key prefix under which a document's chunk page
// images live; deleted wholesale when the document is reprocessed.
func DocumentImagePrefix(kbUID types.KBUIDType, documentUID types.DocumentUIDType) string {
	return fmt.Sprintf("kb-%s/doc-%s/images/", kbUID.String(), documentUID.String())
}

// ChunkImagePath is the object key of one chunk's associated page image.
func ChunkImagePath(kbUID types.KBUIDType, documentUID types.DocumentUIDType, chunkUID types.ChunkUIDType) string {
	return DocumentImagePrefix(kbUID, documentUID) + chunkUID.String() + ".png"
}
