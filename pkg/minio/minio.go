// Package minio implements the object-store collaborator: source document
// bytes and chunk page images, addressed by knowledge-base and document
// scoped keys.
package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/dallisoft/ingest-backend/config"
	log "github.com/dallisoft/ingest-backend/pkg/logger"
)

// MinioI is the object-store interface consumed by the pipeline.
type MinioI interface {
	GetClient() *minio.Client
	// GetFile fetches the object bytes for a key.
	GetFile(ctx context.Context, filePathName string) ([]byte, error)
	// StatFileSize returns the byte length of an object without fetching it,
	// used for the size-ceiling check before any processing starts.
	StatFileSize(ctx context.Context, filePathName string) (int64, error)
	// UploadFile stores content under a key.
	UploadFile(ctx context.Context, filePathName string, content []byte, fileMimeType string) error
	// DeleteFile removes one object.
	DeleteFile(ctx context.Context, filePathName string) error
	// DeleteFilesWithPrefix removes every object under a key prefix, e.g.
	// all page images of a superseded document generation.
	DeleteFilesWithPrefix(ctx context.Context, prefix string) error
}

// Minio is the minio-go backed implementation.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinioClientAndInitBucket connects to MinIO and creates the configured
// bucket when it does not exist yet.
func NewMinioClientAndInitBucket(ctx context.Context) (*Minio, error) {
	cfg := config.Config.Minio
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Host+":"+cfg.Port, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.RootUser, cfg.RootPwd, ""),
		Secure: false,
	})
	if err != nil {
		logger.Error("cannot connect to minio",
			zap.String("host:port", cfg.Host+":"+cfg.Port), zap.Error(err))
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			logger.Error("cannot create bucket", zap.String("bucket", cfg.BucketName), zap.Error(err))
			return nil, err
		}
		logger.Info("Successfully created bucket", zap.String("bucket", cfg.BucketName))
	}
	return &Minio{client: client, bucket: cfg.BucketName}, nil
}

// GetClient returns the underlying minio client.
func (m *Minio) GetClient() *minio.Client {
	return m.client
}

// GetFile fetches the object bytes for a key.
func (m *Minio) GetFile(ctx context.Context, filePathName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, filePathName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// StatFileSize returns the byte length of an object.
func (m *Minio) StatFileSize(ctx context.Context, filePathName string) (int64, error) {
	info, err := m.client.StatObject(ctx, m.bucket, filePathName, minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// UploadFile stores content under a key.
func (m *Minio) UploadFile(ctx context.Context, filePathName string, content []byte, fileMimeType string) error {
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, filePathName,
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: fileMimeType})
	if err != nil {
		logger.Error("Failed to upload file to MinIO", zap.Error(err))
		return err
	}
	return nil
}

// DeleteFile removes one object.
func (m *Minio) DeleteFile(ctx context.Context, filePathName string) error {
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, filePathName, minio.RemoveObjectOptions{}); err != nil {
		logger.Error("Failed to delete file from MinIO", zap.Error(err))
		return err
	}
	return nil
}

// DeleteFilesWithPrefix removes every object under a key prefix.
func (m *Minio) DeleteFilesWithPrefix(ctx context.Context, prefix string) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return obj.Err
		}
		if err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}
