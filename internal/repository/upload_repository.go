package repository

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"med-assist-go/internal/model"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// DocumentRepository 暂存上传文档的原始字节。只做存取，不解析内容。
type DocumentRepository interface {
	Save(ctx context.Context, sessionID string, file model.FileCandidate, body io.Reader) (objectKey string, err error)
	Delete(ctx context.Context, objectKey string) error
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type minioDocumentRepository struct {
	client *minio.Client
	bucket string
}

// NewMinioDocumentRepository 创建基于 MinIO 的文档仓库。
func NewMinioDocumentRepository(client *minio.Client, bucket string) DocumentRepository {
	return &minioDocumentRepository{client: client, bucket: bucket}
}

// objectKey 生成 documents/{session}/{uuid}-{name}，同名文件互不覆盖。
func objectKey(sessionID, fileName string) string {
	return path.Join("documents", sessionID, uuid.NewString()+"-"+path.Base(fileName))
}

func (r *minioDocumentRepository) Save(ctx context.Context, sessionID string, file model.FileCandidate, body io.Reader) (string, error) {
	key := objectKey(sessionID, file.Name)
	_, err := r.client.PutObject(ctx, r.bucket, key, body, file.SizeBytes, minio.PutObjectOptions{
		ContentType: file.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	return key, nil
}

func (r *minioDocumentRepository) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := r.client.RemoveObject(ctx, r.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}

func (r *minioDocumentRepository) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign document: %w", err)
	}
	return u.String(), nil
}

type discardDocumentRepository struct{}

// NewDiscardDocumentRepository 在未启用 MinIO 时使用：丢弃内容，只保留元数据。
func NewDiscardDocumentRepository() DocumentRepository {
	return discardDocumentRepository{}
}

func (discardDocumentRepository) Save(_ context.Context, _ string, _ model.FileCandidate, body io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, body)
	return "", err
}

func (discardDocumentRepository) Delete(context.Context, string) error { return nil }

func (discardDocumentRepository) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
