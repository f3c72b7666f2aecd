package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"time"

	"med-assist-go/internal/metrics"
	"med-assist-go/internal/model"
	"med-assist-go/internal/repository"
	"med-assist-go/internal/session"
	"med-assist-go/internal/view"
	"med-assist-go/pkg/log"

	"github.com/gabriel-vasile/mimetype"
)

// downloadURLExpiry 是暂存文档下载链接的有效期。
const downloadURLExpiry = 15 * time.Minute

// DocumentInfo 是上传槽内容的对外表示。槽为空时 File 和 Document 为 nil。
type DocumentInfo struct {
	File        *model.UploadedFile `json:"file"`
	Document    *view.DocumentView  `json:"document"`
	DownloadURL string              `json:"downloadUrl,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// UploadService 接口定义了文档上传相关的业务操作。
type UploadService interface {
	UploadDocument(ctx context.Context, sessionID string, header *multipart.FileHeader) (model.UploadedFile, error)
	GetDocument(ctx context.Context, sessionID string) (DocumentInfo, error)
	DescribeDocument(ctx context.Context, f *model.UploadedFile) DocumentInfo
	RemoveDocument(ctx context.Context, sessionID string) error
	GetSupportedFileTypes() map[string]interface{}
}

type uploadService struct {
	sessions *session.Manager
	docs     repository.DocumentRepository
	metrics  *metrics.Metrics
}

// NewUploadService 创建一个新的 UploadService 实例。校验规则取自会话注册表。
func NewUploadService(sessions *session.Manager, docs repository.DocumentRepository, m *metrics.Metrics) UploadService {
	return &uploadService{sessions: sessions, docs: docs, metrics: m}
}

// UploadDocument 校验并暂存文档。先按元数据校验，通过后才写入对象存储，最后放入上传槽。
func (s *uploadService) UploadDocument(ctx context.Context, sessionID string, header *multipart.FileHeader) (model.UploadedFile, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return model.UploadedFile{}, err
	}

	file, err := header.Open()
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	mimeType, err := detectMIMEType(header.Header.Get("Content-Type"), file)
	if err != nil {
		return model.UploadedFile{}, err
	}
	candidate := model.FileCandidate{
		Name:      path.Base(header.Filename),
		SizeBytes: header.Size,
		MimeType:  mimeType,
	}
	log.Infof("[UploadService] 收到文档, 会话: %s, 文件名: %s, 大小: %d, 类型: %s", sessionID, candidate.Name, candidate.SizeBytes, candidate.MimeType)

	if err := sess.Upload().Check(candidate); err != nil {
		s.metrics.ObserveUpload(err)
		log.Warnf("[UploadService] 文档校验未通过, 会话: %s, Error: %v", sessionID, err)
		return model.UploadedFile{}, err
	}

	key, err := s.docs.Save(ctx, sessionID, candidate, file)
	if err != nil {
		log.Errorf("[UploadService] 文档暂存失败, 会话: %s, Error: %v", sessionID, err)
		return model.UploadedFile{}, err
	}

	uploaded, replaced, err := sess.Upload().Put(candidate, key)
	s.metrics.ObserveUpload(err)
	if err != nil {
		return model.UploadedFile{}, err
	}
	if replaced != nil {
		s.discard(ctx, replaced)
	}
	log.Infof("[UploadService] 文档已放入上传槽, 会话: %s, ObjectKey: %s", sessionID, key)
	return uploaded, nil
}

// GetDocument 返回上传槽当前的文件、最近一次校验错误以及下载链接。
func (s *uploadService) GetDocument(ctx context.Context, sessionID string) (DocumentInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return DocumentInfo{}, err
	}
	file, uploadErr := sess.Upload().Snapshot()
	info := s.DescribeDocument(ctx, file)
	info.Error = uploadErr
	return info, nil
}

// DescribeDocument 为文件生成展示信息。只有原文已暂存到对象存储时才会附带下载链接。
func (s *uploadService) DescribeDocument(ctx context.Context, f *model.UploadedFile) DocumentInfo {
	if f == nil {
		return DocumentInfo{}
	}
	info := DocumentInfo{File: f, Document: view.NewDocumentView(f.Name, f.SizeBytes)}
	if f.ObjectKey == "" {
		return info
	}
	url, err := s.docs.PresignedURL(ctx, f.ObjectKey, downloadURLExpiry)
	if err != nil {
		log.Warnf("[UploadService] 生成下载链接失败, ObjectKey: %s, Error: %v", f.ObjectKey, err)
		return info
	}
	info.DownloadURL = url
	return info
}

// RemoveDocument 清空上传槽，没有文件时也视为成功。
func (s *uploadService) RemoveDocument(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if removed := sess.Upload().Clear(); removed != nil {
		s.discard(ctx, removed)
		log.Infof("[UploadService] 文档已移除, 会话: %s, 文件名: %s", sessionID, removed.Name)
	}
	return nil
}

func (s *uploadService) discard(ctx context.Context, f *model.UploadedFile) {
	if err := s.docs.Delete(ctx, f.ObjectKey); err != nil {
		log.Warnf("[UploadService] 删除暂存文档失败, ObjectKey: %s, Error: %v", f.ObjectKey, err)
	}
}

func (s *uploadService) GetSupportedFileTypes() map[string]interface{} {
	rules := s.sessions.UploadRules()
	return map[string]interface{}{
		"supportedTypes": rules.AllowedMIMETypes,
		"maxSizeBytes":   rules.MaxSizeBytes,
		"description":    "Upload a PDF document to provide context for your question",
	}
}

// detectMIMEType 优先使用客户端声明的类型；缺失或为 application/octet-stream 时根据内容嗅探。
// 嗅探后会把读取位置重置到文件开头。
func detectMIMEType(declared string, file multipart.File) (string, error) {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt, nil
		}
	}
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind uploaded file: %w", err)
	}
	mt, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		return detected.String(), nil
	}
	return mt, nil
}

// NewDocumentCleanup 返回会话被删除或回收时清理暂存文档的回调。
func NewDocumentCleanup(docs repository.DocumentRepository) func(ctx context.Context, s *session.Session) {
	return func(ctx context.Context, s *session.Session) {
		removed := s.Upload().Clear()
		if removed == nil || removed.ObjectKey == "" {
			return
		}
		if err := docs.Delete(ctx, removed.ObjectKey); err != nil {
			log.Warnf("[Session] 清理会话 %s 的暂存文档失败: %v", s.ID, err)
		}
	}
}
