package session

import (
	"errors"
	"sync"

	"med-assist-go/internal/config"
	"med-assist-go/internal/model"
)

var (
	ErrUnsupportedType = errors.New("Only PDF files are supported")
	ErrTooLarge        = errors.New("File size must be less than 100MB")
)

// UploadRules 是上传槽的校验规则。
type UploadRules struct {
	MaxSizeBytes     int64
	AllowedMIMETypes []string
}

// DefaultUploadRules 只接受 application/pdf，大小上限 100 MiB（含）。
func DefaultUploadRules() UploadRules {
	return UploadRulesFromConfig(config.Default().Upload)
}

func UploadRulesFromConfig(cfg config.UploadConfig) UploadRules {
	return UploadRules{
		MaxSizeBytes:     cfg.MaxSizeBytes,
		AllowedMIMETypes: append([]string(nil), cfg.AllowedMIMETypes...),
	}
}

// Validate 依次检查类型和大小，只看元数据。
func (r UploadRules) Validate(c model.FileCandidate) error {
	allowed := false
	for _, t := range r.AllowedMIMETypes {
		if c.MimeType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrUnsupportedType
	}
	if c.SizeBytes > r.MaxSizeBytes {
		return ErrTooLarge
	}
	return nil
}

// UploadSlot 最多持有一个文件。校验失败时内容不变，只记录错误信息。
type UploadSlot struct {
	mu      sync.RWMutex
	rules   UploadRules
	file    *model.UploadedFile
	lastErr string
}

func NewUploadSlot(rules UploadRules) *UploadSlot {
	return &UploadSlot{rules: rules}
}

// Check 只做校验；失败时记录错误，成功时不清除旧错误也不改变内容。
func (s *UploadSlot) Check(c model.FileCandidate) error {
	if err := s.rules.Validate(c); err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	return nil
}

// Set 校验并放入文件。
func (s *UploadSlot) Set(c model.FileCandidate) (model.UploadedFile, error) {
	f, _, err := s.Put(c, "")
	return f, err
}

// Put 与 Set 相同，但附带对象存储中的 key，并返回被替换掉的旧文件（可能为 nil）。
func (s *UploadSlot) Put(c model.FileCandidate, objectKey string) (model.UploadedFile, *model.UploadedFile, error) {
	if err := s.Check(c); err != nil {
		return model.UploadedFile{}, nil, err
	}
	f := model.UploadedFile{
		Name:      c.Name,
		SizeBytes: c.SizeBytes,
		MimeType:  c.MimeType,
		ObjectKey: objectKey,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := s.file
	s.file = &f
	s.lastErr = ""
	return f, replaced, nil
}

// Clear 无条件清空上传槽和错误，返回被移除的文件。
func (s *UploadSlot) Clear() *model.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.file
	s.file = nil
	s.lastErr = ""
	return removed
}

// Snapshot 返回当前文件的副本和最近一次校验错误。
func (s *UploadSlot) Snapshot() (*model.UploadedFile, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return nil, s.lastErr
	}
	f := *s.file
	return &f, s.lastErr
}

// DocumentRef 返回冻结到提交中的文档快照，无文件时为 nil。
func (s *UploadSlot) DocumentRef() *model.DocumentRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return nil
	}
	return s.file.Ref()
}
