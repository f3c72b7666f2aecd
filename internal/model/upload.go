package model

// FileCandidate 是上传方提交给上传槽的文件元数据，上传槽只看类型和大小。
type FileCandidate struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

// UploadedFile 是通过校验后保存在上传槽中的文件。
type UploadedFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
	// ObjectKey 在启用 MinIO 暂存时指向原始文件，否则为空。
	ObjectKey string `json:"objectKey,omitempty"`
}

// Ref 返回冻结到聊天记录中的文档快照。
func (f UploadedFile) Ref() *DocumentRef {
	return &DocumentRef{Name: f.Name, SizeBytes: f.SizeBytes}
}

// DocumentRef 是提交时刻的文档快照。
type DocumentRef struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
}
