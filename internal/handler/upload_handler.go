package handler

import (
	"net/http"

	"med-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理与文档上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理 multipart 上传，表单字段为 file。
func (h *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "未能获取上传的文件")
		return
	}

	uploaded, err := h.uploadService.UploadDocument(c.Request.Context(), c.Param("id"), header)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, h.uploadService.DescribeDocument(c.Request.Context(), &uploaded))
}

// Get 返回上传槽当前的文件和最近一次校验错误。
func (h *UploadHandler) Get(c *gin.Context) {
	info, err := h.uploadService.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, info)
}

// Remove 清空上传槽。
func (h *UploadHandler) Remove(c *gin.Context) {
	if err := h.uploadService.RemoveDocument(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	ok(c, nil)
}

// GetSupportedFileTypes 返回允许上传的类型和大小上限。
func (h *UploadHandler) GetSupportedFileTypes(c *gin.Context) {
	ok(c, h.uploadService.GetSupportedFileTypes())
}
