package handler

import (
	"med-assist-go/internal/view"

	"github.com/gin-gonic/gin"
)

// MetaHandler 返回静态的页面元数据。
type MetaHandler struct{}

func NewMetaHandler() *MetaHandler { return &MetaHandler{} }

// Preferences 返回偏好选项及其说明。
func (h *MetaHandler) Preferences(c *gin.Context) {
	ok(c, view.Catalog())
}

// Disclaimer 返回医疗免责声明。
func (h *MetaHandler) Disclaimer(c *gin.Context) {
	ok(c, view.MedicalDisclaimer())
}
