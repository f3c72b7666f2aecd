package handler

import (
	"med-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与聊天历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 返回会话的聊天历史，最新在前。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	history, err := h.service.GetConversationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, history)
}
