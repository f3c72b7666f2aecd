package handler

import (
	"net/http"

	"med-assist-go/internal/model"
	"med-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责会话和偏好相关的 API 请求。
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Create 创建新会话。
func (h *SessionHandler) Create(c *gin.Context) {
	state, err := h.sessionService.Create(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, state)
}

// Get 返回会话的完整对外状态。
func (h *SessionHandler) Get(c *gin.Context) {
	state, err := h.sessionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, state)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessionService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	ok(c, nil)
}

func (h *SessionHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.sessionService.GetPreferences(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, prefs)
}

// UpdatePreferences 部分更新偏好，请求体中缺失的字段保持原值。
func (h *SessionHandler) UpdatePreferences(c *gin.Context) {
	var patch model.PreferencePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	prefs, err := h.sessionService.UpdatePreferences(c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, prefs)
}
