package handler

import (
	"net/http"

	"med-assist-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总了所有需要注册路由的控制器。
type Handlers struct {
	Session      *SessionHandler
	Upload       *UploadHandler
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Meta         *MetaHandler
	Metrics      http.Handler
}

// NewRouter 创建 Gin 引擎并注册所有路由。
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/meta/preferences", h.Meta.Preferences)
		api.GET("/meta/disclaimer", h.Meta.Disclaimer)
		api.GET("/upload/supported-types", h.Upload.GetSupportedFileTypes)

		api.POST("/sessions", h.Session.Create)

		sessions := api.Group("/sessions/:id")
		{
			sessions.GET("", h.Session.Get)
			sessions.DELETE("", h.Session.Delete)
			sessions.GET("/preferences", h.Session.GetPreferences)
			sessions.PUT("/preferences", h.Session.UpdatePreferences)
			sessions.GET("/document", h.Upload.Get)
			sessions.POST("/document", h.Upload.Upload)
			sessions.DELETE("/document", h.Upload.Remove)
			sessions.POST("/questions", h.Chat.Ask)
			sessions.GET("/status", h.Chat.Status)
			sessions.GET("/status/ws", h.Chat.StatusStream)
			sessions.GET("/answer", h.Chat.Answer)
			sessions.GET("/history", h.Conversation.GetConversations)
		}
	}
	return r
}
