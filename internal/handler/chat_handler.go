package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"med-assist-go/internal/service"
	"med-assist-go/internal/view"
	"med-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

const wsWriteTimeout = 10 * time.Second

// ChatHandler 负责提问、进度和回答相关的请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// AskRequest 是提问的请求体。
type AskRequest struct {
	Question string `json:"question"`
}

// Ask 提交问题。默认同步等待流水线完成；?wait=false 时只做受理检查并返回 202。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	sessionID := c.Param("id")

	wait, err := strconv.ParseBool(c.DefaultQuery("wait", "true"))
	if err != nil {
		fail(c, http.StatusBadRequest, "无效的 wait 参数")
		return
	}

	if !wait {
		status, err := h.chatService.AskAsync(sessionID, req.Question)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"code":    http.StatusAccepted,
			"message": "accepted",
			"data":    view.NewProcessingView(status),
		})
		return
	}

	// 已受理的提交总会执行完成，客户端断开不会中止它
	ctx := context.WithoutCancel(c.Request.Context())
	entry, err := h.chatService.Ask(ctx, sessionID, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	answer, err := h.chatService.CurrentAnswer(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{
		"entry":  entry,
		"answer": answer,
	})
}

// Status 返回当前处理进度。
func (h *ChatHandler) Status(c *gin.Context) {
	status, err := h.chatService.Status(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, status)
}

// StatusStream 通过 WebSocket 推送进度，连接建立后先发送一次当前状态。
func (h *ChatHandler) StatusStream(c *gin.Context) {
	sessionID := c.Param("id")
	current, err := h.chatService.Status(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	updates, cancel, err := h.chatService.WatchStatus(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("进度 WebSocket 连接已建立，会话: %s", sessionID)

	// 客户端不发送数据，读循环只用来感知断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeJSON(conn, current); err != nil {
		log.Warnf("写入 WebSocket 失败: %v", err)
		return
	}
	for {
		select {
		case <-closed:
			log.Infof("进度 WebSocket 连接已关闭，会话: %s", sessionID)
			return
		case <-c.Request.Context().Done():
			return
		case s, more := <-updates:
			if !more {
				return
			}
			if err := writeJSON(conn, view.NewProcessingView(s)); err != nil {
				log.Warnf("写入 WebSocket 失败: %v", err)
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

// Answer 返回当前回答和处理进度。
func (h *ChatHandler) Answer(c *gin.Context) {
	sessionID := c.Param("id")
	status, err := h.chatService.Status(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	answer, err := h.chatService.CurrentAnswer(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{
		"processing": status,
		"answer":     answer,
	})
}
