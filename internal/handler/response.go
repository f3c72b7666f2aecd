// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/session"
	"med-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// statusFor 把业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidPreference), errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("请求处理失败: %s %s, Error: %v", c.Request.Method, c.Request.URL.Path, err)
		fail(c, status, "服务器内部错误")
		return
	}
	fail(c, status, err.Error())
}
