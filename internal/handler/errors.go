package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/service"
)

// writeError 把业务错误转换成 HTTP 响应
// 未识别的错误一律返回 500，详细信息只写日志
func (h *Handler) writeError(c *gin.Context, err error) {
	status, label := http.StatusInternalServerError, "服务器错误"

	switch {
	case errors.Is(err, service.ErrMissingField):
		status, label = http.StatusBadRequest, "缺少参数"
	case errors.Is(err, service.ErrInvalidURL):
		status, label = http.StatusBadRequest, "URL 格式错误"
	case errors.Is(err, service.ErrInvalidAlias):
		status, label = http.StatusBadRequest, "短码格式错误"
	case errors.Is(err, service.ErrAliasTaken):
		status, label = http.StatusBadRequest, "短码已被占用"
	case errors.Is(err, service.ErrInvalidToken):
		status, label = http.StatusUnauthorized, "Token 无效"
	case errors.Is(err, service.ErrUnauthorized):
		status, label = http.StatusUnauthorized, "未授权"
	case errors.Is(err, service.ErrLinkNotFound),
		errors.Is(err, service.ErrTopicNotFound),
		errors.Is(err, service.ErrNoLinks):
		status, label = http.StatusNotFound, "未找到"
	case errors.Is(err, service.ErrRateLimited):
		status, label = http.StatusTooManyRequests, "请求过于频繁"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("请求处理失败",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": label})
		return
	}

	c.JSON(status, gin.H{
		"error":   label,
		"message": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "参数错误",
		"message": err.Error(),
	})
}
