package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// probePaths 探针和指标抓取的请求量大且没有排查价值，不记录
var probePaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// StructuredLogging 访问日志中间件
// 每个请求结束后输出一行；重定向和统计请求带上短码，已登录的请求带上 user_id
func StructuredLogging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := probePaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		fields := make([]zap.Field, 0, 12)
		fields = append(fields,
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
		)

		if code := c.Param("code"); code != "" {
			fields = append(fields, zap.String("code", code))
		}
		if topic := c.Param("topic"); topic != "" {
			fields = append(fields, zap.String("topic", topic))
		}
		if claims := GetUserFromContext(c); claims != nil {
			fields = append(fields, zap.String("user_id", claims.UserID))
		}
		if location := c.Writer.Header().Get("Location"); location != "" {
			fields = append(fields, zap.String("location", location))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("请求失败", fields...)
		case status == 401 || status == 429:
			logger.Info("请求被拒绝", fields...)
		case status >= 400:
			logger.Warn("客户端错误", fields...)
		default:
			logger.Info("请求完成", fields...)
		}
	}
}
