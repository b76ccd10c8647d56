// Package middleware 实现 HTTP 中间件
// 会话认证、按用户限流、结构化日志和 Prometheus 指标
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/auth"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/service"
)

// 上下文 key 常量
const (
	UserKey = "user" // Gin Context 中存储会话声明的 key
)

// SessionAuth 会话认证中间件
// 从 Authorization: Bearer <token> 中取出会话凭证并校验，通过后把声明注入 Context
func SessionAuth(svc *service.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "未授权",
				"message": "请在 Header 中提供 Authorization: Bearer <token>",
			})
			return
		}

		claims, err := svc.Authenticate(token)
		if err != nil {
			logger.Warn("会话认证失败",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "认证失败",
				"message": err.Error(),
			})
			return
		}

		c.Set(UserKey, claims)

		logger.Debug("会话认证成功",
			zap.String("user_id", claims.UserID),
			zap.String("email", claims.Email),
		)

		c.Next()
	}
}

// GetUserFromContext 从 Gin Context 中获取当前用户的会话声明
func GetUserFromContext(c *gin.Context) *auth.SessionClaims {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil
	}
	claims, _ := v.(*auth.SessionClaims)
	return claims
}

// GetUserIDFromContext 从 Gin Context 中获取当前用户 ID
// SessionAuth 已经校验过格式，这里解析失败时返回 false
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	claims := GetUserFromContext(c)
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
