package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/service"
)

// RateLimit 按用户限制创建短链接的频率
// 必须挂在 SessionAuth 之后；被拒绝的请求不会进入 Handler，也就不会生成短码或写库
// failOpen 为 false 时限流存储故障返回 500，为 true 时放行
func RateLimit(svc *service.Service, logger *zap.Logger, failOpen bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserIDFromContext(c)
		if !ok {
			c.Next()
			return
		}

		result, err := svc.CheckRateLimit(c.Request.Context(), userID)
		if err != nil {
			logger.Error("限流检查失败",
				zap.String("user_id", userID.String()),
				zap.Bool("fail_open", failOpen),
				zap.Error(err),
			)
			RecordRateLimitError()
			if failOpen {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "服务器错误"})
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			logger.Warn("用户触发限流",
				zap.String("user_id", userID.String()),
				zap.Int("limit", result.Limit),
				zap.Duration("retry_after", result.RetryAfter),
			)
			RecordRateLimitHit()

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "请求过于频繁",
				"message": service.ErrRateLimited.Error(),
				"limit":   result.Limit,
			})
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *model.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		retryAfter := int(result.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
}
