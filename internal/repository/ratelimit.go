package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
)

// ==================== 限流相关（Redis） ====================

// rateLimitPrefix 创建短链接的限流 key 前缀
const rateLimitPrefix = "ratelimit:shorten"

// CheckRateLimit 按用户检查创建短链接的频率
// 固定窗口计数器：key = 前缀:用户ID:窗口起点，INCR 和 EXPIRE 放在同一个 MULTI/EXEC 事务里，
// 多实例部署时同一用户同一窗口共享一个计数器
func (r *Repository) CheckRateLimit(ctx context.Context, userID uuid.UUID, limit int, window time.Duration) (*model.RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)
	key := fmt.Sprintf("%s:%s:%d", rateLimitPrefix, userID.String(), windowStart.Unix())

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// 多留一秒，避免窗口边界上 key 提前消失
	pipe.ExpireAt(ctx, key, resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("限流计数失败: %w", err)
	}

	count := incr.Val()
	result := &model.RateLimitResult{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = resetAt.Sub(now)
	}
	return result, nil
}
