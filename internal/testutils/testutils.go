// Package testutils 测试用的共用工具
//
//   - 内存 SQLite 数据库（已迁移表结构）
//   - Redis 测试容器（Docker 不可用时跳过测试）
//   - 内存版限流器和假的身份校验器
package testutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/auth"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
)

// NewSQLiteDB 创建内存 SQLite 数据库并迁移表结构
// 只保留一个连接：:memory: 数据库每个连接各自独立
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.User{}, &model.ShortLink{}, &model.Visit{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// NewRedis 启动 Redis 测试容器并返回客户端
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()
	tc.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return client
}

// MemoryLimiter 单进程的固定窗口限流器，行为与 Redis 版本一致
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Now    func() time.Time
	Err    error // 非空时每次检查都返回该错误
}

// NewMemoryLimiter 创建 MemoryLimiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int), Now: time.Now}
}

// CheckRateLimit 实现 service.RateLimiter
func (l *MemoryLimiter) CheckRateLimit(_ context.Context, userID uuid.UUID, limit int, window time.Duration) (*model.RateLimitResult, error) {
	if l.Err != nil {
		return nil, l.Err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)
	key := userID.String() + ":" + windowStart.String()
	l.counts[key]++
	count := l.counts[key]

	result := &model.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = resetAt.Sub(now)
	}
	return result, nil
}

// FakeVerifier 按 token 查表返回身份信息，不存在的 token 视为无效
type FakeVerifier struct {
	Identities map[string]*auth.Identity
}

// Verify 实现 service.IdentityVerifier
func (f *FakeVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	identity, ok := f.Identities[token]
	if !ok {
		return nil, auth.ErrInvalidIdentityToken
	}
	return identity, nil
}
