// Package repository 数据访问层
// PostgreSQL（GORM）保存用户、短链接和访问记录；Redis 只用于按用户的分布式限流
//
// 短链接不做缓存：每次重定向都要追加访问记录，数据库是唯一的数据来源
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrDuplicate 违反唯一约束（短码或 shortUrl 已存在）
	ErrDuplicate = errors.New("记录已存在")
)

// Repository 数据访问
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *zap.Logger
}

// New 创建 Repository 实例
// db 需要以 TranslateError: true 打开，唯一约束冲突才能被识别为 ErrDuplicate
func New(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		rdb:    rdb,
		logger: logger,
	}
}

// AutoMigrate 自动迁移数据库表结构
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&model.User{},
		&model.ShortLink{},
		&model.Visit{},
	)
}

// ==================== 用户相关操作 ====================

// GetUserByGoogleID 通过 Google subject 查询用户
func (r *Repository) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// CreateUser 创建用户
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// UpdateUserProfile 登录时刷新用户的展示信息
func (r *Repository) UpdateUserProfile(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).
		Model(user).
		Select("name", "profile_pic").
		Updates(user).Error)
}

// ==================== 短链接相关操作 ====================

// CodeExists 检查短码是否已被占用
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ShortLink{}).
		Where("short_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

// CreateShortLink 创建短链接
// short_code 上有唯一索引，并发写入同一短码时只有一个会成功，其余返回 ErrDuplicate
func (r *Repository) CreateShortLink(ctx context.Context, link *model.ShortLink) error {
	return translate(r.db.WithContext(ctx).Omit("Analytics").Create(link).Error)
}

// GetShortLinkByCode 通过短码查询（不加载访问记录，重定向时使用）
func (r *Repository) GetShortLinkByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	var link model.ShortLink
	if err := r.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// GetShortLinkWithVisits 通过短码查询，并按写入顺序加载全部访问记录
func (r *Repository) GetShortLinkWithVisits(ctx context.Context, code string) (*model.ShortLink, error) {
	var link model.ShortLink
	if err := r.db.WithContext(ctx).
		Preload("Analytics", orderVisits).
		Where("short_code = ?", code).
		First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// ListShortLinksByTopic 查询某个 topic 下的全部短链接（含访问记录）
func (r *Repository) ListShortLinksByTopic(ctx context.Context, topic string) ([]model.ShortLink, error) {
	var links []model.ShortLink
	err := r.db.WithContext(ctx).
		Preload("Analytics", orderVisits).
		Where("topic = ?", topic).
		Order("created_at ASC").
		Find(&links).Error
	return links, err
}

// ListShortLinksByOwner 查询用户创建的全部短链接（含访问记录）
func (r *Repository) ListShortLinksByOwner(ctx context.Context, userID uuid.UUID) ([]model.ShortLink, error) {
	var links []model.ShortLink
	err := r.db.WithContext(ctx).
		Preload("Analytics", orderVisits).
		Where("created_by = ?", userID).
		Order("created_at ASC").
		Find(&links).Error
	return links, err
}

// AppendVisit 追加一条访问记录
func (r *Repository) AppendVisit(ctx context.Context, visit *model.Visit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

// HealthCheck 健康检查 - 验证数据库和 Redis 连接
func (r *Repository) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接失败: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("数据库 ping 失败: %w", err)
	}

	if r.rdb != nil {
		if err := r.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis ping 失败: %w", err)
		}
	}

	return nil
}

// ==================== 辅助函数 ====================

func orderVisits(db *gorm.DB) *gorm.DB {
	return db.Order("visits.id ASC")
}

// translate 把 GORM 的错误转换成本包的哨兵错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
