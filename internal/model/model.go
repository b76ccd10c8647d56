// Package model 定义了数据模型
// 用户、短链接以及访问记录三张表，外加 HTTP 层使用的请求/响应 DTO
//
// 访问记录（Visit）是短链接的追加日志：
// 只在重定向时写入一次，之后不会修改或删除，按自增 ID 排序即为时间顺序
package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTopic 未指定 topic 时使用的分组
const DefaultTopic = "general"

// 无法从 User-Agent 解析出结果时的兜底值
const (
	UnknownOS     = "Unknown"
	DefaultDevice = "Desktop"
)

// User 用户模型
// 首次通过 Google 登录时创建，GoogleID 是身份提供方的 subject
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	GoogleID   string    `gorm:"size:255;uniqueIndex;not null" json:"googleId"`
	Name       string    `gorm:"size:255" json:"name"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	ProfilePic string    `gorm:"type:text" json:"profilePic"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ShortLink 短链接模型
// ShortCode 和 ShortURL 都有唯一索引，并发创建时由数据库兜底保证唯一
type ShortLink struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	LongURL   string    `gorm:"type:text;not null" json:"longUrl"`
	ShortURL  string    `gorm:"size:512;uniqueIndex;not null" json:"shortUrl"`
	ShortCode string    `gorm:"size:64;uniqueIndex;not null" json:"shortCode"`
	Topic     string    `gorm:"size:255;index;not null;default:'general'" json:"topic"`
	CreatedBy uuid.UUID `gorm:"type:uuid;index" json:"createdBy"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	Analytics []Visit   `gorm:"foreignKey:ShortLinkID" json:"analytics,omitempty"`
}

// Visit 一次重定向产生的访问记录
type Visit struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ShortLinkID uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
	IPAddress   string    `gorm:"size:45" json:"ipAddress"`
	UserAgent   string    `gorm:"type:text" json:"userAgent"`
	OSType      string    `gorm:"size:64;not null" json:"osType"`
	DeviceType  string    `gorm:"size:32;not null" json:"deviceType"`
}

// --- 请求/响应 DTO ---

// LoginRequest Google 登录请求，Token 为 Google ID Token
type LoginRequest struct {
	Token string `json:"token"`
}

// LoginResponse 登录成功后返回的会话凭证和用户信息
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// ShortenRequest 创建短链接请求
type ShortenRequest struct {
	LongURL     string `json:"longUrl"`
	CustomAlias string `json:"customAlias,omitempty"`
	Topic       string `json:"topic,omitempty"`
}

// ShortenResponse 创建短链接响应
type ShortenResponse struct {
	ShortURL  string    `json:"shortUrl"`
	ShortCode string    `json:"shortCode"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
}

// DateClicks 按日期（UTC，YYYY-MM-DD）统计的点击数
type DateClicks struct {
	Date   string `json:"date"`
	Clicks int    `json:"clicks"`
}

// OSStats 按操作系统统计
// UniqueClicks 为该系统的访问次数，UniqueUsers 为其中不同 IP 的数量
type OSStats struct {
	OSName       string `json:"osName"`
	UniqueClicks int    `json:"uniqueClicks"`
	UniqueUsers  int    `json:"uniqueUsers"`
}

// DeviceStats 按设备类型统计，字段含义同 OSStats
type DeviceStats struct {
	DeviceName   string `json:"deviceName"`
	UniqueClicks int    `json:"uniqueClicks"`
	UniqueUsers  int    `json:"uniqueUsers"`
}

// LinkAnalytics 单个短链接的统计
type LinkAnalytics struct {
	TotalClicks  int           `json:"totalClicks"`
	UniqueUsers  int           `json:"uniqueUsers"`
	ClicksByDate []DateClicks  `json:"clicksByDate"`
	OSType       []OSStats     `json:"osType"`
	DeviceType   []DeviceStats `json:"deviceType"`
}

// TopicURLStats topic 统计中每个短链接的汇总
type TopicURLStats struct {
	ShortURL    string `json:"shortUrl"`
	TotalClicks int    `json:"totalClicks"`
	UniqueUsers int    `json:"uniqueUsers"`
}

// TopicAnalytics 某个 topic 下所有短链接的统计
type TopicAnalytics struct {
	TotalClicks  int             `json:"totalClicks"`
	UniqueUsers  int             `json:"uniqueUsers"`
	ClicksByDate []DateClicks    `json:"clicksByDate"`
	URLs         []TopicURLStats `json:"urls"`
}

// OverallAnalytics 当前用户名下所有短链接的统计
type OverallAnalytics struct {
	TotalURLs    int           `json:"totalUrls"`
	TotalClicks  int           `json:"totalClicks"`
	UniqueUsers  int           `json:"uniqueUsers"`
	ClicksByDate []DateClicks  `json:"clicksByDate"`
	OSType       []OSStats     `json:"osType"`
	DeviceType   []DeviceStats `json:"deviceType"`
}

// RateLimitResult 一次限流检查的结果
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // 仅在被拒绝时有值
}
