// Package config 实现了 12-Factor App 的配置管理
// 所有配置通过环境变量注入；本地开发时可以放一个 .env 文件
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用全局配置
type Config struct {
	Env string // development / production

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Shortener ShortenerConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Port            string        // 服务监听端口
	ReadTimeout     time.Duration // 读取超时
	WriteTimeout    time.Duration // 写入超时
	ShutdownTimeout time.Duration // 优雅关闭超时
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN 返回 PostgreSQL 连接字符串
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// AuthConfig 登录与会话相关配置
type AuthConfig struct {
	GoogleClientID string        // Google ID Token 的 audience
	JWTSecret      string        // 会话凭证签名密钥
	SessionTTL     time.Duration // 会话有效期
	Issuer         string
}

// ShortenerConfig 短链接生成相关配置
type ShortenerConfig struct {
	BaseURL             string // shortUrl = BaseURL + "/" + shortCode
	CodeLength          int
	MaxAttempts         int  // 随机短码冲突时的最大重试次数
	RedirectRequireAuth bool // 重定向是否需要登录
}

// RateLimitConfig 创建短链接的限流配置（按用户）
type RateLimitConfig struct {
	Window   time.Duration
	Max      int
	FailOpen bool // Redis 故障时是否放行，默认拒绝（500）
}

// CORSConfig 跨域配置，"*" 表示允许任意来源
type CORSConfig struct {
	AllowedOrigins []string
}

// TracingConfig OpenTelemetry 配置，Endpoint 为空时不导出
type TracingConfig struct {
	Endpoint    string
	ServiceName string
}

// Load 从环境变量加载配置
// 如果当前目录存在 .env 文件，先把其中的变量加载进环境（已存在的环境变量优先）
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", getEnv("PORT", "6001")),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "url_shortener"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			SessionTTL:     getDurationEnv("SESSION_TTL", 7*24*time.Hour),
			Issuer:         getEnv("JWT_ISSUER", "url-shortener"),
		},
		Shortener: ShortenerConfig{
			BaseURL:             strings.TrimRight(getEnv("BASE_URL", "http://localhost:6001"), "/"),
			CodeLength:          getIntEnv("SHORTENER_CODE_LENGTH", 6),
			MaxAttempts:         getIntEnv("SHORTENER_MAX_ATTEMPTS", 10),
			RedirectRequireAuth: getBoolEnv("REDIRECT_REQUIRE_AUTH", true),
		},
		RateLimit: RateLimitConfig{
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Hour),
			Max:      getIntEnv("RATE_LIMIT_MAX", 5),
			FailOpen: getBoolEnv("RATE_LIMIT_FAIL_OPEN", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "url-shortener"),
		},
	}
}

// Validate 检查启动必需的配置
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET 未设置")
	}
	// audience 为空时 idtoken 不校验 aud，任何 Google 应用签发的 token 都能通过
	if c.IsProduction() && c.Auth.GoogleClientID == "" {
		return errors.New("GOOGLE_CLIENT_ID 未设置")
	}
	if c.Shortener.CodeLength <= 0 {
		return errors.New("SHORTENER_CODE_LENGTH 必须大于 0")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_MAX 和 RATE_LIMIT_WINDOW 必须大于 0")
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS 中的来源格式错误: %q", origin)
		}
	}
	return nil
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// --- 辅助函数 ---

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getListEnv 逗号分隔的列表，空项忽略
func getListEnv(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
