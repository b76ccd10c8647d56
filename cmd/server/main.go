// 短链接服务 - 主入口
//
// 1. Google 登录换取本地会话凭证
// 2. 创建短链接（按用户限流），支持自定义短码和 topic 分组
// 3. 重定向时记录访问（IP、User-Agent、操作系统、设备）
// 4. 单链接 / topic / 用户维度的访问统计
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/auth"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/config"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/handler"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/middleware"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/repository"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/service"
)

func main() {
	// ==================== 1. 加载配置 ====================
	cfg := config.Load()

	// ==================== 2. 初始化日志 ====================
	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("=== 短链接服务启动中 ===")

	if err := cfg.Validate(); err != nil {
		logger.Fatal("配置校验失败", zap.Error(err))
	}
	logger.Info("配置加载完成",
		zap.String("port", cfg.Server.Port),
		zap.String("base_url", cfg.Shortener.BaseURL),
		zap.String("db_host", cfg.Database.Host),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.Strings("cors_origins", cfg.CORS.AllowedOrigins),
	)

	// ==================== 3. 初始化链路追踪 ====================
	shutdownTracing, err := initTracing(context.Background(), cfg)
	if err != nil {
		logger.Fatal("链路追踪初始化失败", zap.Error(err))
	}

	// ==================== 4. 初始化数据库和 Redis ====================
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	rdb := initRedis(cfg)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	logger.Info("Redis 连接成功")

	// ==================== 5. 初始化各层组件 ====================
	repo := repository.New(db, rdb, logger)
	if err := repo.AutoMigrate(); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}
	logger.Info("数据库迁移完成")

	verifier, err := auth.NewGoogleVerifier(context.Background(), cfg.Auth.GoogleClientID)
	if err != nil {
		logger.Fatal("Google 校验器初始化失败", zap.Error(err))
	}
	sessions := auth.NewSessionManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.Issuer)
	logger.Info("会话签发器初始化完成", zap.Duration("session_ttl", sessions.TTL()))

	svc, err := service.New(repo, repo, verifier, sessions, service.Options{
		BaseURL:         cfg.Shortener.BaseURL,
		CodeLength:      cfg.Shortener.CodeLength,
		MaxAttempts:     cfg.Shortener.MaxAttempts,
		RateLimitMax:    cfg.RateLimit.Max,
		RateLimitWindow: cfg.RateLimit.Window,
	}, logger)
	if err != nil {
		logger.Fatal("业务层初始化失败", zap.Error(err))
	}

	h := handler.New(svc, logger, handler.Options{
		RedirectRequireAuth: cfg.Shortener.RedirectRequireAuth,
		RateLimitFailOpen:   cfg.RateLimit.FailOpen,
	})

	// ==================== 6. 配置 HTTP 服务 ====================
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.StructuredLogging(logger),
		middleware.PrometheusMetrics(),
	)

	h.RegisterRoutes(router)

	// ==================== 7. 启动 HTTP 服务 ====================
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP 服务已启动", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务启动失败", zap.Error(err))
		}
	}()

	// ==================== 8. 优雅关闭 ====================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("收到退出信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务关闭异常", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Error("Redis 连接关闭异常", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("数据库连接关闭异常", zap.Error(err))
		}
	}

	if err := shutdownTracing(ctx); err != nil {
		logger.Error("链路追踪关闭异常", zap.Error(err))
	}

	logger.Info("=== 服务已安全关闭 ===")
}

// initLogger 初始化结构化日志
// 生产环境输出 JSON，开发环境输出带颜色的可读格式
func initLogger(cfg *config.Config) *zap.Logger {
	var loggerConfig zap.Config
	if cfg.IsProduction() {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("日志初始化失败: %v", err))
	}
	return logger
}

// initTracing 配置了 OTLP 地址时导出 span，否则保持全局的 no-op TracerProvider
func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if cfg.Tracing.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 OTLP exporter 失败: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.Tracing.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		TranslateError: true, // 唯一约束冲突转换为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}

// initRedis 初始化 Redis 连接
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 20,
	})
}
