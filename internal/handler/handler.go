// Package handler HTTP 请求处理器
// 职责：接收 HTTP 请求，调用 Service 层处理业务逻辑，返回 HTTP 响应
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/middleware"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/service"
)

// Options 路由相关的开关
type Options struct {
	RedirectRequireAuth bool // 重定向是否需要会话凭证
	RateLimitFailOpen   bool // 限流存储故障时是否放行
}

// Handler HTTP 处理器
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	opts   Options
}

// New 创建 Handler 实例
func New(svc *service.Service, logger *zap.Logger, opts Options) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
		opts:   opts,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// ==================== 基础设施端点（无需认证）====================
	r.GET("/healthz", h.HealthCheck)
	r.GET("/readyz", h.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== 登录（无需认证）====================
	r.POST("/auth/login", h.Login)
	r.POST("/api/auth/google-login", h.Login)

	// ==================== 需要认证的 API ====================
	sessionAuth := middleware.SessionAuth(h.svc, h.logger)
	rateLimit := middleware.RateLimit(h.svc, h.logger, h.opts.RateLimitFailOpen)

	api := r.Group("/")
	api.Use(sessionAuth)
	{
		// 创建短链接：认证 → 限流 → 处理请求
		api.POST("/shorten", rateLimit, h.Shorten)
		api.POST("/api/shorten", rateLimit, h.Shorten)

		api.GET("/analytics/topic/:topic", h.TopicAnalytics)
		api.GET("/analytics/:code", h.LinkAnalytics)
		api.GET("/overall/analytics", h.OverallAnalytics)
	}

	// 短链接重定向
	if h.opts.RedirectRequireAuth {
		r.GET("/:code", sessionAuth, h.Redirect)
	} else {
		r.GET("/:code", h.Redirect)
	}
}

// ==================== 健康检查处理器 ====================

// HealthCheck 存活探针
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "url-shortener",
	})
}

// ReadinessCheck 就绪探针，检查数据库和 Redis
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if err := h.svc.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Error("就绪检查失败", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// ==================== 登录处理器 ====================

// Login Google 登录，换取会话凭证
// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			middleware.RecordLogin("invalid_token")
		} else if !errors.Is(err, service.ErrMissingField) {
			middleware.RecordLogin("error")
		}
		h.writeError(c, err)
		return
	}

	middleware.RecordLogin("success")
	c.JSON(http.StatusOK, resp)
}

// ==================== 短链接处理器 ====================

// Shorten 创建短链接
// POST /shorten
func (h *Handler) Shorten(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	var req model.ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Shorten(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	middleware.RecordLinkCreated(req.CustomAlias != "")

	c.JSON(http.StatusCreated, resp)
}

// Redirect 短链接重定向
// GET /:code
func (h *Handler) Redirect(c *gin.Context) {
	target, err := h.svc.Redirect(
		c.Request.Context(),
		c.Param("code"),
		c.ClientIP(),
		c.Request.UserAgent(),
	)
	if err != nil {
		h.writeError(c, err)
		return
	}

	middleware.RecordRedirect()

	c.Redirect(http.StatusFound, target)
}

// ==================== 统计处理器 ====================

// LinkAnalytics 单个短链接的统计
// GET /analytics/:code
func (h *Handler) LinkAnalytics(c *gin.Context) {
	resp, err := h.svc.LinkAnalytics(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// TopicAnalytics topic 统计
// GET /analytics/topic/:topic
func (h *Handler) TopicAnalytics(c *gin.Context) {
	resp, err := h.svc.TopicAnalytics(c.Request.Context(), c.Param("topic"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// OverallAnalytics 当前用户的总体统计
// GET /overall/analytics
func (h *Handler) OverallAnalytics(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	resp, err := h.svc.OverallAnalytics(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
