package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus 指标定义
var (
	// HTTP 请求总数 - 按方法、路由、状态码分组
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP 请求延迟
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP 请求延迟（秒）",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 短链接创建总数 - 按短码来源分组（alias / generated）
	linkCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_created_total",
			Help: "短链接创建总数",
		},
		[]string{"kind"},
	)

	// 短链接重定向总数
	linkRedirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_redirects_total",
			Help: "短链接重定向总数",
		},
	)

	// 限流触发次数
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "创建短链接限流触发次数",
		},
	)

	// 限流存储故障次数
	rateLimitErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_errors_total",
			Help: "限流检查失败次数（Redis 不可用等）",
		},
	)

	// 登录次数 - 按结果分组（success / invalid_token / error）
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Google 登录次数",
		},
		[]string{"result"},
	)
)

// PrometheusMetrics Prometheus 指标中间件
func PrometheusMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath() // 使用路由模板，避免 /:code 产生高基数
		if path == "" {
			path = "unknown"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// RecordLinkCreated 记录短链接创建指标
func RecordLinkCreated(customAlias bool) {
	kind := "generated"
	if customAlias {
		kind = "alias"
	}
	linkCreatedTotal.WithLabelValues(kind).Inc()
}

// RecordRedirect 记录重定向指标
func RecordRedirect() {
	linkRedirectsTotal.Inc()
}

// RecordRateLimitHit 记录限流触发指标
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordRateLimitError 记录限流检查失败
func RecordRateLimitError() {
	rateLimitErrorsTotal.Inc()
}

// RecordLogin 记录登录结果
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}
