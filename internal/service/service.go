// Package service 业务逻辑层
// 职责：编排业务流程（登录、创建短链接、重定向、统计），不直接操作数据库
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/auth"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/repository"
)

var (
	ErrMissingField  = errors.New("缺少必填字段")
	ErrInvalidURL    = errors.New("URL 格式不正确")
	ErrAliasTaken    = errors.New("自定义短码已被占用")
	ErrInvalidAlias  = errors.New("自定义短码格式不正确")
	ErrLinkNotFound  = errors.New("短链接不存在")
	ErrTopicNotFound = errors.New("该 topic 下没有短链接")
	ErrNoLinks       = errors.New("当前用户还没有创建短链接")
	ErrRateLimited   = errors.New("创建频率超限，请稍后重试")
	ErrInvalidToken  = errors.New("身份令牌无效")
	ErrUnauthorized  = errors.New("未登录或会话已过期")
	ErrCodeExhausted = errors.New("生成唯一短码失败")
)

// urlPattern 长链接格式校验：可选的 http(s) 前缀 + 域名 + 可选端口 + 可选路径/查询/锚点
var urlPattern = regexp.MustCompile(`(?i)^(https?://)?([\da-z.-]+)\.([a-z.]{2,6})(:\d{1,5})?([/?#]\S*)?$`)

// Store 服务依赖的存储接口，由 repository.Repository 实现
type Store interface {
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserProfile(ctx context.Context, user *model.User) error

	CodeExists(ctx context.Context, code string) (bool, error)
	CreateShortLink(ctx context.Context, link *model.ShortLink) error
	GetShortLinkByCode(ctx context.Context, code string) (*model.ShortLink, error)
	GetShortLinkWithVisits(ctx context.Context, code string) (*model.ShortLink, error)
	ListShortLinksByTopic(ctx context.Context, topic string) ([]model.ShortLink, error)
	ListShortLinksByOwner(ctx context.Context, userID uuid.UUID) ([]model.ShortLink, error)
	AppendVisit(ctx context.Context, visit *model.Visit) error

	HealthCheck(ctx context.Context) error
}

// RateLimiter 按用户的创建限流，由 repository.Repository（Redis）实现
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID uuid.UUID, limit int, window time.Duration) (*model.RateLimitResult, error)
}

// IdentityVerifier 外部身份提供方，由 auth.GoogleVerifier 实现
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// Options 业务参数
type Options struct {
	BaseURL         string
	CodeLength      int
	MaxAttempts     int
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Service 业务逻辑服务
type Service struct {
	store    Store
	limiter  RateLimiter
	verifier IdentityVerifier
	sessions *auth.SessionManager
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer

	newCode func() string
	now     func() time.Time
}

// New 创建 Service 实例
func New(store Store, limiter RateLimiter, verifier IdentityVerifier, sessions *auth.SessionManager, opts Options, logger *zap.Logger) (*Service, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	gen, err := newCodeGenerator(opts.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("初始化短码生成器失败: %w", err)
	}

	return &Service{
		store:    store,
		limiter:  limiter,
		verifier: verifier,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("github.com/shuvam-mohapatra/URL-Shortner/internal/service"),
		newCode:  gen,
		now:      time.Now,
	}, nil
}

// ==================== 登录 ====================

// Login 用 Google ID Token 换取本地会话凭证
// 流程：校验 Token → 按 Google subject 查找或创建用户 → 签发 7 天有效的会话凭证
func (s *Service) Login(ctx context.Context, idToken string) (resp *model.LoginResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: token", ErrMissingField)
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn("Google Token 校验失败", zap.Error(err))
		return nil, ErrInvalidToken
	}

	user, err := s.findOrCreateUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.Issue(user.ID.String(), user.Email)
	if err != nil {
		return nil, fmt.Errorf("签发会话凭证失败: %w", err)
	}

	s.logger.Info("用户登录成功",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
	)

	return &model.LoginResponse{Token: token, User: user}, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, identity *auth.Identity) (*model.User, error) {
	user, err := s.store.GetUserByGoogleID(ctx, identity.Subject)
	switch {
	case err == nil:
		if user.Name != identity.Name || user.ProfilePic != identity.Picture {
			user.Name = identity.Name
			user.ProfilePic = identity.Picture
			if err := s.store.UpdateUserProfile(ctx, user); err != nil {
				return nil, fmt.Errorf("更新用户信息失败: %w", err)
			}
		}
		return user, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	user = &model.User{
		ID:         uuid.New(),
		GoogleID:   identity.Subject,
		Name:       identity.Name,
		Email:      identity.Email,
		ProfilePic: identity.Picture,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	s.logger.Info("新用户创建成功",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
	)
	return user, nil
}

// Authenticate 校验会话凭证，返回其中的用户信息
func (s *Service) Authenticate(token string) (*auth.SessionClaims, error) {
	claims, err := s.sessions.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: 用户 ID 格式错误", ErrUnauthorized)
	}
	return claims, nil
}

// ==================== 短链接管理 ====================

// Shorten 创建短链接
func (s *Service) Shorten(ctx context.Context, userID uuid.UUID, req *model.ShortenRequest) (resp *model.ShortenResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "shortener.Shorten")
	defer func() { endSpan(span, err) }()

	// 1. 校验参数
	longURL := strings.TrimSpace(req.LongURL)
	if longURL == "" {
		return nil, fmt.Errorf("%w: longUrl", ErrMissingField)
	}
	if !urlPattern.MatchString(longURL) {
		return nil, ErrInvalidURL
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = model.DefaultTopic
	}

	link := &model.ShortLink{
		ID:        uuid.New(),
		LongURL:   longURL,
		Topic:     topic,
		CreatedBy: userID,
	}

	// 2. 分配短码并写入
	if alias := strings.TrimSpace(req.CustomAlias); alias != "" {
		span.SetAttributes(attribute.Bool("shortener.custom_alias", true))
		err = s.claimAlias(ctx, link, alias)
	} else {
		err = s.claimGeneratedCode(ctx, link)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("短链接创建成功",
		zap.String("user_id", userID.String()),
		zap.String("code", link.ShortCode),
		zap.String("topic", link.Topic),
	)

	return &model.ShortenResponse{
		ShortURL:  link.ShortURL,
		ShortCode: link.ShortCode,
		Topic:     link.Topic,
		CreatedAt: link.CreatedAt,
	}, nil
}

// Redirect 处理短链接重定向
// 访问记录写入成功后才返回目标地址
func (s *Service) Redirect(ctx context.Context, code, ip, userAgent string) (target string, err error) {
	ctx, span := s.tracer.Start(ctx, "shortener.Redirect", trace.WithAttributes(attribute.String("shortener.code", code)))
	defer func() { endSpan(span, err) }()

	link, err := s.store.GetShortLinkByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrLinkNotFound
		}
		return "", fmt.Errorf("查询短链接失败: %w", err)
	}

	osType, deviceType := parseUserAgent(userAgent)
	visit := &model.Visit{
		ShortLinkID: link.ID,
		Timestamp:   s.now().UTC(),
		IPAddress:   ip,
		UserAgent:   userAgent,
		OSType:      osType,
		DeviceType:  deviceType,
	}
	if err := s.store.AppendVisit(ctx, visit); err != nil {
		return "", fmt.Errorf("记录访问失败: %w", err)
	}

	return redirectTarget(link.LongURL), nil
}

// CheckRateLimit 检查用户的创建频率
func (s *Service) CheckRateLimit(ctx context.Context, userID uuid.UUID) (*model.RateLimitResult, error) {
	return s.limiter.CheckRateLimit(ctx, userID, s.opts.RateLimitMax, s.opts.RateLimitWindow)
}

// HealthCheck 健康检查
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// ==================== 辅助函数 ====================

// redirectTarget 没有协议头的长链接按 https 处理，否则浏览器会当成相对路径
func redirectTarget(longURL string) string {
	lower := strings.ToLower(longURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return longURL
	}
	return "https://" + longURL
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
