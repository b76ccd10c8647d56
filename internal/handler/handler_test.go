package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/auth"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/middleware"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/repository"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/service"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/testutils"
)

const testBaseURL = "http://sho.rt"

type testServer struct {
	router  *gin.Engine
	limiter *testutils.MemoryLimiter
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.New(testutils.NewSQLiteDB(t), nil, zap.NewNop())
	limiter := testutils.NewMemoryLimiter()
	verifier := &testutils.FakeVerifier{Identities: map[string]*auth.Identity{
		"token-ann": {Subject: "sub-ann", Email: "ann@example.com", Name: "Ann"},
		"token-bob": {Subject: "sub-bob", Email: "bob@example.com", Name: "Bob"},
	}}
	sessions := auth.NewSessionManager("test-secret", 7*24*time.Hour, "test")

	svc, err := service.New(repo, limiter, verifier, sessions, service.Options{
		BaseURL:         testBaseURL,
		CodeLength:      6,
		MaxAttempts:     10,
		RateLimitMax:    5,
		RateLimitWindow: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.StructuredLogging(zap.NewNop()), middleware.PrometheusMetrics())
	New(svc, zap.NewNop(), opts).RegisterRoutes(router)

	return &testServer{router: router, limiter: limiter}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, googleToken string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Token: googleToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) shorten(t *testing.T, token string, req model.ShortenRequest) model.ShortenResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/shorten", token, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp model.ShortenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ==================== 基础设施 ====================

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", "", nil).Code)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

// ==================== 登录 ====================

func TestLogin(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})

	w := s.do(t, http.MethodPost, "/api/auth/google-login", "", model.LoginRequest{Token: "token-ann"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "ann@example.com", resp.User.Email)

	w = s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Token: "forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ==================== 认证 ====================

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})

	routes := []struct{ method, path string }{
		{http.MethodPost, "/shorten"},
		{http.MethodPost, "/api/shorten"},
		{http.MethodGet, "/analytics/abc123"},
		{http.MethodGet, "/analytics/topic/news"},
		{http.MethodGet, "/overall/analytics"},
		{http.MethodGet, "/abc123"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			w := s.do(t, r.method, r.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w = s.do(t, r.method, r.path, "not-a-jwt", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

// ==================== 创建短链接 ====================

func TestShorten(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})
	token := s.login(t, "token-ann")

	resp := s.shorten(t, token, model.ShortenRequest{LongURL: "https://example.com/page"})
	code := strings.TrimPrefix(resp.ShortURL, testBaseURL+"/")
	assert.Len(t, code, 6)
	assert.Equal(t, "general", resp.Topic)

	w := s.do(t, http.MethodPost, "/shorten", token, model.ShortenRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/shorten", token, model.ShortenRequest{LongURL: "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShorten_AliasTaken(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})
	ann := s.login(t, "token-ann")
	bob := s.login(t, "token-bob")

	resp := s.shorten(t, ann, model.ShortenRequest{LongURL: "https://example.com", CustomAlias: "promo"})
	assert.Equal(t, testBaseURL+"/promo", resp.ShortURL)

	w := s.do(t, http.MethodPost, "/shorten", bob, model.ShortenRequest{LongURL: "https://other.example.com", CustomAlias: "promo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShorten_AliasMustBeRedirectable(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})
	token := s.login(t, "token-ann")

	// 每个用户每小时 5 次，这里 3 次拒绝 + 1 次成功
	for _, alias := range []string{"healthz", "metrics", "a/b"} {
		w := s.do(t, http.MethodPost, "/shorten", token, model.ShortenRequest{LongURL: "https://example.com", CustomAlias: alias})
		assert.Equal(t, http.StatusBadRequest, w.Code, alias)
	}

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Location"))

	// 被拒绝的短码没有创建记录
	w = s.do(t, http.MethodGet, "/overall/analytics", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 通过校验的短码可以正常重定向
	resp := s.shorten(t, token, model.ShortenRequest{LongURL: "https://example.com", CustomAlias: "healthz-check"})
	w = s.do(t, http.MethodGet, "/"+strings.TrimPrefix(resp.ShortURL, testBaseURL+"/"), token, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestShorten_RateLimited(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})
	ann := s.login(t, "token-ann")
	bob := s.login(t, "token-bob")

	for i := 0; i < 5; i++ {
		w := s.do(t, http.MethodPost, "/shorten", ann, model.ShortenRequest{LongURL: "https://example.com"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := s.do(t, http.MethodPost, "/shorten", ann, model.ShortenRequest{LongURL: "https://example.com"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// 被拒绝的请求没有创建链接
	w = s.do(t, http.MethodGet, "/overall/analytics", ann, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, decode(t, w)["totalUrls"])

	// 限流按用户计算
	w = s.do(t, http.MethodPost, "/shorten", bob, model.ShortenRequest{LongURL: "https://example.com"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestShorten_LimiterFailure(t *testing.T) {
	tests := []struct {
		name       string
		failOpen   bool
		wantStatus int
	}{
		{name: "fail closed by default", failOpen: false, wantStatus: http.StatusInternalServerError},
		{name: "fail open when configured", failOpen: true, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{RedirectRequireAuth: true, RateLimitFailOpen: tt.failOpen})
			token := s.login(t, "token-ann")
			s.limiter.Err = errors.New("redis down")

			w := s.do(t, http.MethodPost, "/shorten", token, model.ShortenRequest{LongURL: "https://example.com"})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "redis down")

			s.limiter.Err = nil
			w = s.do(t, http.MethodGet, "/overall/analytics", token, nil)
			if tt.failOpen {
				assert.Equal(t, http.StatusOK, w.Code)
			} else {
				assert.Equal(t, http.StatusNotFound, w.Code, "no link is created when the limiter is unavailable")
			}
		})
	}
}

// ==================== 重定向 ====================

func TestRedirect(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})
	token := s.login(t, "token-ann")
	resp := s.shorten(t, token, model.ShortenRequest{LongURL: "example.com/landing"})
	code := strings.TrimPrefix(resp.ShortURL, testBaseURL+"/")

	w := s.do(t, http.MethodGet, "/nope42", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/"+code, token, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/landing", w.Header().Get("Location"))

	w = s.do(t, http.MethodGet, "/analytics/"+code, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["totalClicks"])
	assert.EqualValues(t, 1, body["uniqueUsers"])

	osType, ok := body["osType"].([]any)
	require.True(t, ok)
	require.Len(t, osType, 1)
	assert.Equal(t, "Windows", osType[0].(map[string]any)["osName"])
}

func TestRedirect_WithoutSessionWhenConfigured(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: false})
	token := s.login(t, "token-ann")
	resp := s.shorten(t, token, model.ShortenRequest{LongURL: "https://example.com"})
	code := strings.TrimPrefix(resp.ShortURL, testBaseURL+"/")

	w := s.do(t, http.MethodGet, "/"+code, "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))
}

// ==================== 统计 ====================

func TestAnalyticsEndpoints(t *testing.T) {
	s := newTestServer(t, Options{RedirectRequireAuth: true})
	ann := s.login(t, "token-ann")
	bob := s.login(t, "token-bob")

	w := s.do(t, http.MethodGet, "/overall/analytics", ann, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/analytics/topic/news", ann, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/analytics/missing", ann, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	a := s.shorten(t, ann, model.ShortenRequest{LongURL: "https://example.com/a", Topic: "news"})
	s.shorten(t, bob, model.ShortenRequest{LongURL: "https://example.com/b", Topic: "news"})

	codeA := strings.TrimPrefix(a.ShortURL, testBaseURL+"/")
	require.Equal(t, http.StatusFound, s.do(t, http.MethodGet, "/"+codeA, bob, nil).Code)

	w = s.do(t, http.MethodGet, "/analytics/topic/news", ann, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["totalClicks"])
	urls, ok := body["urls"].([]any)
	require.True(t, ok)
	assert.Len(t, urls, 2)

	w = s.do(t, http.MethodGet, "/overall/analytics", ann, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 1, body["totalUrls"])
	assert.EqualValues(t, 1, body["totalClicks"])
	for _, key := range []string{"clicksByDate", "osType", "deviceType"} {
		assert.Contains(t, body, key)
	}
}
