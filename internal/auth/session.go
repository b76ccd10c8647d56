// Package auth 登录相关：Google ID Token 校验以及本地会话凭证（JWT）的签发与校验
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSession 会话凭证无效（格式错误、签名不匹配等）
	ErrInvalidSession = errors.New("会话凭证无效")
	// ErrSessionExpired 会话凭证已过期
	ErrSessionExpired = errors.New("会话凭证已过期")
)

// SessionClaims 会话凭证中携带的声明
type SessionClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionManager 签发和校验 HS256 会话凭证
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionManager 创建 SessionManager
func NewSessionManager(secret string, ttl time.Duration, issuer string) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue 为用户签发会话凭证
func (m *SessionManager) Issue(userID, email string) (string, error) {
	now := m.now()
	claims := SessionClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate 校验会话凭证并返回声明
func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

// TTL 会话有效期
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}
