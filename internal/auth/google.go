package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrInvalidIdentityToken Google ID Token 校验失败
var ErrInvalidIdentityToken = errors.New("Google ID Token 无效")

// Identity 身份提供方校验通过后的用户信息
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleVerifier 使用 Google 公钥校验 ID Token，audience 为 OAuth Client ID
type GoogleVerifier struct {
	clientID  string
	validator *idtoken.Validator
}

// NewGoogleVerifier 创建 GoogleVerifier
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("创建 Google Token 校验器失败: %w", err)
	}
	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

// Verify 校验 ID Token（签名、过期时间、audience），返回其中的身份信息
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	payload, err := g.validator.Validate(ctx, token, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	if payload.Subject == "" {
		return nil, ErrInvalidIdentityToken
	}

	return &Identity{
		Subject: payload.Subject,
		Email:   claimString(payload.Claims, "email"),
		Name:    claimString(payload.Claims, "name"),
		Picture: claimString(payload.Claims, "picture"),
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
