package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/repository"
)

// codeAlphabet 随机短码字符集（Base62）
const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultCodeLength 随机短码默认长度
const DefaultCodeLength = 6

// maxAliasLength 与 short_code 列宽一致
const maxAliasLength = 64

// reservedAliases 与路由第一段重名的短码，GET /<alias> 会被这些路由接走，永远到不了重定向
var reservedAliases = map[string]struct{}{
	"healthz":   {},
	"readyz":    {},
	"metrics":   {},
	"analytics": {},
	"overall":   {},
	"auth":      {},
	"api":       {},
	"shorten":   {},
}

// validateAlias 自定义短码必须是单个路径段
func validateAlias(alias string) error {
	if len(alias) > maxAliasLength || alias == "." || alias == ".." {
		return ErrInvalidAlias
	}
	if strings.ContainsAny(alias, "/?#%\\") || strings.IndexFunc(alias, unicode.IsSpace) >= 0 {
		return ErrInvalidAlias
	}
	if _, ok := reservedAliases[alias]; ok {
		return ErrAliasTaken
	}
	return nil
}

func newCodeGenerator(length int) (func() string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return nanoid.CustomASCII(codeAlphabet, length)
}

// claimAlias 使用调用方指定的短码
// 先校验格式和保留字，再查一次给出明确的错误；写入时的唯一约束冲突同样视为已被占用
func (s *Service) claimAlias(ctx context.Context, link *model.ShortLink, alias string) error {
	if err := validateAlias(alias); err != nil {
		return err
	}

	exists, err := s.store.CodeExists(ctx, alias)
	if err != nil {
		return fmt.Errorf("检查短码失败: %w", err)
	}
	if exists {
		return ErrAliasTaken
	}

	s.assignCode(link, alias)
	if err := s.store.CreateShortLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAliasTaken
		}
		return fmt.Errorf("创建短链接失败: %w", err)
	}
	return nil
}

// claimGeneratedCode 随机生成短码直到写入成功
// 预检查只用于减少无效写入，唯一性最终由数据库的唯一索引保证
func (s *Service) claimGeneratedCode(ctx context.Context, link *model.ShortLink) error {
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		code := s.newCode()

		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return fmt.Errorf("检查短码失败: %w", err)
		}
		if exists {
			s.logger.Debug("随机短码冲突，重新生成", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}

		s.assignCode(link, code)
		err = s.store.CreateShortLink(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("创建短链接失败: %w", err)
		}
		s.logger.Debug("写入时短码冲突，重新生成", zap.String("code", code), zap.Int("attempt", attempt))
	}

	s.logger.Error("生成唯一短码失败", zap.Int("attempts", s.opts.MaxAttempts))
	return ErrCodeExhausted
}

func (s *Service) assignCode(link *model.ShortLink, code string) {
	link.ShortCode = code
	link.ShortURL = s.opts.BaseURL + "/" + code
}
