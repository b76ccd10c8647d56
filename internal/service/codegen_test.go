package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeGenerator(t *testing.T) {
	gen, err := newCodeGenerator(0)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code := gen()
		require.Len(t, code, DefaultCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q in %q", r, code)
		}
		seen[code] = struct{}{}
	}
	// 62^6 的空间里 1000 次基本不会重复
	assert.Greater(t, len(seen), 990)
}

func TestNewCodeGenerator_CustomLength(t *testing.T) {
	gen, err := newCodeGenerator(10)
	require.NoError(t, err)
	assert.Len(t, gen(), 10)
}

func TestURLPattern(t *testing.T) {
	valid := []string{
		"https://example.com",
		"http://example.com/path/to?q=1#frag",
		"example.com",
		"sub.example.co.uk/page",
		"HTTPS://EXAMPLE.COM",
		"http://localhost.dev:8080/x",
	}
	for _, u := range valid {
		assert.True(t, urlPattern.MatchString(u), u)
	}

	invalid := []string{
		"example",
		"ftp://example.com",
		"https://",
		"https://example.com/has space",
		"javascript:alert(1)",
	}
	for _, u := range invalid {
		assert.False(t, urlPattern.MatchString(u), u)
	}
}

func TestRedirectTarget(t *testing.T) {
	assert.Equal(t, "https://example.com", redirectTarget("example.com"))
	assert.Equal(t, "http://example.com", redirectTarget("http://example.com"))
	assert.Equal(t, "HTTPS://example.com", redirectTarget("HTTPS://example.com"))
}

func TestValidateAlias(t *testing.T) {
	for _, alias := range []string{"promo", "my-docs", "Q4_2026", "healthz2", "Metrics"} {
		assert.NoError(t, validateAlias(alias), alias)
	}

	for alias := range reservedAliases {
		assert.ErrorIs(t, validateAlias(alias), ErrAliasTaken, alias)
	}

	for _, alias := range []string{"a/b", "x?y", "x#y", "100%", "two words", "tab\there", ".", "..", strings.Repeat("a", 65)} {
		assert.ErrorIs(t, validateAlias(alias), ErrInvalidAlias, alias)
	}
}
