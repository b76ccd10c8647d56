package service

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
)

// parseUserAgent 从 User-Agent 中解析操作系统和设备类型
// 两个字段都不会为空：解析不出来时分别返回 "Unknown" 和 "Desktop"
func parseUserAgent(raw string) (osType, deviceType string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.UnknownOS, model.DefaultDevice
	}

	ua := useragent.New(raw)

	osType = strings.TrimSpace(ua.OSInfo().Name)
	if osType == "" {
		osType = model.UnknownOS
	}

	lower := strings.ToLower(raw)
	switch {
	case ua.Bot():
		deviceType = "Bot"
	case isTablet(lower):
		deviceType = "Tablet"
	case ua.Mobile():
		deviceType = "Mobile"
	default:
		deviceType = model.DefaultDevice
	}
	return osType, deviceType
}

// isTablet iPad，或者不带 "Mobile" 标记的 Android（Android 平板的约定）
// Windows 的 "Tablet PC" 只表示支持触控，不算平板
func isTablet(lowerUA string) bool {
	if strings.Contains(lowerUA, "ipad") {
		return true
	}
	return strings.Contains(lowerUA, "android") && !strings.Contains(lowerUA, "mobile")
}
