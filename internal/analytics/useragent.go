package analytics

import "strings"

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"

	BrowserChrome  = "chrome"
	BrowserFirefox = "firefox"
	BrowserSafari  = "safari"
	BrowserEdge    = "edge"
	BrowserOther   = "other"
)

// ClassifyDevice maps a user-agent to exactly one device category. Tablet
// hints are checked before mobile ones because iPad and Android tablet
// agents also carry mobile tokens; anything else is desktop.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case strings.Contains(ua, "mobile"),
		strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "android"):
		return DeviceMobile
	}
	return DeviceDesktop
}

// ClassifyBrowser maps a user-agent to exactly one browser category.
// Order matters: Edge agents contain "Chrome" and "Safari", Chrome agents
// contain "Safari".
func ClassifyBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge/"), strings.Contains(ua, "edga/"), strings.Contains(ua, "edgios/"):
		return BrowserEdge
	case strings.Contains(ua, "firefox/"), strings.Contains(ua, "fxios/"):
		return BrowserFirefox
	case strings.Contains(ua, "chrome/"), strings.Contains(ua, "crios/"), strings.Contains(ua, "chromium/"):
		return BrowserChrome
	case strings.Contains(ua, "safari/"):
		return BrowserSafari
	}
	return BrowserOther
}
