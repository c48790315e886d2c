package signature

import (
	"strings"

	"github.com/mssola/useragent"
)

// describeDevice turns a User-Agent header into a short label such as
// "Firefox 126.0 on Linux x86_64 (desktop)" for signature evidence.
func describeDevice(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}

	var b strings.Builder
	name, version := ua.Browser()
	if name == "" {
		name = "unknown client"
	}
	b.WriteString(name)
	if version != "" {
		b.WriteString(" " + version)
	}
	if os := ua.OS(); os != "" {
		b.WriteString(" on " + os)
	}
	if ua.Mobile() {
		b.WriteString(" (mobile)")
	} else {
		b.WriteString(" (desktop)")
	}
	return b.String()
}
