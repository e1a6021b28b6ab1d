package device

import (
	"net/http"
	"strings"

	"fedcred/pkg/requestcontext"

	"github.com/mssola/useragent"
)

// Label reduces a User-Agent to "Browser on OS" for verification audit records.
// Non-browser clients (scanners, scripts) keep their product name.
func Label(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return "bot"
	}
	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	if browser == "" {
		return "unknown"
	}
	if os == "" {
		return browser
	}
	return browser + " on " + os
}

// Middleware derives the device label from the User-Agent already stored by the metadata middleware.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithDevice(ctx, Label(requestcontext.UserAgent(ctx)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
