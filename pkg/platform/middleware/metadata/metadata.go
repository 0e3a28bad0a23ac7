package metadata

import (
	"net/http"
	"strings"

	"propertyvet/pkg/requestcontext"

	"github.com/mssola/useragent"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers, services and audit.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), raw)
		ctx = requestcontext.WithUserAgentFamily(ctx, UserAgentFamily(raw))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserAgentFamily reduces a raw User-Agent to "<browser> <major>" for logs and
// audit records. Bots and unparseable agents collapse to their product token.
func UserAgentFamily(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	if ua.Bot() {
		return "bot:" + name
	}
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	if version == "" {
		return name
	}
	return name + " " + version
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port"
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
