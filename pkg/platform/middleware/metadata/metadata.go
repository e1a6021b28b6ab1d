package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"fedcred/pkg/requestcontext"
)

// MaxXFFHeaderLength bounds the forwarded header before it is parsed.
const MaxXFFHeaderLength = 500

// Config lists the proxies allowed to set X-Forwarded-For / X-Real-IP.
// An empty list means forwarded headers are ignored.
type Config struct {
	TrustedProxies []netip.Prefix
}

// ParseTrustedProxies turns CIDR strings from configuration into prefixes, skipping blanks.
func ParseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type Middleware struct {
	config Config
}

func NewMiddleware(cfg *Config) *Middleware {
	m := &Middleware{}
	if cfg != nil {
		m.config = *cfg
	}
	return m
}

// Handler records the client IP and User-Agent on the request context.
// Verification events carry both as verifier context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.clientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	remote := remoteIP(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if !m.trusted(remote) {
		return remote
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Real-IP")
	}
	if forwarded == "" || len(forwarded) > MaxXFFHeaderLength {
		return remote
	}
	first, _, _ := strings.Cut(forwarded, ",")
	first = strings.TrimSpace(first)
	if _, err := netip.ParseAddr(first); err != nil {
		return remote
	}
	return first
}

func (m *Middleware) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return host
}
