package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"ccsa/internal/config"
)

// HostChecker — проверка заголовка Host.
type HostChecker interface {
	HostAllowed(host string) bool
}

// WithAllowedHosts отклоняет запросы с Host не из ALLOWED_HOSTS.
func WithAllowedHosts(hc HostChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hc.HostAllowed(r.Host) {
				sugar.Warnw("Security: disallowed host", "host", r.Host)
				http.Error(w, "Requête invalide (400)", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithSecurityHeaders: редирект на https, HSTS и базовые заголовки.
func WithSecurityHeaders(cfg *config.Config) func(http.Handler) http.Handler {
	hsts := ""
	if cfg.SecureHSTSSeconds > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.SecureHSTSSeconds)
		if cfg.SecureHSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if cfg.SecureHSTSPreload {
			hsts += "; preload"
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secure := isSecure(r)
			if cfg.SecureSSLRedirect && !secure {
				target := "https://" + r.Host + r.URL.RequestURI()
				http.Redirect(w, r, target, http.StatusMovedPermanently)
				return
			}
			h := w.Header()
			if secure && hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}
