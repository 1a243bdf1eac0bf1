package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// CSRFCookieName — cookie с CSRF-токеном, читается клиентским JS.
	CSRFCookieName = "csrftoken"
	// CSRFHeader — заголовок, в котором клиент повторяет токен.
	CSRFHeader = "X-CSRFToken"

	csrfTTL = 365 * 24 * time.Hour
)

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// WithCSRF выдаёт клиенту cookie csrftoken (Secure по CSRF_COOKIE_SECURE).
// Изменяющий запрос с cookie сессии проходит, только если X-CSRFToken
// совпадает с cookie. Анонимные формы не проверяются: сессии у них нет.
func WithCSRF(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(CSRFCookieName); err == nil && c.Value != "" {
				token = c.Value
			} else {
				token = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(csrfTTL / time.Second),
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if unsafeMethod(r.Method) {
				if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
					sent := r.Header.Get(CSRFHeader)
					if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
						sugar.Warnw("Security: CSRF check failed", "method", r.Method, "path", r.URL.Path)
						http.Error(w, "Vérification CSRF échouée (403)", http.StatusForbidden)
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
