package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ccsa/internal/authz"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName — имя cookie с токеном сессии.
	CookieName = "auth_token"
	tokenTTL   = 12 * time.Hour
)

var secureCookie = true

// SetSecureCookie управляет флагом Secure cookie сессии (SESSION_COOKIE_SECURE).
func SetSecureCookie(v bool) { secureCookie = v }

type userIDKey struct{}

type claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
}

// SetLoginCookie подписывает токен с userID и ставит cookie.
func SetLoginCookie(w http.ResponseWriter, userID int64, secret string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		UserID: userID,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(tokenTTL),
		HttpOnly: true,
		Secure:   secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearLoginCookie удаляет cookie сессии.
func ClearLoginCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithAuth кладёт в контекст user_id из валидного токена. Без токена
// запрос проходит анонимно.
func WithAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(CookieName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			var cl claims
			_, err = jwt.ParseWithClaims(c.Value, &cl, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || cl.UserID <= 0 {
				sugar.Debugw("Auth: invalid token", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, cl.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext возвращает user_id, если запрос аутентифицирован.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// PrincipalResolver загружает принципала по id пользователя.
type PrincipalResolver interface {
	Principal(ctx context.Context, id int64) (authz.Principal, error)
}

// WithPrincipal превращает user_id в authz.Principal. Удалённый или
// отключённый пользователь становится анонимным.
func WithPrincipal(res PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetUserIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := res.Principal(r.Context(), id)
			if err != nil {
				sugar.Debugw("Auth: principal not resolved", "user_id", id, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), p)))
		})
	}
}
