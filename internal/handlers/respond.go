package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ccsa/internal/authz"
	"ccsa/internal/backup"
	"ccsa/internal/kernel"
	"ccsa/internal/service"

	"go.uber.org/zap"
)

// Тексты ошибок для пользователя.
const (
	msgNotFound     = "Page introuvable."
	msgUnauthorized = "Authentification requise."
	msgForbidden    = "Vous n'avez pas la permission d'effectuer cette action."
	msgBadRequest   = "Requête invalide."
	msgInternal     = "Une erreur interne est survenue. Veuillez réessayer plus tard."
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError переводит ошибку сервиса в HTTP-ответ.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger, err error) {
	var (
		ve  *kernel.ValidationError
		uv  *kernel.UniqueViolation
		aio *kernel.AttachmentIOError
		pe  *service.PasswordError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": ve.Fields})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string][]string{"password": pe.Problems}})
	case errors.As(err, &uv):
		writeMessage(w, http.StatusConflict, uv.Message())
	case errors.Is(err, service.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, "Un utilisateur avec cette adresse e-mail existe déjà.")
	case errors.Is(err, kernel.ErrNotFound),
		errors.Is(err, kernel.ErrUnknownType),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, backup.ErrNotFound),
		errors.Is(err, backup.ErrInvalidName):
		writeMessage(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Adresse e-mail ou mot de passe incorrect.")
	case errors.Is(err, kernel.ErrForbidden),
		errors.Is(err, service.ErrForbidden):
		deny(w, r)
	case errors.Is(err, service.ErrRegistrationClosed):
		writeMessage(w, http.StatusForbidden, "Les inscriptions sont fermées.")
	case errors.Is(err, service.ErrProtectedUser):
		writeMessage(w, http.StatusForbidden, "Impossible de modifier un autre superutilisateur.")
	case errors.Is(err, service.ErrSelfDelete):
		writeMessage(w, http.StatusForbidden, "Vous ne pouvez pas supprimer votre propre compte.")
	case errors.Is(err, service.ErrCapability):
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
	case errors.As(err, &aio):
		logger.Errorw("HTTP: attachment write failed", "slot", aio.Slot, "error", aio.Err)
		writeMessage(w, http.StatusInternalServerError, "L'enregistrement du fichier a échoué. Aucune modification n'a été effectuée.")
	default:
		logger.Errorw("HTTP: internal error", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

// deny: 401 для анонима, 403 для вошедшего без права.
func deny(w http.ResponseWriter, r *http.Request) {
	if !authz.FromContext(r.Context()).Authenticated {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	writeMessage(w, http.StatusForbidden, msgForbidden)
}

// requireStaff пропускает только staff и суперпользователей.
func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := authz.FromContext(r.Context())
		if !p.Authenticated || !(p.Staff || p.Superuser) {
			deny(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsGuard пускает к /metrics сотрудников по сессии или сборщик
// с заголовком "Authorization: Bearer <METRICS_TOKEN>".
func metricsGuard(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		staffOnly := requireStaff(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			staffOnly.ServeHTTP(w, r)
		})
	}
}
