package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ccsa/internal/authz"
	"ccsa/internal/config"
	"ccsa/internal/middleware"
	"ccsa/internal/model"
	"ccsa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UserHandler — вход в back-office и управление учётными записями.
type UserHandler struct {
	UserService *service.UserService
	Logger      *zap.SugaredLogger
	Config      *config.Config
}

func NewUserHandler(userService *service.UserService, logger *zap.SugaredLogger, cfg *config.Config) *UserHandler {
	return &UserHandler{UserService: userService, Logger: logger, Config: cfg}
}

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Staff    bool   `json:"is_staff"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return false
	}
	return true
}

// login ставит cookie сессии и отдаёт пользователя.
func (h *UserHandler) login(w http.ResponseWriter, u *model.User, status int) {
	if err := middleware.SetLoginCookie(w, u.ID, h.Config.SecretKey); err != nil {
		h.Logger.Errorw("HTTP: session cookie failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, status, u)
}

// Register — первый пользователь сайта; затем регистрация закрыта.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeJSON(w, r, &c) {
		return
	}
	u, err := h.UserService.Register(r.Context(), c.Email, c.Username, c.Password)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.Logger.Infow("User: registered", "id", u.ID, "email", u.Email)
	h.login(w, u, http.StatusCreated)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeJSON(w, r, &c) {
		return
	}
	u, err := h.UserService.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.login(w, u, http.StatusOK)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearLoginCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// me — текущий субъект запроса.
type me struct {
	Authenticated bool     `json:"authenticated"`
	UserID        int64    `json:"id,omitempty"`
	Email         string   `json:"email,omitempty"`
	Staff         bool     `json:"is_staff"`
	Superuser     bool     `json:"is_superuser"`
	Capabilities  []string `json:"capabilities"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := authz.FromContext(r.Context())
	caps := p.Capabilities
	if caps == nil {
		caps = []string{}
	}
	writeJSON(w, http.StatusOK, me{
		Authenticated: p.Authenticated,
		UserID:        p.UserID,
		Email:         p.Email,
		Staff:         p.Staff,
		Superuser:     p.Superuser,
		Capabilities:  caps,
	})
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserService.ListUsers(r.Context(), authz.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeJSON(w, r, &c) {
		return
	}
	u, err := h.UserService.CreateUser(r.Context(), authz.FromContext(r.Context()), c.Email, c.Username, c.Password, c.Staff)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.Logger.Infow("User: created", "id", u.ID, "email", u.Email, "staff", u.IsStaff)
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request)   { h.setActive(w, r, true) }
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) { h.setActive(w, r, false) }

func (h *UserHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.UserService.SetActive(r.Context(), authz.FromContext(r.Context()), id, active)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.UserService.DeleteUser(r.Context(), authz.FromContext(r.Context()), id); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID разбирает {id}; нечисловой id — 404.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusNotFound, msgNotFound)
		return 0, false
	}
	return id, true
}
