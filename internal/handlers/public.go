package handlers

import (
	"bytes"
	"context"
	"net/http"

	"ccsa/internal/config"
	"ccsa/internal/service"
	"ccsa/internal/sitemap"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PublicHandler — чтение публичных страниц.
type PublicHandler struct {
	site   *service.Site
	logger *zap.SugaredLogger
	cfg    *config.Config
}

func NewPublicHandler(site *service.Site, logger *zap.SugaredLogger, cfg *config.Config) *PublicHandler {
	return &PublicHandler{site: site, logger: logger, cfg: cfg}
}

// serve выполняет выборку и отдаёт результат как JSON.
func serve[T any](h *PublicHandler, w http.ResponseWriter, r *http.Request, load func(ctx context.Context) (T, error)) {
	v, err := load(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *PublicHandler) Home(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Home)
}

func (h *PublicHandler) Footer(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Footer)
}

func (h *PublicHandler) Services(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Services)
}

// Journals — ?page= приходит как есть; ядро само приводит номер к допустимому.
func (h *PublicHandler) Journals(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("page")
	serve(h, w, r, func(ctx context.Context) (any, error) {
		return h.site.Journals(ctx, index)
	})
}

func (h *PublicHandler) Reports(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Reports)
}

func (h *PublicHandler) Councils(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Councils)
}

func (h *PublicHandler) Council(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Council)
}

func (h *PublicHandler) Commune(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	serve(h, w, r, func(ctx context.Context) (*service.CommunePage, error) {
		return h.site.Commune(ctx, slug)
	})
}

func (h *PublicHandler) Officials(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Officials)
}

func (h *PublicHandler) Bureau(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Bureau)
}

func (h *PublicHandler) Commissions(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Commissions)
}

func (h *PublicHandler) Competences(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Competences)
}

func (h *PublicHandler) LinkTree(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.LinkTree)
}

// Calendar — 404, пока календарь не загружен.
func (h *PublicHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	rec, err := h.site.ActivityCalendar(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rec == nil {
		writeMessage(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *PublicHandler) Partners(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.site.Partners)
}

// Pages — таблица именованных страниц (для выбора внутренней ссылки).
func (h *PublicHandler) Pages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sitemap.Routes())
}

func (h *PublicHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	urls, err := sitemap.Build(r.Context(), h.cfg.SiteURL, h.site)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := sitemap.Write(&buf, urls); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
