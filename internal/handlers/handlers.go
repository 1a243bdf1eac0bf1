package handlers

import (
	"net/http"

	"ccsa/internal/backup"
	"ccsa/internal/config"
	"ccsa/internal/contact"
	"ccsa/internal/kernel"
	"ccsa/internal/middleware"
	"ccsa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	Router chi.Router
}

// Services — компоненты, которые обслуживает HTTP-слой.
type Services struct {
	Users   *service.UserService
	Site    *service.Site
	Kernel  *kernel.Kernel
	Contact *contact.Pipeline
	Backups *backup.Service
}

// NewHandler разводящий для хендлеров
func NewHandler(svc Services, logger *zap.SugaredLogger, cfg *config.Config) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	middleware.SetLogger(logger)
	middleware.SetSecureCookie(cfg.SessionCookieSecure)

	r := chi.NewRouter()

	r.Use(middleware.WithMetrics)
	r.Use(middleware.WithLogging)
	r.Use(middleware.WithAllowedHosts(cfg))
	r.Use(middleware.WithSecurityHeaders(cfg))
	r.Use(middleware.WithGzip)
	r.Use(middleware.WithCSRF(cfg.CSRFCookieSecure))
	r.Use(middleware.WithAuth(cfg.SecretKey))
	r.Use(middleware.WithPrincipal(svc.Users))

	userHandler := NewUserHandler(svc.Users, logger, cfg)
	publicHandler := NewPublicHandler(svc.Site, logger, cfg)
	formHandler := NewFormHandler(svc.Contact, logger)
	adminHandler := NewAdminHandler(svc.Kernel, svc.Site, logger, cfg)
	backupHandler := NewBackupHandler(svc.Backups, logger)

	// Public read API
	r.Route("/api", func(r chi.Router) {
		r.Get("/home", publicHandler.Home)
		r.Get("/footer", publicHandler.Footer)
		r.Get("/services", publicHandler.Services)
		r.Get("/journal", publicHandler.Journals)
		r.Get("/rapports-activite", publicHandler.Reports)
		r.Get("/conseils", publicHandler.Councils)
		r.Get("/conseil-communautaire", publicHandler.Council)
		r.Get("/pages", publicHandler.Pages)
		r.Get("/communes/{slug}", publicHandler.Commune)
		r.Get("/elus", publicHandler.Officials)
		r.Get("/bureau", publicHandler.Bureau)
		r.Get("/commissions", publicHandler.Commissions)
		r.Get("/competences", publicHandler.Competences)
		r.Get("/nos-liens", publicHandler.LinkTree)
		r.Get("/calendrier", publicHandler.Calendar)
		r.Get("/partenaires", publicHandler.Partners)

		// Forms
		r.Post("/contact", formHandler.Contact)
		r.Post("/plui", formHandler.PLUi)

		// User routes
		r.Post("/user/register", userHandler.Register)
		r.Post("/user/login", userHandler.Login)
		r.Post("/user/logout", userHandler.Logout)
		r.Get("/user/me", userHandler.Me)

		// Back-office
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireStaff)

			r.Get("/resources", adminHandler.Types)
			r.Get("/conseils", adminHandler.Councils)
			r.Get("/{type}", adminHandler.List)
			r.Post("/{type}", adminHandler.Create)
			r.Get("/{type}/{id}", adminHandler.Get)
			r.Put("/{type}/{id}", adminHandler.Update)
			r.Post("/{type}/{id}", adminHandler.Update)
			r.Delete("/{type}/{id}", adminHandler.Delete)

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", backupHandler.List)
				r.Post("/", backupHandler.Store)
				r.Get("/download-now", backupHandler.DownloadNow)
				r.Get("/{name}", backupHandler.Download)
				r.Delete("/{name}", backupHandler.Delete)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.List)
				r.Post("/", userHandler.Create)
				r.Post("/{id}/activate", userHandler.Activate)
				r.Post("/{id}/deactivate", userHandler.Deactivate)
				r.Delete("/{id}", userHandler.Delete)
			})
		})
	})

	r.Get("/sitemap.xml", publicHandler.Sitemap)
	r.With(metricsGuard(cfg.MetricsToken)).Handle("/metrics", promhttp.Handler())

	if cfg.Debug {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaRoot))))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, msgNotFound)
	})

	return &Handler{Router: r}
}
