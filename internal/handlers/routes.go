package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bobbyillbrian-max/family-ms/internal/metrics"
	"github.com/bobbyillbrian-max/family-ms/internal/security"
)

// RouterConfig collects the handlers mounted by NewRouter
type RouterConfig struct {
	Auth       *AuthHandler
	Members    *MemberHandler
	Uploads    *UploadHandler
	Files      *FileHandler
	Documents  *DocumentHandler
	Health     *HealthHandler
	Middleware *Middleware
	// Metrics is optional
	Metrics *metrics.Metrics
	// LoginLimiter throttles the unauthenticated credential endpoints per client IP
	LoginLimiter *security.RateLimiter
}

// NewRouter builds the HTTP API
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cfg.Middleware.Logging)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/healthz", cfg.Health.Serve)

	limit := func(h http.HandlerFunc) http.HandlerFunc {
		if cfg.LoginLimiter == nil {
			return h
		}
		return cfg.LoginLimiter.Limit(h)
	}

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/families/register", limit(cfg.Auth.RegisterFamily))
		r.Post("/families/login", limit(cfg.Auth.LoginFamily))
		r.Post("/families/logout", cfg.Auth.Logout)
		r.Post("/users/login", limit(cfg.Auth.LoginUser))
		r.Get("/files/{key}", cfg.Files.Fetch)

		// Family cookie or token
		r.Group(func(fr chi.Router) {
			fr.Use(cfg.Middleware.RequireFamilyContext)
			fr.Get("/families/{familyID}/members", cfg.Members.ListMembers)
			fr.Post("/users/create", cfg.Members.CreateUser)
		})

		// Token only
		r.Group(func(ar chi.Router) {
			ar.Use(cfg.Middleware.RequireAuth)
			ar.Get("/session", cfg.Auth.Session)
			ar.Post("/upload/{kind}", cfg.Uploads.Upload)
			ar.Get("/users/{userID}/documents", cfg.Documents.ListUserDocuments)
			ar.Get("/documents", cfg.Documents.ListVisible)
			ar.Get("/families/{familyID}/shared-documents", cfg.Documents.ListFamilyShared)
			ar.Patch("/documents/{docID}/sharing", cfg.Documents.SetSharing)
		})
	})

	return r
}
