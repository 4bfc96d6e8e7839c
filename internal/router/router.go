package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"aiaxstock/internal/handler"
	"aiaxstock/internal/middleware"
	"aiaxstock/internal/model"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	AuthHandler      *handler.AuthHandler
	CatalogHandler   *handler.CatalogHandler
	InventoryHandler *handler.InventoryHandler
	CheckoutHandler  *handler.CheckoutHandler
	SalesHandler     *handler.SalesHandler
	SystemHandler    *handler.SystemHandler
	AuthMiddleware   func(http.Handler) http.Handler
	LoginLimiter     func(http.Handler) http.Handler
	AllowedOrigins   []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(corsOptions(cfg.AllowedOrigins)))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.AuthHandler != nil {
			r.Group(func(r chi.Router) {
				if cfg.LoginLimiter != nil {
					r.Use(cfg.LoginLimiter)
				}
				r.Post("/auth/login", cfg.AuthHandler.Login)
			})
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.AuthHandler != nil {
				r.Post("/auth/logout", cfg.AuthHandler.Logout)
				r.Get("/auth/me", cfg.AuthHandler.Me)
			}

			if cfg.CatalogHandler != nil {
				r.Get("/catalog", cfg.CatalogHandler.Get)
			}

			if cfg.InventoryHandler != nil {
				r.Get("/stock/summary", cfg.InventoryHandler.Summary)
				r.Get("/stock/peek", cfg.InventoryHandler.Peek)
			}

			if cfg.CheckoutHandler != nil {
				r.Post("/checkout", cfg.CheckoutHandler.Checkout)
			}

			if cfg.SalesHandler != nil {
				r.Route("/sales", func(r chi.Router) {
					r.Get("/", cfg.SalesHandler.List)
					r.Get("/export", cfg.SalesHandler.Export)
					r.Patch("/{id}", cfg.SalesHandler.Update)
					r.Post("/{id}/extend", cfg.SalesHandler.Extend)
				})
			}

			// Owner only
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleOwner))

				if cfg.InventoryHandler != nil {
					r.Route("/lots", func(r chi.Router) {
						r.Get("/", cfg.InventoryHandler.ListLots)
						r.Post("/", cfg.InventoryHandler.AddLot)
						r.Get("/export", cfg.InventoryHandler.ExportLots)
						r.Post("/purge", cfg.InventoryHandler.Purge)
						r.Patch("/{id}", cfg.InventoryHandler.EditLot)
						r.Delete("/{id}", cfg.InventoryHandler.DeleteLot)
						r.Post("/{id}/archive", cfg.InventoryHandler.Archive)
						r.Post("/{id}/unarchive", cfg.InventoryHandler.Unarchive)
					})
				}

				if cfg.SystemHandler != nil {
					r.Get("/system/stats", cfg.SystemHandler.Stats)
				}
			})
		})
	})

	return r
}

// corsOptions allows the configured origins with credentials, or any origin
// without them when none are configured.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return opts
}
