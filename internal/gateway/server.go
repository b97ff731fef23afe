package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(tracing(g.tracer))
	r.Use(accessLog(g.logger))

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Get("/metrics", g.metrics.Handler().ServeHTTP)

	// Webhooks carry their own HMAC auth per source.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// Assembly: authenticated when credentials are configured.
	r.Group(func(r chi.Router) {
		r.Use(g.optionalAuth)
		r.Post("/v1/assemble", g.handleAssemble())
	})

	// Admin endpoints: hidden entirely until credentials are configured.
	r.Group(func(r chi.Router) {
		r.Use(g.adminOnly)
		r.Use(authMiddleware(&g.auth, g.audit, g.limiter))
		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Get("/modules", g.handleGetAllModules())
			r.Get("/config", g.handleGetConfig())
			r.Post("/config/reload", g.handleReloadConfig())

			r.Get("/presets", g.handleListPresets())
			r.Post("/presets/import", g.handleImportPreset())
			r.Get("/presets/{name}", g.handleGetPreset())
			r.Put("/presets/{name}", g.handlePutPreset())
			r.Delete("/presets/{name}", g.handleDeletePreset())
			r.Post("/presets/{name}/rename", g.handleRenamePreset())
		})
	})

	return r
}

// adminOnly answers 404 while no credentials are configured.
func (g *Gateway) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.auth.Load().IsConfigured() {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalAuth enforces authMiddleware only when credentials are configured.
func (g *Gateway) optionalAuth(next http.Handler) http.Handler {
	authed := authMiddleware(&g.auth, g.audit, g.limiter)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.auth.Load().IsConfigured() {
			authed.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
