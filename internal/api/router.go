package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/status", s.handleSystemStatus)
		r.Get("/system/log-level", s.handleGetLogLevel)
		r.Put("/system/log-level", s.handleSetLogLevel)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.editLockMiddleware)

			r.Get("/devices", s.handleListDevices)
			r.Post("/devices/rescan", s.handleRescanDevices)

			r.Get("/plugin-kinds", s.handleListPluginKinds)

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", s.handleListProfiles)
				r.Post("/", s.handleCreateProfile)
				r.Get("/active", s.handleGetActiveProfile)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProfile)
					r.Patch("/", s.handleUpdateProfile)
					r.Delete("/", s.handleDeleteProfile)
					r.Post("/children", s.handleCreateChildProfile)
					r.Put("/devices", s.handleSetDeviceGroup)
					r.Post("/activate", s.handleActivateProfile)

					r.Route("/plugins", func(r chi.Router) {
						r.Post("/", s.handleCreatePlugin)

						r.Route("/{pluginID}", func(r chi.Router) {
							r.Get("/", s.handleGetPlugin)
							r.Patch("/", s.handleUpdatePlugin)
							r.Delete("/", s.handleDeletePlugin)
							r.Post("/duplicate", s.handleDuplicatePlugin)
							r.Put("/bindings/{direction}/{slot}", s.handleSetBinding)
						})
					})
				})
			})

			r.Route("/config", func(r chi.Router) {
				r.Get("/", s.handleConfigStatus)
				r.Post("/save", s.handleSaveConfig)
				r.Get("/export", s.handleExportConfig)
				r.Post("/import", s.handleImportConfig)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
