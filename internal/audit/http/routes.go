package audithttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers audit timeline endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Timeline)
	r.Get("/export.csv", h.ExportCSV)
}
