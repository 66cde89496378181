package accounts

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/code/{code}", h.Resolve)
	r.Get("/{id}/ancestors", h.Ancestors)
	r.Post("/{id}/deactivate", h.Deactivate)
}
