package journals

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.CreateDraft)
	r.Post("/post", h.PostDirect)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/void", h.Void)
	r.Get("/balances/{accountID}", h.Balance)
	r.Get("/trial-balance", h.TrialBalance)
}
