package fiscal

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/years", h.CreateFiscalYear)
	r.Get("/periods/resolve", h.PeriodFor)
	r.Post("/periods/{id}/close", h.ClosePeriod)
	r.Post("/periods/{id}/reopen", h.ReopenPeriod)
}
