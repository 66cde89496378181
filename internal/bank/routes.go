package bank

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.ListBankAccounts)
	r.Post("/accounts", h.CreateBankAccount)
	r.Get("/accounts/{accountID}/transactions", h.ListTransactions)
	r.Post("/transactions", h.ImportTransaction)
	r.Post("/reconciliations", h.Start)
	r.Get("/reconciliations/{id}", h.Get)
	r.Post("/reconciliations/{id}/complete", h.Complete)
	r.Delete("/reconciliations/{id}", h.Delete)
}
