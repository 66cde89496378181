package ar

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.ListInvoices)
	r.Post("/invoices", h.CreateInvoice)
	r.Get("/invoices/{id}", h.GetInvoice)
	r.Post("/invoices/{id}/post", h.PostInvoice)
	r.Post("/invoices/{id}/void", h.VoidInvoice)
	r.Get("/receipts", h.ListReceipts)
	r.Post("/receipts", h.CreateReceipt)
	r.Post("/allocations", h.Allocate)
	r.Delete("/allocations/{id}", h.Deallocate)
	r.Get("/aging", h.Aging)
}
