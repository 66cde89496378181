package ap

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bills", h.ListBills)
	r.Post("/bills", h.CreateBill)
	r.Get("/bills/{id}", h.GetBill)
	r.Post("/bills/{id}/post", h.PostBill)
	r.Post("/bills/{id}/void", h.VoidBill)
	r.Get("/payments", h.ListPayments)
	r.Post("/payments", h.CreatePayment)
	r.Post("/allocations", h.Allocate)
	r.Delete("/allocations/{id}", h.Deallocate)
	r.Get("/aging", h.Aging)
}
