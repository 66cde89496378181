package ap

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type Handler struct {
	service  *Service
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: metrics, validate: validator.New()}
}

type billLineRequest struct {
	Description     string `json:"description" validate:"required,max=256"`
	Quantity        string `json:"quantity" validate:"required"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	TaxPercent      string `json:"tax_percent"`
	DiscountPercent string `json:"discount_percent"`
}

type createBillRequest struct {
	Number   string            `json:"number" validate:"required,max=64"`
	VendorID int64             `json:"vendor_id" validate:"required"`
	BillDate string            `json:"bill_date" validate:"required,datetime=2006-01-02"`
	DueAt    string            `json:"due_at" validate:"required,datetime=2006-01-02"`
	Memo     string            `json:"memo" validate:"max=512"`
	Lines    []billLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createPaymentRequest struct {
	Number      string `json:"number" validate:"required,max=64"`
	VendorID    int64  `json:"vendor_id" validate:"required"`
	PaymentDate string `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Amount      string `json:"amount" validate:"required"`
	Memo        string `json:"memo" validate:"max=512"`
}

type allocateRequest struct {
	PaymentID int64  `json:"payment_id" validate:"required"`
	BillID    int64  `json:"bill_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type billResponse struct {
	ID             int64  `json:"id"`
	Number         string `json:"number"`
	VendorID       int64  `json:"vendor_id"`
	BillDate       string `json:"bill_date"`
	DueAt          string `json:"due_at"`
	Subtotal       string `json:"subtotal"`
	TaxAmount      string `json:"tax_amount"`
	DiscountAmount string `json:"discount_amount"`
	Total          string `json:"total"`
	PaidAmount     string `json:"paid_amount"`
	BalanceDue     string `json:"balance_due"`
	Status         string `json:"status"`
	PaymentState   string `json:"payment_state"`
	Memo           string `json:"memo,omitempty"`
}

type paymentResponse struct {
	ID              int64  `json:"id"`
	Number          string `json:"number"`
	VendorID        int64  `json:"vendor_id"`
	PaymentDate     string `json:"payment_date"`
	Amount          string `json:"amount"`
	AllocatedAmount string `json:"allocated_amount"`
	Status          string `json:"status"`
}

type allocationResponse struct {
	ID        int64  `json:"id"`
	PaymentID int64  `json:"payment_id"`
	BillID    int64  `json:"bill_id"`
	Amount    string `json:"amount"`
}

type agingBucketResponse struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Amount string `json:"amount"`
}

func toBillResponse(b Bill) billResponse {
	return billResponse{
		ID:             b.ID,
		Number:         b.Number,
		VendorID:       b.VendorID,
		BillDate:       b.BillDate.Format("2006-01-02"),
		DueAt:          b.DueAt.Format("2006-01-02"),
		Subtotal:       b.Subtotal.StringFixed(shared.MinorUnitPlaces),
		TaxAmount:      b.TaxAmount.StringFixed(shared.MinorUnitPlaces),
		DiscountAmount: b.DiscountAmount.StringFixed(shared.MinorUnitPlaces),
		Total:          b.Total.StringFixed(shared.MinorUnitPlaces),
		PaidAmount:     b.PaidAmount.StringFixed(shared.MinorUnitPlaces),
		BalanceDue:     b.BalanceDue.StringFixed(shared.MinorUnitPlaces),
		Status:         string(b.Status),
		PaymentState:   string(b.PaymentState),
		Memo:           b.Memo,
	}
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		Number:          p.Number,
		VendorID:        p.VendorID,
		PaymentDate:     p.PaymentDate.Format("2006-01-02"),
		Amount:          p.Amount.StringFixed(shared.MinorUnitPlaces),
		AllocatedAmount: p.AllocatedAmount.StringFixed(shared.MinorUnitPlaces),
		Status:          string(p.Status),
	}
}

type billListResponse struct {
	Data       []billResponse    `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	bills, err := h.service.ListBills(r.Context(), shared.OrgFromContext(r.Context()), status)
	if err != nil {
		h.logger.Error("list bills", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(bills))
	bills = paginate(bills, pagination)
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillResponse(b))
	}
	httpx.JSON(w, http.StatusOK, billListResponse{Data: out, Pagination: pagination})
}

func paginate(bills []Bill, p shared.Pagination) []Bill {
	start := (p.Page - 1) * p.PerPage
	if start >= len(bills) {
		return nil
	}
	end := start + p.PerPage
	if end > len(bills) {
		end = len(bills)
	}
	return bills[start:end]
}

func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	billDate, _ := time.Parse("2006-01-02", req.BillDate)
	dueAt, _ := time.Parse("2006-01-02", req.DueAt)
	input := CreateBillInput{
		OrgID:    shared.OrgFromContext(r.Context()),
		Number:   req.Number,
		VendorID: req.VendorID,
		BillDate: billDate,
		DueAt:    dueAt,
		Memo:     req.Memo,
	}
	for _, line := range req.Lines {
		qty, err := decimal.NewFromString(line.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
			return
		}
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
			return
		}
		tax, err := parsePercent(line.TaxPercent)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", err.Error())
			return
		}
		discount, err := parsePercent(line.DiscountPercent)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", err.Error())
			return
		}
		input.Lines = append(input.Lines, BillLineInput{
			Description:     line.Description,
			Quantity:        qty,
			UnitPrice:       price,
			TaxPercent:      tax,
			DiscountPercent: discount,
		})
	}
	bill, err := h.service.CreateBill(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillResponse(bill))
}

func parsePercent(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	bill, err := h.service.GetBill(r.Context(), shared.OrgFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) PostBill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ctx := r.Context()
	bill, err := h.service.PostBill(ctx, shared.OrgFromContext(ctx), id, shared.ActorFromContext(ctx))
	if err != nil {
		h.logger.Error("post bill", slog.Int64("bill_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) VoidBill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ctx := r.Context()
	bill, err := h.service.VoidBill(ctx, shared.OrgFromContext(ctx), id, shared.ActorFromContext(ctx))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	paymentDate, _ := time.Parse("2006-01-02", req.PaymentDate)
	payment, err := h.service.CreatePayment(r.Context(), CreatePaymentInput{
		OrgID:       shared.OrgFromContext(r.Context()),
		Number:      req.Number,
		VendorID:    req.VendorID,
		PaymentDate: paymentDate,
		Amount:      amount,
		Memo:        req.Memo,
	})
	if err != nil {
		h.logger.Error("create payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	ctx := r.Context()
	alloc, err := h.service.Allocate(ctx, shared.OrgFromContext(ctx), req.PaymentID, req.BillID, amount, shared.ActorFromContext(ctx))
	if err != nil {
		h.logger.Error("allocate payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AllocationsApplied.Inc()
	}
	httpx.JSON(w, http.StatusCreated, allocationResponse{
		ID:        alloc.ID,
		PaymentID: alloc.PaymentID,
		BillID:    alloc.BillID,
		Amount:    alloc.Amount.StringFixed(shared.MinorUnitPlaces),
	})
}

func (h *Handler) Deallocate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ctx := r.Context()
	if err := h.service.Deallocate(ctx, shared.OrgFromContext(ctx), id, shared.ActorFromContext(ctx)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		asOf = parsed
	}
	buckets, err := h.service.Aging(r.Context(), shared.OrgFromContext(r.Context()), asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]agingBucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, agingBucketResponse{Label: b.Label, Count: b.Count, Amount: b.Amount.StringFixed(shared.MinorUnitPlaces)})
	}
	httpx.JSON(w, http.StatusOK, out)
}
