package ar

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

type invoiceLineRequest struct {
	Description     string `json:"description" validate:"required,max=256"`
	Quantity        string `json:"quantity" validate:"required"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	TaxPercent      string `json:"tax_percent"`
	DiscountPercent string `json:"discount_percent"`
}

type createInvoiceRequest struct {
	Number      string               `json:"number" validate:"required,max=64"`
	CustomerID  int64                `json:"customer_id" validate:"required"`
	InvoiceDate string               `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueAt       string               `json:"due_at" validate:"required,datetime=2006-01-02"`
	Memo        string               `json:"memo" validate:"max=512"`
	Lines       []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createReceiptRequest struct {
	Number      string `json:"number" validate:"required,max=64"`
	CustomerID  int64  `json:"customer_id" validate:"required"`
	ReceiptDate string `json:"receipt_date" validate:"required,datetime=2006-01-02"`
	Amount      string `json:"amount" validate:"required"`
	Memo        string `json:"memo" validate:"max=512"`
}

type allocateRequest struct {
	ReceiptID int64  `json:"receipt_id" validate:"required"`
	InvoiceID int64  `json:"invoice_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type invoiceResponse struct {
	ID             int64  `json:"id"`
	Number         string `json:"number"`
	CustomerID     int64  `json:"customer_id"`
	InvoiceDate    string `json:"invoice_date"`
	DueAt          string `json:"due_at"`
	Subtotal       string `json:"subtotal"`
	TaxAmount      string `json:"tax_amount"`
	DiscountAmount string `json:"discount_amount"`
	Total          string `json:"total"`
	PaidAmount     string `json:"paid_amount"`
	BalanceDue     string `json:"balance_due"`
	Status         string `json:"status"`
	SettleState    string `json:"settle_state"`
	Memo           string `json:"memo,omitempty"`
}

type receiptResponse struct {
	ID              int64  `json:"id"`
	Number          string `json:"number"`
	CustomerID      int64  `json:"customer_id"`
	ReceiptDate     string `json:"receipt_date"`
	Amount          string `json:"amount"`
	AllocatedAmount string `json:"allocated_amount"`
	Status          string `json:"status"`
}

type allocationResponse struct {
	ID        int64  `json:"id"`
	ReceiptID int64  `json:"receipt_id"`
	InvoiceID int64  `json:"invoice_id"`
	Amount    string `json:"amount"`
}

type agingBucketResponse struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Amount string `json:"amount"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:             inv.ID,
		Number:         inv.Number,
		CustomerID:     inv.CustomerID,
		InvoiceDate:    inv.InvoiceDate.Format("2006-01-02"),
		DueAt:          inv.DueAt.Format("2006-01-02"),
		Subtotal:       inv.Subtotal.StringFixed(shared.MinorUnitPlaces),
		TaxAmount:      inv.TaxAmount.StringFixed(shared.MinorUnitPlaces),
		DiscountAmount: inv.DiscountAmount.StringFixed(shared.MinorUnitPlaces),
		Total:          inv.Total.StringFixed(shared.MinorUnitPlaces),
		PaidAmount:     inv.PaidAmount.StringFixed(shared.MinorUnitPlaces),
		BalanceDue:     inv.BalanceDue.StringFixed(shared.MinorUnitPlaces),
		Status:         string(inv.Status),
		SettleState:    string(inv.SettleState),
		Memo:           inv.Memo,
	}
}

func toReceiptResponse(rec Receipt) receiptResponse {
	return receiptResponse{
		ID:              rec.ID,
		Number:          rec.Number,
		CustomerID:      rec.CustomerID,
		ReceiptDate:     rec.ReceiptDate.Format("2006-01-02"),
		Amount:          rec.Amount.StringFixed(shared.MinorUnitPlaces),
		AllocatedAmount: rec.AllocatedAmount.StringFixed(shared.MinorUnitPlaces),
		Status:          string(rec.Status),
	}
}

type invoiceListResponse struct {
	Data       []invoiceResponse `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	invoices, err := h.service.ListInvoices(r.Context(), shared.OrgFromContext(r.Context()), status)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(invoices))
	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(invoices) {
		start = len(invoices)
	}
	end := start + pagination.PerPage
	if end > len(invoices) {
		end = len(invoices)
	}
	out := make([]invoiceResponse, 0, end-start)
	for _, inv := range invoices[start:end] {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, invoiceListResponse{Data: out, Pagination: pagination})
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	invoiceDate, _ := time.Parse("2006-01-02", req.InvoiceDate)
	dueAt, _ := time.Parse("2006-01-02", req.DueAt)
	input := CreateInvoiceInput{
		OrgID:       shared.OrgFromContext(r.Context()),
		Number:      req.Number,
		CustomerID:  req.CustomerID,
		InvoiceDate: invoiceDate,
		DueAt:       dueAt,
		Memo:        req.Memo,
	}
	for _, line := range req.Lines {
		parsed, err := parseInvoiceLine(line)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
			return
		}
		input.Lines = append(input.Lines, parsed)
	}
	invoice, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(invoice))
}

func parseInvoiceLine(line invoiceLineRequest) (InvoiceLineInput, error) {
	qty, err := decimal.NewFromString(line.Quantity)
	if err != nil {
		return InvoiceLineInput{}, err
	}
	price, err := decimal.NewFromString(line.UnitPrice)
	if err != nil {
		return InvoiceLineInput{}, err
	}
	tax := decimal.Zero
	if line.TaxPercent != "" {
		if tax, err = decimal.NewFromString(line.TaxPercent); err != nil {
			return InvoiceLineInput{}, err
		}
	}
	discount := decimal.Zero
	if line.DiscountPercent != "" {
		if discount, err = decimal.NewFromString(line.DiscountPercent); err != nil {
			return InvoiceLineInput{}, err
		}
	}
	return InvoiceLineInput{
		Description:     line.Description,
		Quantity:        qty,
		UnitPrice:       price,
		TaxPercent:      tax,
		DiscountPercent: discount,
	}, nil
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), shared.OrgFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) PostInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ctx := r.Context()
	invoice, err := h.service.PostInvoice(ctx, shared.OrgFromContext(ctx), id, shared.ActorFromContext(ctx))
	if err != nil {
		h.logger.Error("post invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ctx := r.Context()
	invoice, err := h.service.VoidInvoice(ctx, shared.OrgFromContext(ctx), id, shared.ActorFromContext(ctx))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.service.ListReceipts(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rec := range receipts {
		out = append(out, toReceiptResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
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
	receiptDate, _ := time.Parse("2006-01-02", req.ReceiptDate)
	receipt, err := h.service.CreateReceipt(r.Context(), CreateReceiptInput{
		OrgID:       shared.OrgFromContext(r.Context()),
		Number:      req.Number,
		CustomerID:  req.CustomerID,
		ReceiptDate: receiptDate,
		Amount:      amount,
		Memo:        req.Memo,
	})
	if err != nil {
		h.logger.Error("create receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(receipt))
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
	alloc, err := h.service.Allocate(ctx, shared.OrgFromContext(ctx), req.ReceiptID, req.InvoiceID, amount, shared.ActorFromContext(ctx))
	if err != nil {
		h.logger.Error("allocate receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AllocationsApplied.Inc()
	}
	httpx.JSON(w, http.StatusCreated, allocationResponse{
		ID:        alloc.ID,
		ReceiptID: alloc.ReceiptID,
		InvoiceID: alloc.InvoiceID,
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
