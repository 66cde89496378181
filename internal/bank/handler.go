package bank

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

type createBankAccountRequest struct {
	Name          string `json:"name" validate:"required,max=128"`
	AccountNumber string `json:"account_number" validate:"max=64"`
	GLAccountID   int64  `json:"gl_account_id" validate:"required"`
}

type importTransactionRequest struct {
	BankAccountID int64  `json:"bank_account_id" validate:"required"`
	TxnDate       string `json:"txn_date" validate:"required,datetime=2006-01-02"`
	Description   string `json:"description" validate:"max=256"`
	Debit         string `json:"debit"`
	Credit        string `json:"credit"`
}

type startReconciliationRequest struct {
	BankAccountID  int64   `json:"bank_account_id" validate:"required"`
	StatementDate  string  `json:"statement_date" validate:"required,datetime=2006-01-02"`
	OpeningBalance string  `json:"opening_balance" validate:"required"`
	ClosingBalance string  `json:"closing_balance" validate:"required"`
	MatchedTxnIDs  []int64 `json:"matched_txn_ids" validate:"required,min=1"`
}

type completeReconciliationRequest struct {
	Force bool   `json:"force"`
	Notes string `json:"notes" validate:"max=512"`
}

type bankAccountResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number,omitempty"`
	GLAccountID   int64  `json:"gl_account_id"`
	IsActive      bool   `json:"is_active"`
}

type transactionResponse struct {
	ID               int64  `json:"id"`
	BankAccountID    int64  `json:"bank_account_id"`
	TxnDate          string `json:"txn_date"`
	Description      string `json:"description,omitempty"`
	Debit            string `json:"debit"`
	Credit           string `json:"credit"`
	IsReconciled     bool   `json:"is_reconciled"`
	ReconciliationID *int64 `json:"reconciliation_id,omitempty"`
}

type reconciliationResponse struct {
	ID             int64  `json:"id"`
	BankAccountID  int64  `json:"bank_account_id"`
	StatementDate  string `json:"statement_date"`
	OpeningBalance string `json:"opening_balance"`
	ClosingBalance string `json:"closing_balance"`
	BookBalance    string `json:"book_balance"`
	Difference     string `json:"difference"`
	Status         string `json:"status"`
	Notes          string `json:"notes,omitempty"`
}

func toReconciliationResponse(r BankReconciliation) reconciliationResponse {
	return reconciliationResponse{
		ID:             r.ID,
		BankAccountID:  r.BankAccountID,
		StatementDate:  r.StatementDate.Format("2006-01-02"),
		OpeningBalance: r.OpeningBalance.StringFixed(shared.MinorUnitPlaces),
		ClosingBalance: r.ClosingBalance.StringFixed(shared.MinorUnitPlaces),
		BookBalance:    r.BookBalance.StringFixed(shared.MinorUnitPlaces),
		Difference:     r.Difference.StringFixed(shared.MinorUnitPlaces),
		Status:         string(r.Status),
		Notes:          r.Notes,
	}
}

func (h *Handler) CreateBankAccount(w http.ResponseWriter, r *http.Request) {
	var req createBankAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateBankAccount(r.Context(), BankAccount{
		OrgID:         shared.OrgFromContext(r.Context()),
		Name:          req.Name,
		AccountNumber: req.AccountNumber,
		GLAccountID:   req.GLAccountID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bankAccountResponse{
		ID:            account.ID,
		Name:          account.Name,
		AccountNumber: account.AccountNumber,
		GLAccountID:   account.GLAccountID,
		IsActive:      account.IsActive,
	})
}

func (h *Handler) ListBankAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListBankAccounts(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]bankAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, bankAccountResponse{
			ID:            a.ID,
			Name:          a.Name,
			AccountNumber: a.AccountNumber,
			GLAccountID:   a.GLAccountID,
			IsActive:      a.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ImportTransaction(w http.ResponseWriter, r *http.Request) {
	var req importTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	debit, err := parseOptionalAmount(req.Debit)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	credit, err := parseOptionalAmount(req.Credit)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	txnDate, _ := time.Parse("2006-01-02", req.TxnDate)
	txn, err := h.service.ImportTransaction(r.Context(), BankTransaction{
		OrgID:         shared.OrgFromContext(r.Context()),
		BankAccountID: req.BankAccountID,
		TxnDate:       txnDate,
		Description:   req.Description,
		Debit:         debit,
		Credit:        credit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func parseOptionalAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func toTransactionResponse(t BankTransaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		BankAccountID:    t.BankAccountID,
		TxnDate:          t.TxnDate.Format("2006-01-02"),
		Description:      t.Description,
		Debit:            t.Debit.StringFixed(shared.MinorUnitPlaces),
		Credit:           t.Credit.StringFixed(shared.MinorUnitPlaces),
		IsReconciled:     t.IsReconciled,
		ReconciliationID: t.ReconciliationID,
	}
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	bankAccountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	unreconciledOnly := r.URL.Query().Get("unreconciled") == "true"
	txns, err := h.service.ListTransactions(r.Context(), shared.OrgFromContext(r.Context()), bankAccountID, unreconciledOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startReconciliationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opening, err := decimal.NewFromString(req.OpeningBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	closing, err := decimal.NewFromString(req.ClosingBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	stmtDate, _ := time.Parse("2006-01-02", req.StatementDate)
	ctx := r.Context()
	recon, err := h.service.Start(ctx, StartInput{
		OrgID:          shared.OrgFromContext(ctx),
		BankAccountID:  req.BankAccountID,
		StatementDate:  stmtDate,
		OpeningBalance: opening,
		ClosingBalance: closing,
		MatchedTxnIDs:  req.MatchedTxnIDs,
		ActorID:        shared.ActorFromContext(ctx),
	})
	if err != nil {
		h.logger.Error("start reconciliation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReconciliationResponse(recon))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	recon, err := h.service.Get(r.Context(), shared.OrgFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconciliationResponse(recon))
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req completeReconciliationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	ctx := r.Context()
	recon, err := h.service.Complete(ctx, shared.OrgFromContext(ctx), id, req.Force, req.Notes, shared.ActorFromContext(ctx))
	if err != nil {
		h.logger.Error("complete reconciliation", slog.Int64("reconciliation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ReconciliationsDone.Inc()
	}
	httpx.JSON(w, http.StatusOK, toReconciliationResponse(recon))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	force := r.URL.Query().Get("force") == "true"
	ctx := r.Context()
	if err := h.service.Delete(ctx, shared.OrgFromContext(ctx), id, force, shared.ActorFromContext(ctx)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
