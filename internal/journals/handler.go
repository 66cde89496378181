package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
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

type journalLineRequest struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

type journalRequest struct {
	Date         string               `json:"date" validate:"required,datetime=2006-01-02"`
	SourceModule string               `json:"source_module" validate:"max=32"`
	SourceID     string               `json:"source_id" validate:"omitempty,uuid4"`
	Memo         string               `json:"memo" validate:"max=512"`
	Lines        []journalLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

type journalLineResponse struct {
	LineNo    int    `json:"line_no"`
	AccountID int64  `json:"account_id"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

type journalResponse struct {
	ID           int64                 `json:"id"`
	Number       string                `json:"number,omitempty"`
	PeriodID     int64                 `json:"period_id,omitempty"`
	Date         string                `json:"date"`
	SourceModule string                `json:"source_module,omitempty"`
	SourceID     string                `json:"source_id,omitempty"`
	Memo         string                `json:"memo,omitempty"`
	Status       string                `json:"status"`
	PostedBy     int64                 `json:"posted_by,omitempty"`
	PostedAt     *time.Time            `json:"posted_at,omitempty"`
	ReversalOfID *int64                `json:"reversal_of_id,omitempty"`
	Lines        []journalLineResponse `json:"lines,omitempty"`
}

type balanceResponse struct {
	AccountID   int64  `json:"account_id"`
	PeriodID    int64  `json:"period_id"`
	DebitTotal  string `json:"debit_total"`
	CreditTotal string `json:"credit_total"`
}

func toJournalResponse(e JournalEntry) journalResponse {
	resp := journalResponse{
		ID:           e.ID,
		Number:       e.Number,
		PeriodID:     e.PeriodID,
		Date:         e.Date.Format("2006-01-02"),
		SourceModule: e.SourceModule,
		Memo:         e.Memo,
		Status:       string(e.Status),
		PostedBy:     e.PostedBy,
		PostedAt:     e.PostedAt,
		ReversalOfID: e.ReversalOfID,
	}
	if e.SourceID != uuid.Nil {
		resp.SourceID = e.SourceID.String()
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, journalLineResponse{
			LineNo:    line.LineNo,
			AccountID: line.AccountID,
			Debit:     line.Debit.StringFixed(shared.MinorUnitPlaces),
			Credit:    line.Credit.StringFixed(shared.MinorUnitPlaces),
		})
	}
	return resp
}

func toBalanceResponse(b AccountBalance) balanceResponse {
	return balanceResponse{
		AccountID:   b.AccountID,
		PeriodID:    b.PeriodID,
		DebitTotal:  b.DebitTotal.StringFixed(shared.MinorUnitPlaces),
		CreditTotal: b.CreditTotal.StringFixed(shared.MinorUnitPlaces),
	}
}

func (h *Handler) parsePosting(r *http.Request) (PostingInput, error) {
	var req journalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return PostingInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return PostingInput{}, err
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return PostingInput{}, err
	}
	input := PostingInput{
		OrgID:        shared.OrgFromContext(r.Context()),
		Date:         date,
		SourceModule: req.SourceModule,
		Memo:         req.Memo,
		PostedBy:     shared.ActorFromContext(r.Context()),
	}
	if req.SourceID != "" {
		input.SourceID, err = uuid.Parse(req.SourceID)
		if err != nil {
			return PostingInput{}, err
		}
	}
	for _, line := range req.Lines {
		debit, err := parseAmount(line.Debit)
		if err != nil {
			return PostingInput{}, err
		}
		credit, err := parseAmount(line.Credit)
		if err != nil {
			return PostingInput{}, err
		}
		input.Lines = append(input.Lines, PostingLineInput{AccountID: line.AccountID, Debit: debit, Credit: credit})
	}
	return input, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]journalResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toJournalResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.service.Get(r.Context(), shared.OrgFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	input, err := h.parsePosting(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	entry, err := h.service.CreateDraft(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalResponse(entry))
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ctx := r.Context()
	entry, err := h.service.Post(ctx, shared.OrgFromContext(ctx), id, shared.ActorFromContext(ctx))
	if err != nil {
		h.logger.Error("post journal", slog.Int64("entry_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.JournalsPosted.Inc()
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

// PostDirect creates and posts in one request, used for manual adjustments.
func (h *Handler) PostDirect(w http.ResponseWriter, r *http.Request) {
	input, err := h.parsePosting(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	entry, err := h.service.PostDirect(r.Context(), input)
	if err != nil {
		h.logger.Error("post journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.JournalsPosted.Inc()
	}
	httpx.JSON(w, http.StatusCreated, toJournalResponse(entry))
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	ctx := r.Context()
	entry, err := h.service.Void(ctx, VoidInput{
		OrgID:   shared.OrgFromContext(ctx),
		EntryID: id,
		ActorID: shared.ActorFromContext(ctx),
		Reason:  req.Reason,
	})
	if err != nil {
		h.logger.Error("void journal", slog.Int64("entry_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.JournalsVoided.Inc()
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account ID", err.Error())
		return
	}
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period ID", "period_id query parameter required")
		return
	}
	balance, err := h.service.Balance(r.Context(), shared.OrgFromContext(r.Context()), accountID, periodID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period ID", "period_id query parameter required")
		return
	}
	balances, err := h.service.TrialBalance(r.Context(), shared.OrgFromContext(r.Context()), periodID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalanceResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}
