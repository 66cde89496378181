package integration

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type Handler struct {
	mappings MappingRepository
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, mappings MappingRepository) *Handler {
	return &Handler{mappings: mappings, logger: logger, validate: validator.New()}
}

type upsertMappingRequest struct {
	Module    string `json:"module" validate:"required,oneof=ap ar bank"`
	Key       string `json:"key" validate:"required,max=64"`
	AccountID int64  `json:"account_id" validate:"required"`
}

type mappingResponse struct {
	ID        int64  `json:"id"`
	Module    string `json:"module"`
	Key       string `json:"key"`
	AccountID int64  `json:"account_id"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.mappings.List(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list mappings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]mappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, mappingResponse{ID: m.ID, Module: m.Module, Key: m.Key, AccountID: m.AccountID})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.mappings.Upsert(r.Context(), Mapping{
		OrgID:     shared.OrgFromContext(r.Context()),
		Module:    req.Module,
		Key:       req.Key,
		AccountID: req.AccountID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mappingResponse{ID: m.ID, Module: m.Module, Key: m.Key, AccountID: m.AccountID})
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/mappings", h.List)
	r.Put("/mappings", h.Upsert)
}
