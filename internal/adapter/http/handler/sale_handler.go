package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saleledger/internal/adapter/http/dto"
	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// SaleService defines sale use case methods needed by the handler.
type SaleService interface {
	CommitSale(ctx context.Context, input usecase.CommitSaleInput) (*domain.Sale, error)
	ReturnSale(ctx context.Context, input usecase.ReturnSaleInput) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, input usecase.ListSalesInput) ([]*domain.Sale, error)
}

// SaleHandler handles sale-related HTTP requests.
type SaleHandler struct {
	saleUC SaleService
	loc    *time.Location
}

// NewSaleHandler creates a new SaleHandler. Calendar dates in list queries
// are read in loc.
func NewSaleHandler(saleUC SaleService, loc *time.Location) *SaleHandler {
	if loc == nil {
		loc = time.UTC
	}

	return &SaleHandler{saleUC: saleUC, loc: loc}
}

// Commit commits a sale.
func (h *SaleHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req dto.CommitSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	input, err := req.ToUseCaseInput(actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment method", err.Error())
		return
	}

	sale, err := h.saleUC.CommitSale(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, "failed to commit sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SaleFromDomain(sale))
}

// Return records a return against an earlier sale.
func (h *SaleHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req dto.ReturnSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	sale, err := h.saleUC.ReturnSale(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id"), actor))
	if err != nil {
		writeDomainError(w, r, "failed to return sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SaleFromDomain(sale))
}

// Get retrieves a sale by ID.
func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing sale ID", "")
		return
	}

	sale, err := h.saleUC.GetSale(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "failed to get sale", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SaleFromDomain(sale))
}

// List lists sales committed in [from, to).
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	rng, err := dto.ParseTimeRange(r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time range", err.Error())
		return
	}

	sales, err := h.saleUC.ListSales(r.Context(), usecase.ListSalesInput{
		Range: rng,
		Limit: parseIntQuery(r, "limit", 100),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list sales", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SalesFromDomain(sales))
}
