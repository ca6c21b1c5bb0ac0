package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saleledger/internal/adapter/http/dto"
	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// CatalogService defines catalog use case methods needed by the handler.
type CatalogService interface {
	CreateProduct(ctx context.Context, input usecase.CreateProductInput) (*domain.Product, error)
	BatchCreateProducts(ctx context.Context, inputs []usecase.CreateProductInput) (*usecase.BatchCreateResult, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, input usecase.ListProductsInput) ([]*domain.Product, error)
	UpdatePrice(ctx context.Context, input usecase.UpdatePriceInput) (*domain.Product, error)
	AdjustStock(ctx context.Context, input usecase.AdjustStockInput) (*domain.Product, error)
}

// ProductHandler handles catalog HTTP requests.
type ProductHandler struct {
	catalogUC CatalogService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(catalogUC CatalogService) *ProductHandler {
	return &ProductHandler{catalogUC: catalogUC}
}

// Create adds a product to the catalog.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	product, err := h.catalogUC.CreateProduct(r.Context(), req.ToUseCaseInput(actor))
	if err != nil {
		writeDomainError(w, r, "failed to create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ProductFromDomain(product))
}

// BatchCreate imports several products. Rows that fail are listed in the
// response; the request only fails as a whole when the batch itself is bad.
func (h *ProductHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchCreateProductsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	result, err := h.catalogUC.BatchCreateProducts(r.Context(), req.ToUseCaseInput(actor))
	if err != nil {
		writeDomainError(w, r, "failed to import products", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BatchCreateFromUseCase(result))
}

// Get retrieves a product by ID.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalogUC.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get product", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProductFromDomain(product))
}

// List lists products ordered by ID.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalogUC.ListProducts(r.Context(), usecase.ListProductsInput{
		Limit:  parseIntQuery(r, "limit", 100),
		Offset: parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list products", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProductsFromDomain(products))
}

// UpdatePrice changes the catalog price. Committed sales keep their price.
func (h *ProductHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	product, err := h.catalogUC.UpdatePrice(r.Context(), usecase.UpdatePriceInput{
		ProductID: chi.URLParam(r, "id"),
		Actor:     actor,
		Price:     req.Price,
	})
	if err != nil {
		writeDomainError(w, r, "failed to update price", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProductFromDomain(product))
}

// AdjustStock restocks or writes off inventory.
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	product, err := h.catalogUC.AdjustStock(r.Context(), usecase.AdjustStockInput{
		ProductID: chi.URLParam(r, "id"),
		Actor:     actor,
		Reason:    req.Reason,
		Delta:     req.Delta,
	})
	if err != nil {
		// A requested write-off larger than the shelf is the caller's
		// conflict here, not an engine fault.
		if errors.Is(err, domain.ErrStockUnderflow) {
			writeError(w, http.StatusConflict, "failed to adjust stock", err.Error())
			return
		}

		writeDomainError(w, r, "failed to adjust stock", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProductFromDomain(product))
}
