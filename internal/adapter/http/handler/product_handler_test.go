package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

type catalogServiceStub struct {
	createFn func(ctx context.Context, input usecase.CreateProductInput) (*domain.Product, error)
	batchFn  func(ctx context.Context, inputs []usecase.CreateProductInput) (*usecase.BatchCreateResult, error)
	getFn    func(ctx context.Context, id string) (*domain.Product, error)
	listFn   func(ctx context.Context, input usecase.ListProductsInput) ([]*domain.Product, error)
	priceFn  func(ctx context.Context, input usecase.UpdatePriceInput) (*domain.Product, error)
	adjustFn func(ctx context.Context, input usecase.AdjustStockInput) (*domain.Product, error)
}

func (s *catalogServiceStub) CreateProduct(ctx context.Context, input usecase.CreateProductInput) (*domain.Product, error) {
	return s.createFn(ctx, input)
}

func (s *catalogServiceStub) BatchCreateProducts(ctx context.Context, inputs []usecase.CreateProductInput) (*usecase.BatchCreateResult, error) {
	return s.batchFn(ctx, inputs)
}

func (s *catalogServiceStub) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.getFn(ctx, id)
}

func (s *catalogServiceStub) ListProducts(ctx context.Context, input usecase.ListProductsInput) ([]*domain.Product, error) {
	return s.listFn(ctx, input)
}

func (s *catalogServiceStub) UpdatePrice(ctx context.Context, input usecase.UpdatePriceInput) (*domain.Product, error) {
	return s.priceFn(ctx, input)
}

func (s *catalogServiceStub) AdjustStock(ctx context.Context, input usecase.AdjustStockInput) (*domain.Product, error) {
	return s.adjustFn(ctx, input)
}

func TestProductHandler_Create(t *testing.T) {
	h := NewProductHandler(&catalogServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateProductInput) (*domain.Product, error) {
			if input.ID == "dup" {
				return nil, fmt.Errorf("%w: dup", domain.ErrProductExists)
			}
			return &domain.Product{ID: input.ID, Name: input.Name, Price: input.Price, Quantity: input.Quantity}, nil
		},
	})

	rr := httptest.NewRecorder()
	h.Create(rr, jsonRequest(t, http.MethodPost, "/api/v1/products", map[string]any{
		"id": "P1", "name": "Pen", "price": "1.25", "quantity": 10,
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.Create(rr, jsonRequest(t, http.MethodPost, "/api/v1/products", map[string]any{
		"id": "dup", "name": "Pen", "price": "1",
	}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rr.Code)
	}
}

func TestProductHandler_BatchCreate(t *testing.T) {
	var got []usecase.CreateProductInput
	h := NewProductHandler(&catalogServiceStub{
		batchFn: func(ctx context.Context, inputs []usecase.CreateProductInput) (*usecase.BatchCreateResult, error) {
			if len(inputs) == 0 {
				return nil, fmt.Errorf("%w: no products to import", domain.ErrInvalidProduct)
			}
			got = inputs
			return &usecase.BatchCreateResult{
				Created: []*domain.Product{{ID: "A", Name: "Pen"}},
				Failed:  []usecase.BatchRowError{{Row: 2, ProductID: "B", Err: fmt.Errorf("%w: name is required", domain.ErrInvalidProduct)}},
			}, nil
		},
	})

	rr := httptest.NewRecorder()
	h.BatchCreate(rr, jsonRequest(t, http.MethodPost, "/api/v1/products/batch", map[string]any{
		"products": []map[string]any{
			{"id": "A", "name": "Pen", "price": "1"},
			{"id": "B", "price": "2"},
		},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(got) != 2 || got[1].ID != "B" {
		t.Fatalf("unexpected inputs: %+v", got)
	}

	var body struct {
		SuccessCount int `json:"success_count"`
		Errors       []struct {
			Row   int    `json:"row"`
			Error string `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.SuccessCount != 1 || len(body.Errors) != 1 || body.Errors[0].Row != 2 {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.BatchCreate(rr, jsonRequest(t, http.MethodPost, "/api/v1/products/batch", map[string]any{"products": []any{}}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty batch, got %d", rr.Code)
	}
}

func TestProductHandler_GetAndList(t *testing.T) {
	var listed usecase.ListProductsInput
	h := NewProductHandler(&catalogServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Product, error) {
			return nil, &domain.ProductNotFoundError{ProductIDs: []string{id}}
		},
		listFn: func(ctx context.Context, input usecase.ListProductsInput) ([]*domain.Product, error) {
			listed = input
			return []*domain.Product{{ID: "a"}}, nil
		},
	})

	rr := httptest.NewRecorder()
	h.Get(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/products/zz", nil), "id", "zz"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=10&offset=20", nil))
	if rr.Code != http.StatusOK || listed.Limit != 10 || listed.Offset != 20 {
		t.Fatalf("unexpected list: %d %+v", rr.Code, listed)
	}
}

func TestProductHandler_UpdatePrice(t *testing.T) {
	var captured usecase.UpdatePriceInput
	h := NewProductHandler(&catalogServiceStub{
		priceFn: func(ctx context.Context, input usecase.UpdatePriceInput) (*domain.Product, error) {
			captured = input
			return &domain.Product{ID: input.ProductID, Price: input.Price}, nil
		},
	})

	req := withURLParam(jsonRequest(t, http.MethodPut, "/api/v1/products/P1/price", map[string]any{"price": "12.00"}), "id", "P1")
	req = req.WithContext(domain.WithActor(req.Context(), "admin"))
	rr := httptest.NewRecorder()
	h.UpdatePrice(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if captured.ProductID != "P1" || captured.Actor != "admin" || !captured.Price.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("unexpected input: %+v", captured)
	}
}

func TestProductHandler_AdjustStock(t *testing.T) {
	h := NewProductHandler(&catalogServiceStub{
		adjustFn: func(ctx context.Context, input usecase.AdjustStockInput) (*domain.Product, error) {
			if input.Delta < -5 {
				return nil, fmt.Errorf("%w: product P1 has 5", domain.ErrStockUnderflow)
			}
			return &domain.Product{ID: input.ProductID, Quantity: 5 + input.Delta}, nil
		},
	})

	rr := httptest.NewRecorder()
	h.AdjustStock(rr, withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/products/P1/stock",
		map[string]any{"delta": 3, "reason": "restock"}), "id", "P1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.AdjustStock(rr, withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/products/P1/stock",
		map[string]any{"delta": -9, "reason": "shrinkage"}), "id", "P1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for write-off beyond stock, got %d", rr.Code)
	}
}
