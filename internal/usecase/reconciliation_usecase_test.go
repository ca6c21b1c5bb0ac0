package usecase_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
	"github.com/iho/saleledger/internal/usecase/mocks"
)

func salesSeq(sales ...*domain.Sale) iter.Seq2[*domain.Sale, error] {
	return func(yield func(*domain.Sale, error) bool) {
		for _, s := range sales {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func TestCheckConsistency_CleanLedger(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "P1", "10", 5)
	ctx := context.Background()

	sale, err := h.sale.CommitSale(ctx, buy(line("P1", 2)))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, err = h.sale.ReturnSale(ctx, usecase.ReturnSaleInput{
		OriginalSaleID: sale.ID,
		Actor:          "u1",
		Lines:          []usecase.LineRequest{line("P1", 1)},
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}

	uc := usecase.NewReconciliationUseCase(h.products, h.sales, zerolog.Nop())

	report, err := uc.CheckConsistency(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Consistent {
		t.Fatalf("expected consistent ledger, got %+v", report.Discrepancies)
	}

	if report.SalesChecked != 2 || report.ProductsChecked != 1 {
		t.Errorf("expected 2 sales and 1 product checked, got %d and %d", report.SalesChecked, report.ProductsChecked)
	}
}

func TestCheckConsistency_FlagsBrokenRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	broken := &domain.Sale{
		ID:            "s1",
		Kind:          domain.SaleKindSale,
		PaymentMethod: domain.PaymentMethodCash,
		Actor:         "u1",
		Lines: []domain.SaleLine{{
			LineNo: 1, ProductID: "P1", Quantity: 2, UnitPrice: dec("10"), Subtotal: dec("20"),
		}},
		Total: dec("25"),
	}

	original := "s2"
	good := &domain.Sale{
		ID:            "s2",
		Kind:          domain.SaleKindSale,
		PaymentMethod: domain.PaymentMethodCash,
		Actor:         "u1",
		Lines: []domain.SaleLine{{
			LineNo: 1, ProductID: "P1", Quantity: 1, UnitPrice: dec("10"), Subtotal: dec("10"),
		}},
		Total: dec("10"),
	}
	overReturn := &domain.Sale{
		ID:             "r1",
		Kind:           domain.SaleKindReturn,
		OriginalSaleID: &original,
		PaymentMethod:  domain.PaymentMethodCash,
		Actor:          "u1",
		Lines: []domain.SaleLine{{
			LineNo: 1, ProductID: "P1", Quantity: -3, UnitPrice: dec("10"), Subtotal: dec("-30"),
		}},
		Total: dec("-30"),
	}

	saleRepo := mocks.NewMockSaleRepository(ctrl)
	saleRepo.EXPECT().List(gomock.Any(), domain.AllTime()).Return(salesSeq(broken, good, overReturn))

	productRepo := mocks.NewMockProductRepository(ctrl)
	productRepo.EXPECT().List(gomock.Any(), 1000, 0).Return([]*domain.Product{
		{ID: "P1", Quantity: 3},
		{ID: "P2", Quantity: -1},
	}, nil)

	uc := usecase.NewReconciliationUseCase(productRepo, saleRepo, zerolog.Nop())

	report, err := uc.CheckConsistency(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Consistent {
		t.Fatal("expected inconsistencies to be reported")
	}

	if len(report.Discrepancies) != 3 {
		t.Fatalf("expected 3 discrepancies, got %+v", report.Discrepancies)
	}

	if report.Discrepancies[0].SubjectID != "s1" || report.Discrepancies[2].SubjectID != "P2" {
		t.Errorf("unexpected discrepancies: %+v", report.Discrepancies)
	}
}

func TestCheckConsistency_PropagatesReadErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	boom := errors.New("connection reset")

	saleRepo := mocks.NewMockSaleRepository(ctrl)
	saleRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(iter.Seq2[*domain.Sale, error](func(yield func(*domain.Sale, error) bool) {
		yield(nil, boom)
	}))

	uc := usecase.NewReconciliationUseCase(mocks.NewMockProductRepository(ctrl), saleRepo, zerolog.Nop())

	if _, err := uc.CheckConsistency(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
