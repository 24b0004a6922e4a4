package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/memory"
)

var baseTime = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func newOrder(t *testing.T, id, customerID string) domain.Order {
	t.Helper()
	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:              id,
		CustomerID:      customerID,
		ProductID:       "product-1",
		QuantityOrdered: 10,
		SellingPrice:    decimal.NewFromInt(50),
		DeliveryDate:    baseTime,
		PaymentTerms:    domain.PaymentTerms{CreditPeriodDays: 30},
	}, baseTime)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder(t, "order-1", "customer-1")

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_GetReturnsCopy(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder(t, "order-1", "customer-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := stored.AddPayment(domain.Payment{Amount: decimal.NewFromInt(1), Date: baseTime, Mode: domain.PaymentModeCash}); err != nil {
		t.Fatalf("add payment failed: %v", err)
	}

	again, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(again.Payments) != 0 {
		t.Fatal("mutating a loaded order must not affect the repository")
	}
}

func TestOrderRepository_ListByCustomer(t *testing.T) {
	repo := memory.NewOrderRepository()
	first := newOrder(t, "order-1", "customer-1")
	second := newOrder(t, "order-2", "customer-1")
	second.CreatedAt = baseTime.Add(time.Minute)
	other := newOrder(t, "order-3", "customer-2")

	for _, o := range []domain.Order{first, second, other} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	orders, err := repo.ListByCustomer("customer-1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != "order-2" {
		t.Fatalf("expected newest order first, got %s", orders[0].ID)
	}

	limited, err := repo.ListByCustomer("", 1)
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestOrderRepository_ListOverdueCandidates(t *testing.T) {
	repo := memory.NewOrderRepository()

	due := newOrder(t, "order-due", "customer-1")
	notDue := newOrder(t, "order-not-due", "customer-1")
	notDue.DeliveryDate = baseTime.AddDate(0, 0, 20)
	noTerms := newOrder(t, "order-no-terms", "customer-1")
	noTerms.PaymentTerms.CreditPeriodDays = 0
	paid := newOrder(t, "order-paid", "customer-1")
	paid.FinancialStatus = domain.FinancialStatusPartiallyPaid

	for _, o := range []domain.Order{due, notDue, noTerms, paid} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	candidates, err := repo.ListOverdueCandidates(baseTime.AddDate(0, 0, 31), 10)
	if err != nil {
		t.Fatalf("list overdue failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "order-due" {
		t.Fatalf("expected only order-due, got %+v", candidates)
	}
}

func TestOrderRepository_Save(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder(t, "order-1", "customer-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	stored.QuantityDelivered = 6
	if err := repo.Save(stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if updated.QuantityDelivered != 6 {
		t.Fatalf("expected delivered 6, got %d", updated.QuantityDelivered)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder(t, "order-1", "customer-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Version = 42
	if err := repo.Save(order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict error, got %v", err)
	}

	missing := newOrder(t, "order-missing", "customer-1")
	if err := repo.Save(missing); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
