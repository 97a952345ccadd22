package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)

// createTestStore creates a store rooted in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), WithNow(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOrder creates an order with one item priced 10.00.
func createTestOrder(id, customer string) OrderRecord {
	price := decimal.RequireFromString("10.00")
	return OrderRecord{
		ID:          id,
		CustomerKey: customer,
		CreatedAt:   fixedNow,
		Items: []OrderItem{
			{ItemID: "x-burger", Name: "X-Burger", Quantity: 1, UnitPrice: price},
		},
		ItemsTotal:    price,
		Delivery:      true,
		DeliveryFee:   decimal.RequireFromString("7.00"),
		Total:         decimal.RequireFromString("17.00"),
		Address:       "Rua A, 10",
		PaymentMethod: "PIX",
		Status:        StatusFinalized,
	}
}

func testContext() context.Context {
	return context.Background()
}
