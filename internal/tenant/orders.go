package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle label of a persisted order.
type OrderStatus string

const (
	StatusFinalized  OrderStatus = "finalized"
	StatusDispatched OrderStatus = "dispatched-for-delivery"
)

var statusRank = map[OrderStatus]int{
	StatusFinalized:  1,
	StatusDispatched: 2,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// After reports whether s is a later lifecycle stage than other.
func (s OrderStatus) After(other OrderStatus) bool {
	return statusRank[s] > statusRank[other]
}

// ErrOrderNotFound is returned when an order id does not exist in the partition.
var ErrOrderNotFound = errors.New("order not found")

// OrderItem is a cart line frozen at order time.
type OrderItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Note      string          `json:"note,omitempty"`
	Category  string          `json:"category,omitempty"`
}

// Subtotal returns UnitPrice × Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderRecord is the durable snapshot of a completed order.
// Written once; afterwards only Status changes.
type OrderRecord struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	CustomerKey   string          `json:"customer_key"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []OrderItem     `json:"items"`
	ItemsTotal    decimal.Decimal `json:"items_total"`
	Delivery      bool            `json:"delivery"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Total         decimal.Decimal `json:"total"`
	Address       string          `json:"address,omitempty"`
	Lat           *float64        `json:"lat,omitempty"`
	Lng           *float64        `json:"lng,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	ChangeFor     decimal.Decimal `json:"change_for"`
	Note          string          `json:"note,omitempty"`
	Status        OrderStatus     `json:"status"`
}

// WriteOrder inserts the order record. Uses ON CONFLICT(id) DO NOTHING so a
// repeated write of the same id is a no-op. Returns inserted=false when the
// id already existed.
func (s *Store) WriteOrder(ctx context.Context, tenantID string, o OrderRecord) (string, bool, error) {
	if o.ID == "" {
		return "", false, fmt.Errorf("write order: missing id")
	}
	if !o.Status.Valid() {
		return "", false, fmt.Errorf("write order: invalid status %q", o.Status)
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return "", false, fmt.Errorf("write order: marshal items: %w", err)
	}

	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("write order: %w", err)
	}
	defer cancel()

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now()
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, customer_key, customer_name, created_at, items, items_total, delivery, delivery_fee,
		 total, address, latitude, longitude, payment_method, change_for, note, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		o.ID,
		o.CustomerKey,
		o.CustomerName,
		formatTime(createdAt),
		string(itemsJSON),
		o.ItemsTotal.StringFixed(2),
		o.Delivery,
		o.DeliveryFee.StringFixed(2),
		o.Total.StringFixed(2),
		o.Address,
		nullFloat(o.Lat),
		nullFloat(o.Lng),
		o.PaymentMethod,
		o.ChangeFor.StringFixed(2),
		o.Note,
		string(o.Status),
		formatTime(createdAt),
	)
	if err != nil {
		return "", false, fmt.Errorf("write order: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("write order: rows affected: %w", err)
	}
	return o.ID, n > 0, nil
}

// ReadOrder returns the order with the given id, or ErrOrderNotFound.
func (s *Store) ReadOrder(ctx context.Context, tenantID, orderID string) (OrderRecord, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("read order: %w", err)
	}
	defer cancel()

	row := p.db.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, orderID)
	o, err := scanOrder(row, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderRecord{}, ErrOrderNotFound
	}
	if err != nil {
		return OrderRecord{}, fmt.Errorf("read order: %w", err)
	}
	return o, nil
}

// UpdateOrderStatus changes the status of an existing order.
func (s *Store) UpdateOrderStatus(ctx context.Context, tenantID, orderID string, status OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update order status: invalid status %q", status)
	}

	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	defer cancel()

	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(p.now()), orderID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: rows affected: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrders returns orders newest first. An empty status returns all orders.
func (s *Store) ListOrders(ctx context.Context, tenantID string, status OrderStatus) ([]OrderRecord, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cancel()

	var rows *sql.Rows
	if status == "" {
		rows, err = p.db.QueryContext(ctx, selectOrder+` ORDER BY created_at DESC, id DESC`)
	} else {
		rows, err = p.db.QueryContext(ctx, selectOrder+` WHERE status = ? ORDER BY created_at DESC, id DESC`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		o, err := scanOrder(rows, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

const selectOrder = `
	SELECT id, customer_key, customer_name, created_at, items, items_total, delivery, delivery_fee,
	       total, address, latitude, longitude, payment_method, change_for, note, status
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, tenantID string) (OrderRecord, error) {
	var (
		o         OrderRecord
		createdAt string
		itemsJSON string
		lat, lng  sql.NullFloat64
		status    string
	)
	err := row.Scan(
		&o.ID,
		&o.CustomerKey,
		&o.CustomerName,
		&createdAt,
		&itemsJSON,
		&o.ItemsTotal,
		&o.Delivery,
		&o.DeliveryFee,
		&o.Total,
		&o.Address,
		&lat,
		&lng,
		&o.PaymentMethod,
		&o.ChangeFor,
		&o.Note,
		&status,
	)
	if err != nil {
		return OrderRecord{}, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
		return OrderRecord{}, fmt.Errorf("unmarshal items: %w", err)
	}
	o.TenantID = tenantID
	o.CreatedAt = parseTime(createdAt)
	o.Lat = floatPtr(lat)
	o.Lng = floatPtr(lng)
	o.Status = OrderStatus(status)
	return o, nil
}
