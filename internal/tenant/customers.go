package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a tenant's durable record of one contact.
type Customer struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	Lat        *float64        `json:"lat,omitempty"`
	Lng        *float64        `json:"lng,omitempty"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	OrderCount int             `json:"order_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ReadCustomer returns the customer stored under key.
// Returns found=false when no record exists.
func (s *Store) ReadCustomer(ctx context.Context, tenantID, key string) (Customer, bool, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return Customer{}, false, fmt.Errorf("read customer: %w", err)
	}
	defer cancel()
	return p.readCustomer(ctx, key)
}

// WriteCustomer inserts or replaces the customer's profile fields.
// Spend counters are left untouched on existing records.
func (s *Store) WriteCustomer(ctx context.Context, tenantID string, c Customer) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("write customer: %w", err)
	}
	defer cancel()

	now := formatTime(p.now())
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO customers (key, name, address, latitude, longitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at
	`, c.Key, c.Name, c.Address, nullFloat(c.Lat), nullFloat(c.Lng), now, now)
	if err != nil {
		return fmt.Errorf("write customer: %w", err)
	}
	return nil
}

// SetCustomerName records the display name, creating the customer if needed.
func (s *Store) SetCustomerName(ctx context.Context, tenantID, key, name string) error {
	return s.upsertCustomerField(ctx, tenantID, key, "name", name)
}

// SetCustomerAddress records the delivery address and optional coordinates.
func (s *Store) SetCustomerAddress(ctx context.Context, tenantID, key, address string, lat, lng *float64) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("set customer address: %w", err)
	}
	defer cancel()

	now := formatTime(p.now())
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO customers (key, address, latitude, longitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at
	`, key, address, nullFloat(lat), nullFloat(lng), now, now)
	if err != nil {
		return fmt.Errorf("set customer address: %w", err)
	}
	return nil
}

// ClearCustomerAddress removes a stored address that could not be used.
func (s *Store) ClearCustomerAddress(ctx context.Context, tenantID, key string) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("clear customer address: %w", err)
	}
	defer cancel()

	_, err = p.db.ExecContext(ctx, `
		UPDATE customers SET address = '', latitude = NULL, longitude = NULL, updated_at = ?
		WHERE key = ?
	`, formatTime(p.now()), key)
	if err != nil {
		return fmt.Errorf("clear customer address: %w", err)
	}
	return nil
}

// AddSpend adds amount to the customer's total and bumps the order count.
func (s *Store) AddSpend(ctx context.Context, tenantID, key string, amount decimal.Decimal) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("add spend: %w", err)
	}
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add spend: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(p.now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO customers (key, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, now, now); err != nil {
		return fmt.Errorf("add spend: %w", err)
	}

	var current decimal.Decimal
	if err := tx.QueryRowContext(ctx,
		`SELECT total_spent FROM customers WHERE key = ?`, key,
	).Scan(&current); err != nil {
		return fmt.Errorf("add spend: read total: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET total_spent = ?, order_count = order_count + 1, updated_at = ?
		WHERE key = ?
	`, current.Add(amount).StringFixed(2), now, key); err != nil {
		return fmt.Errorf("add spend: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add spend: commit: %w", err)
	}
	return nil
}

func (s *Store) upsertCustomerField(ctx context.Context, tenantID, key, field, value string) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("set customer %s: %w", field, err)
	}
	defer cancel()

	now := formatTime(p.now())
	query := fmt.Sprintf(`
		INSERT INTO customers (key, %[1]s, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at
	`, field)
	if _, err := p.db.ExecContext(ctx, query, key, value, now, now); err != nil {
		return fmt.Errorf("set customer %s: %w", field, err)
	}
	return nil
}

func (p *Partition) readCustomer(ctx context.Context, key string) (Customer, bool, error) {
	var (
		c                    Customer
		lat, lng             sql.NullFloat64
		createdAt, updatedAt string
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT key, name, address, latitude, longitude, total_spent, order_count, created_at, updated_at
		FROM customers WHERE key = ?
	`, key).Scan(&c.Key, &c.Name, &c.Address, &lat, &lng, &c.TotalSpent, &c.OrderCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, false, nil
	}
	if err != nil {
		return Customer{}, false, fmt.Errorf("read customer: %w", err)
	}
	c.Lat = floatPtr(lat)
	c.Lng = floatPtr(lng)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, true, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
