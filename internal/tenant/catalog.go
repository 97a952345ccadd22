package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Item kinds.
const (
	KindFood  = "food"
	KindDrink = "drink"
	KindExtra = "extra"
)

// CatalogItem is one sellable item in a tenant's catalog.
type CatalogItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category,omitempty"`
	Kind      string          `json:"kind"`
	Available bool            `json:"available"`
	Position  int             `json:"position"`
}

// Mapping routes a free-text keyword to a catalog item.
type Mapping struct {
	Keyword string `json:"keyword"`
	ItemID  string `json:"item_id"`
}

// GetItem returns the catalog item with the given id.
func (s *Store) GetItem(ctx context.Context, tenantID, itemID string) (CatalogItem, bool, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return CatalogItem{}, false, fmt.Errorf("get item: %w", err)
	}
	defer cancel()

	var it CatalogItem
	err = p.db.QueryRowContext(ctx, `
		SELECT id, name, price, category, kind, available, position
		FROM catalog_items WHERE id = ?
	`, itemID).Scan(&it.ID, &it.Name, &it.Price, &it.Category, &it.Kind, &it.Available, &it.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogItem{}, false, nil
	}
	if err != nil {
		return CatalogItem{}, false, fmt.Errorf("get item: %w", err)
	}
	return it, true, nil
}

// ListItems returns catalog items ordered by position then name.
// An empty kind returns every kind.
func (s *Store) ListItems(ctx context.Context, tenantID, kind string) ([]CatalogItem, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer cancel()

	query := `SELECT id, name, price, category, kind, available, position FROM catalog_items`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY position, name`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []CatalogItem
	for rows.Next() {
		var it CatalogItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Category, &it.Kind, &it.Available, &it.Position); err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpsertItem inserts or replaces a catalog item.
func (s *Store) UpsertItem(ctx context.Context, tenantID string, it CatalogItem) error {
	if it.Kind == "" {
		it.Kind = KindFood
	}

	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	defer cancel()

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, name, price, category, kind, available, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			kind = excluded.kind,
			available = excluded.available,
			position = excluded.position
	`, it.ID, it.Name, it.Price.StringFixed(2), it.Category, it.Kind, it.Available, it.Position)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// ListMappings returns every keyword mapping.
func (s *Store) ListMappings(ctx context.Context, tenantID string) ([]Mapping, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT keyword, item_id FROM catalog_mappings ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.Keyword, &m.ItemID); err != nil {
			return nil, fmt.Errorf("list mappings: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}

// PutMapping stores keyword → itemID, replacing any previous target.
func (s *Store) PutMapping(ctx context.Context, tenantID string, m Mapping) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("put mapping: %w", err)
	}
	defer cancel()

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO catalog_mappings (keyword, item_id) VALUES (?, ?)
		ON CONFLICT(keyword) DO UPDATE SET item_id = excluded.item_id
	`, m.Keyword, m.ItemID)
	if err != nil {
		return fmt.Errorf("put mapping: %w", err)
	}
	return nil
}

// GetSetting returns a tenant-scoped setting value.
func (s *Store) GetSetting(ctx context.Context, tenantID, key string) (string, bool, error) {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	defer cancel()

	var v string
	err = p.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return v, true, nil
}

// PutSetting stores a tenant-scoped setting value.
func (s *Store) PutSetting(ctx context.Context, tenantID, key, value string) error {
	p, ctx, cancel, err := s.bounded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	defer cancel()

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}
