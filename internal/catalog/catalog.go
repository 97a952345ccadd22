package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/comanda/internal/tenant"
)

// Source is the tenant storage the catalog reads from.
// *tenant.Store satisfies it.
type Source interface {
	GetItem(ctx context.Context, tenantID, itemID string) (tenant.CatalogItem, bool, error)
	ListItems(ctx context.Context, tenantID, kind string) ([]tenant.CatalogItem, error)
	ListMappings(ctx context.Context, tenantID string) ([]tenant.Mapping, error)
}

// Catalog resolves item references against a tenant's menu.
type Catalog struct {
	src Source
}

// New creates a Catalog backed by src.
func New(src Source) *Catalog {
	return &Catalog{src: src}
}

// GetItem returns the item with the given id.
func (c *Catalog) GetItem(ctx context.Context, tenantID, itemID string) (tenant.CatalogItem, bool, error) {
	return c.src.GetItem(ctx, tenantID, itemID)
}

// Menu returns available items of every kind in display order.
func (c *Catalog) Menu(ctx context.Context, tenantID string) ([]tenant.CatalogItem, error) {
	return c.available(ctx, tenantID, "")
}

// Drinks returns available drinks in display order. The conversation shows
// them as a 1-based numbered list.
func (c *Catalog) Drinks(ctx context.Context, tenantID string) ([]tenant.CatalogItem, error) {
	return c.available(ctx, tenantID, tenant.KindDrink)
}

// ResolveItemID maps free text to an item id.
//
// Resolution order:
//  1. a keyword mapping equal to the text
//  2. an item whose name equals the text
//  3. the longest keyword mapping contained in the text as whole words
//  4. the longest item name contained in the text as whole words
//
// Unavailable items never match.
func (c *Catalog) ResolveItemID(ctx context.Context, tenantID, text string) (string, bool, error) {
	q := Fold(text)
	if q == "" {
		return "", false, nil
	}

	items, err := c.available(ctx, tenantID, "")
	if err != nil {
		return "", false, err
	}
	if len(items) == 0 {
		return "", false, nil
	}
	byID := make(map[string]bool, len(items))
	for _, it := range items {
		byID[it.ID] = true
	}

	mappings, err := c.src.ListMappings(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("resolve item: %w", err)
	}

	for _, m := range mappings {
		if byID[m.ItemID] && Fold(m.Keyword) == q {
			return m.ItemID, true, nil
		}
	}
	for _, it := range items {
		if Fold(it.Name) == q {
			return it.ID, true, nil
		}
	}

	var bestID string
	bestLen := 0
	for _, m := range mappings {
		kw := Fold(m.Keyword)
		if byID[m.ItemID] && len(kw) > bestLen && containsWords(q, kw) {
			bestID, bestLen = m.ItemID, len(kw)
		}
	}
	if bestID != "" {
		return bestID, true, nil
	}

	for _, it := range items {
		name := Fold(it.Name)
		if len(name) > bestLen && containsWords(q, name) {
			bestID, bestLen = it.ID, len(name)
		}
	}
	return bestID, bestID != "", nil
}

func (c *Catalog) available(ctx context.Context, tenantID, kind string) ([]tenant.CatalogItem, error) {
	all, err := c.src.ListItems(ctx, tenantID, kind)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	out := all[:0:0]
	for _, it := range all {
		if it.Available {
			out = append(out, it)
		}
	}
	return out, nil
}
