package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/tenant"
)

//go:embed seed.cue
var seedSchema string

// Seed is a parsed catalog seed file.
type Seed struct {
	Items    []tenant.CatalogItem
	Mappings []tenant.Mapping
}

type seedItem struct {
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Category  string   `json:"category"`
	Kind      string   `json:"kind"`
	Available bool     `json:"available"`
	Position  *int     `json:"position,omitempty"`
	Keywords  []string `json:"keywords"`
}

// LoadSeedFile reads and validates a CUE catalog seed.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(path, data)
}

// ParseSeed validates src against the seed schema and converts it.
//
// A seed looks like:
//
//	item: "x-burger": {
//		name:     "X-Burger"
//		price:    25.90
//		category: "Lanches"
//		keywords: ["xburguer", "x burger"]
//	}
//	item: "coca": {name: "Coca-Cola 350ml", price: 6, kind: "drink"}
func ParseSeed(filename string, src []byte) (*Seed, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(seedSchema, cue.Filename("seed.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile seed schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("compile seed: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Seed")).Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate seed: %w", err)
	}

	seed := &Seed{}
	itemsVal := value.LookupPath(cue.ParsePath("item"))
	if !itemsVal.Exists() {
		return seed, nil
	}

	iter, err := itemsVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	for pos := 0; iter.Next(); pos++ {
		id := iter.Label()

		var si seedItem
		if err := iter.Value().Decode(&si); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", id, err)
		}

		position := pos
		if si.Position != nil {
			position = *si.Position
		}
		seed.Items = append(seed.Items, tenant.CatalogItem{
			ID:        id,
			Name:      si.Name,
			Price:     decimal.NewFromFloat(si.Price).Round(2),
			Category:  si.Category,
			Kind:      si.Kind,
			Available: si.Available,
			Position:  position,
		})
		for _, kw := range si.Keywords {
			if Fold(kw) == "" {
				continue
			}
			seed.Mappings = append(seed.Mappings, tenant.Mapping{Keyword: kw, ItemID: id})
		}
	}

	return seed, nil
}

// Writer is the storage the seed is applied to. *tenant.Store satisfies it.
type Writer interface {
	UpsertItem(ctx context.Context, tenantID string, it tenant.CatalogItem) error
	PutMapping(ctx context.Context, tenantID string, m tenant.Mapping) error
}

// Apply upserts every item and mapping into the tenant's catalog.
func (s *Seed) Apply(ctx context.Context, w Writer, tenantID string) error {
	for _, it := range s.Items {
		if err := w.UpsertItem(ctx, tenantID, it); err != nil {
			return fmt.Errorf("apply seed item %s: %w", it.ID, err)
		}
	}
	for _, m := range s.Mappings {
		if err := w.PutMapping(ctx, tenantID, m); err != nil {
			return fmt.Errorf("apply seed mapping %q: %w", m.Keyword, err)
		}
	}
	return nil
}
