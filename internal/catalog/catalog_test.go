package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/comanda/internal/tenant"
)

// seededCatalog returns a catalog for tenant "brutus" loaded from testdata.
func seededCatalog(t *testing.T) (*Catalog, *tenant.Store) {
	t.Helper()
	st, err := tenant.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	seed, err := LoadSeedFile(filepath.Join("testdata", "brutus.cue"))
	require.NoError(t, err)
	require.NoError(t, seed.Apply(context.Background(), st, "brutus"))

	return New(st), st
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"  Cartão de CRÉDITO! ": "cartao de credito",
		"Olá":                   "ola",
		"X-Burger":              "x burger",
		"bom   dia":             "bom dia",
		"":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fold(in), "input %q", in)
	}
}

func TestResolveItemID(t *testing.T) {
	c, _ := seededCatalog(t)
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"x-burger", "x-burger"},
		{"X BURGER", "x-burger"},
		{"xburguer", "x-burger"},
		{"quero um x salada por favor", "x-salada"},
		{"me ve uma coca", "coca"},
		{"guarana antarctica 350ml", "guarana"},
		{"refri", "coca"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			id, ok, err := c.ResolveItemID(ctx, "brutus", tt.text)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestResolveItemID_NoMatch(t *testing.T) {
	c, _ := seededCatalog(t)
	ctx := context.Background()

	for _, text := range []string{"", "pizza", "bacon extra", "xbur"} {
		_, ok, err := c.ResolveItemID(ctx, "brutus", text)
		require.NoError(t, err)
		assert.False(t, ok, "text %q should not resolve", text)
	}
}

func TestResolveItemID_TenantScoped(t *testing.T) {
	c, _ := seededCatalog(t)

	_, ok, err := c.ResolveItemID(context.Background(), "other", "x-burger")
	require.NoError(t, err)
	assert.False(t, ok, "another tenant's catalog must not leak")
}

func TestDrinksAndMenu(t *testing.T) {
	c, _ := seededCatalog(t)
	ctx := context.Background()

	drinks, err := c.Drinks(ctx, "brutus")
	require.NoError(t, err)
	require.Len(t, drinks, 2)
	assert.Equal(t, "coca", drinks[0].ID)
	assert.Equal(t, "guarana", drinks[1].ID)

	menu, err := c.Menu(ctx, "brutus")
	require.NoError(t, err)
	assert.Len(t, menu, 4, "unavailable items are hidden")
}

func TestParseSeed_Defaults(t *testing.T) {
	seed, err := ParseSeed("inline.cue", []byte(`item: "agua": {name: "Água", price: 3}`))
	require.NoError(t, err)
	require.Len(t, seed.Items, 1)

	it := seed.Items[0]
	assert.Equal(t, "agua", it.ID)
	assert.Equal(t, tenant.KindFood, it.Kind)
	assert.True(t, it.Available)
	assert.Equal(t, "3.00", it.Price.StringFixed(2))
	assert.Empty(t, seed.Mappings)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := map[string]string{
		"non-positive price": `item: "agua": {name: "Água", price: 0}`,
		"unknown kind":       `item: "agua": {name: "Água", price: 3, kind: "dessert"}`,
		"unknown field":      `item: "agua": {name: "Água", price: 3, color: "blue"}`,
		"bad id":             `item: "Água Mineral": {name: "Água", price: 3}`,
		"empty name":         `item: "agua": {name: "", price: 3}`,
		"syntax error":       `item: {`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed("inline.cue", []byte(src))
			assert.Error(t, err)
		})
	}
}
