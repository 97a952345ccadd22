package tenant

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogItems(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext()

	require.NoError(t, s.UpsertItem(ctx, "acme", CatalogItem{ID: "coca", Name: "Coca-Cola", Price: decimal.RequireFromString("6"), Kind: KindDrink, Available: true, Position: 2}))
	require.NoError(t, s.UpsertItem(ctx, "acme", CatalogItem{ID: "x-burger", Name: "X-Burger", Price: decimal.RequireFromString("25.9"), Available: true, Position: 1}))

	it, found, err := s.GetItem(ctx, "acme", "x-burger")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, KindFood, it.Kind, "empty kind defaults to food")
	assert.Equal(t, "25.90", it.Price.StringFixed(2))

	all, err := s.ListItems(ctx, "acme", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "x-burger", all[0].ID)

	drinks, err := s.ListItems(ctx, "acme", KindDrink)
	require.NoError(t, err)
	require.Len(t, drinks, 1)
	assert.Equal(t, "coca", drinks[0].ID)

	_, found, err = s.GetItem(ctx, "acme", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMappingsAndSettings(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext()

	require.NoError(t, s.PutMapping(ctx, "acme", Mapping{Keyword: "refri", ItemID: "coca"}))
	require.NoError(t, s.PutMapping(ctx, "acme", Mapping{Keyword: "refri", ItemID: "guarana"}))

	ms, err := s.ListMappings(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []Mapping{{Keyword: "refri", ItemID: "guarana"}}, ms)

	_, found, err := s.GetSetting(ctx, "acme", "bot_enabled")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutSetting(ctx, "acme", "bot_enabled", "false"))
	v, found, err := s.GetSetting(ctx, "acme", "bot_enabled")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "false", v)
}
