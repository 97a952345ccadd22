package tenant

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCustomer_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, found, err := s.ReadCustomer(testContext(), "acme", "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteCustomer_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext()
	lat, lng := -23.55, -46.63

	require.NoError(t, s.WriteCustomer(ctx, "acme", Customer{Key: "5511", Name: "Ana", Address: "Rua A", Lat: &lat, Lng: &lng}))
	require.NoError(t, s.WriteCustomer(ctx, "acme", Customer{Key: "5511", Name: "Ana Maria", Address: "Rua B"}))

	c, found, err := s.ReadCustomer(ctx, "acme", "5511")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ana Maria", c.Name)
	assert.Equal(t, "Rua B", c.Address)
	assert.Nil(t, c.Lat)
	assert.True(t, fixedNow.Equal(c.CreatedAt))
}

func TestSetCustomerFields(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext()
	lat, lng := -23.55, -46.63

	require.NoError(t, s.SetCustomerName(ctx, "acme", "5511", "Ana"))
	require.NoError(t, s.SetCustomerAddress(ctx, "acme", "5511", "LOCATION", &lat, &lng))

	c, _, err := s.ReadCustomer(ctx, "acme", "5511")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.Name, "address update must keep the name")
	assert.Equal(t, "LOCATION", c.Address)
	require.NotNil(t, c.Lat)
	assert.InDelta(t, lat, *c.Lat, 1e-9)

	require.NoError(t, s.ClearCustomerAddress(ctx, "acme", "5511"))
	c, _, err = s.ReadCustomer(ctx, "acme", "5511")
	require.NoError(t, err)
	assert.Empty(t, c.Address)
	assert.Nil(t, c.Lat)
}

func TestAddSpend(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext()

	require.NoError(t, s.AddSpend(ctx, "acme", "5511", decimal.RequireFromString("17.00")))
	require.NoError(t, s.AddSpend(ctx, "acme", "5511", decimal.RequireFromString("25.50")))

	c, found, err := s.ReadCustomer(ctx, "acme", "5511")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "42.50", c.TotalSpent.StringFixed(2))
	assert.Equal(t, 2, c.OrderCount)
}
