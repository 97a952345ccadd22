package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/comanda/internal/catalog"
	"github.com/roach88/comanda/internal/followup"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/testutil"
	"github.com/roach88/comanda/internal/transport"
)

var epoch = time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)

var texts = messages.Defaults()

type harness struct {
	store   *tenant.Store
	engine  *session.Engine
	machine *Machine
}

func seedCatalog(t *testing.T, st *tenant.Store, tenantID string) {
	t.Helper()
	ctx := context.Background()
	items := []tenant.CatalogItem{
		{ID: "x-burger", Name: "X-Burger", Price: decimal.RequireFromString("10.00"), Category: "Lanches", Kind: tenant.KindFood, Available: true, Position: 1},
		{ID: "x-salada", Name: "X-Salada", Price: decimal.RequireFromString("12.00"), Category: "Lanches", Kind: tenant.KindFood, Available: true, Position: 2},
		{ID: "coca", Name: "Coca-Cola", Price: decimal.RequireFromString("6.00"), Category: "Bebidas", Kind: tenant.KindDrink, Available: true, Position: 3},
		{ID: "guarana", Name: "Guaraná", Price: decimal.RequireFromString("5.50"), Category: "Bebidas", Kind: tenant.KindDrink, Available: true, Position: 4},
	}
	for _, it := range items {
		require.NoError(t, st.UpsertItem(ctx, tenantID, it))
	}
	require.NoError(t, st.PutMapping(ctx, tenantID, tenant.Mapping{Keyword: "xburguer", ItemID: "x-burger"}))
	require.NoError(t, st.PutMapping(ctx, tenantID, tenant.Mapping{Keyword: "refri", ItemID: "coca"}))
}

// newHarness wires a machine over a real tenant store with the test
// catalog seeded for "acme" and "other". Delivery costs 7.00 and order ids
// are order-1, order-2, ...
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	st, err := tenant.NewStore(t.TempDir(), tenant.WithNow(func() time.Time { return epoch }))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	seedCatalog(t, st, "acme")
	seedCatalog(t, st, "other")
	return newHarnessWith(t, st, catalog.New(st), opts...)
}

func newHarnessWith(t *testing.T, st *tenant.Store, cat Catalog, opts ...Option) *harness {
	t.Helper()
	engine := session.New(catalog.New(st), st,
		session.WithScheduler(followup.New(testutil.NewFakeClock(epoch))),
		session.WithIDGenerator(testutil.NewSequenceIDGenerator("order")),
		session.WithNow(func() time.Time { return epoch }),
		session.WithDeliveryFee(func(string) decimal.Decimal { return decimal.RequireFromString("7.00") }),
	)
	t.Cleanup(engine.Close)

	return &harness{
		store:   st,
		engine:  engine,
		machine: New(engine, cat, st, messages.NewRegistry(st, nil, nil), opts...),
	}
}

func (h *harness) send(t *testing.T, tenantID, key, text string) Reply {
	t.Helper()
	r, err := h.machine.Handle(context.Background(), tenantID, key, transport.Inbound{Sender: key, Text: text})
	require.NoError(t, err)
	return r
}

func (h *harness) snapshot(tenantID, key string) session.Snapshot {
	return h.engine.GetOrCreate(tenantID, key)
}

func (h *harness) orders(t *testing.T, tenantID string) []tenant.OrderRecord {
	t.Helper()
	orders, err := h.store.ListOrders(context.Background(), tenantID, "")
	require.NoError(t, err)
	return orders
}

func lastText(r Reply) string {
	all := r.Texts()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}
