package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/comanda/internal/tenant"
)

const testConfig = `
data_dir: %DATA%
tenants:
  acme:
    name: Acme Burgers
    phones: ["+55 11 40000-0001"]
    delivery_fee: "7.00"
  quiet:
    phones: ["+55 21 3000-0000"]
    bot_enabled: false
`

const seedFile = "../catalog/testdata/brutus.cue"

// writeConfig writes a two-tenant config with its data dir in a temp dir.
func writeConfig(t *testing.T) (configPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	configPath = filepath.Join(dir, "comanda.yaml")
	content := strings.ReplaceAll(testConfig, "%DATA%", dataDir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath, dataDir
}

func rootOptions(configPath, format string) *RootOptions {
	return &RootOptions{Format: format, Config: configPath}
}

func decodeResponse[T any](t *testing.T, b []byte) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &resp), "body: %s", b)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func writeTestOrder(t *testing.T, dataDir, tenantID string, rec tenant.OrderRecord) {
	t.Helper()
	st, err := tenant.NewStore(dataDir)
	require.NoError(t, err)
	defer st.Close()
	_, inserted, err := st.WriteOrder(context.Background(), tenantID, rec)
	require.NoError(t, err)
	require.True(t, inserted)
}

func readTestOrder(t *testing.T, dataDir, tenantID, orderID string) tenant.OrderRecord {
	t.Helper()
	st, err := tenant.NewStore(dataDir)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.ReadOrder(context.Background(), tenantID, orderID)
	require.NoError(t, err)
	return rec
}

func testOrder(id string, createdAt time.Time) tenant.OrderRecord {
	return tenant.OrderRecord{
		ID:            id,
		CustomerKey:   "5511999990000",
		CustomerName:  "Ana",
		CreatedAt:     createdAt,
		Items:         []tenant.OrderItem{{ItemID: "x-burger", Name: "X-Burger", Quantity: 1, UnitPrice: decimal.RequireFromString("25.90")}},
		ItemsTotal:    decimal.RequireFromString("25.90"),
		Delivery:      true,
		DeliveryFee:   decimal.RequireFromString("7.00"),
		Total:         decimal.RequireFromString("32.90"),
		Address:       "Rua A, 1",
		PaymentMethod: "pix",
		Status:        tenant.StatusFinalized,
	}
}

func TestMigrate(t *testing.T) {
	configPath, dataDir := writeConfig(t)

	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(rootOptions(configPath, "text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "✓ acme\n✓ quiet\n", buf.String())
	assert.FileExists(t, filepath.Join(dataDir, "acme.sqlite"))
	assert.FileExists(t, filepath.Join(dataDir, "quiet.sqlite"))
}

func TestMigrate_SingleTenantJSON(t *testing.T) {
	configPath, dataDir := writeConfig(t)

	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(rootOptions(configPath, "json"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--tenant", "quiet"})

	require.NoError(t, cmd.Execute())
	results := decodeResponse[[]MigrateResult](t, buf.Bytes())
	assert.Equal(t, []MigrateResult{{Tenant: "quiet"}}, results)
	assert.NoFileExists(t, filepath.Join(dataDir, "acme.sqlite"))
}

func TestMigrate_UnknownTenant(t *testing.T) {
	configPath, _ := writeConfig(t)

	cmd := NewMigrateCommand(rootOptions(configPath, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--tenant", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown tenant "nope"`)
}

func TestMissingConfig(t *testing.T) {
	cmd := NewMigrateCommand(rootOptions(filepath.Join(t.TempDir(), "missing.yaml"), "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestCatalogSeedAndList(t *testing.T) {
	configPath, _ := writeConfig(t)

	buf := &bytes.Buffer{}
	seed := NewCatalogCommand(rootOptions(configPath, "json"))
	seed.SetOut(buf)
	seed.SetArgs([]string{"seed", "--tenant", "acme", seedFile})
	require.NoError(t, seed.Execute())

	result := decodeResponse[SeedResult](t, buf.Bytes())
	assert.Equal(t, "acme", result.Tenant)
	assert.Positive(t, result.Items)
	assert.Positive(t, result.Mappings)

	buf.Reset()
	list := NewCatalogCommand(rootOptions(configPath, "json"))
	list.SetOut(buf)
	list.SetArgs([]string{"list", "--tenant", "acme", "--kind", "drink"})
	require.NoError(t, list.Execute())

	items := decodeResponse[[]tenant.CatalogItem](t, buf.Bytes())
	require.NotEmpty(t, items)
	for _, it := range items {
		assert.Equal(t, tenant.KindDrink, it.Kind)
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	assert.Contains(t, ids, "coca")

	// Other tenants are untouched.
	buf.Reset()
	other := NewCatalogCommand(rootOptions(configPath, "json"))
	other.SetOut(buf)
	other.SetArgs([]string{"list", "--tenant", "quiet"})
	require.NoError(t, other.Execute())
	assert.Empty(t, decodeResponse[[]tenant.CatalogItem](t, buf.Bytes()))
}

func TestCatalogSeed_InvalidFile(t *testing.T) {
	configPath, _ := writeConfig(t)
	bad := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte(`item: "x": {price: "free"}`), 0o644))

	cmd := NewCatalogCommand(rootOptions(configPath, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"seed", "--tenant", "acme", bad})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOrdersList(t *testing.T) {
	configPath, dataDir := writeConfig(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeTestOrder(t, dataDir, "acme", testOrder("order-1", base))
	writeTestOrder(t, dataDir, "acme", testOrder("order-2", base.Add(time.Minute)))

	buf := &bytes.Buffer{}
	cmd := NewOrdersCommand(rootOptions(configPath, "json"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"list", "--tenant", "acme"})
	require.NoError(t, cmd.Execute())

	orders := decodeResponse[[]tenant.OrderRecord](t, buf.Bytes())
	require.Len(t, orders, 2)
	assert.Equal(t, "order-2", orders[0].ID)
	assert.Equal(t, "order-1", orders[1].ID)
	assert.True(t, decimal.RequireFromString("32.90").Equal(orders[0].Total))

	buf.Reset()
	text := NewOrdersCommand(rootOptions(configPath, "text"))
	text.SetOut(buf)
	text.SetArgs([]string{"list", "--tenant", "acme"})
	require.NoError(t, text.Execute())
	assert.Contains(t, buf.String(), "Ana (5511999990000)")
	assert.Contains(t, buf.String(), "32.90")
}

func TestOrdersList_Empty(t *testing.T) {
	configPath, _ := writeConfig(t)

	buf := &bytes.Buffer{}
	cmd := NewOrdersCommand(rootOptions(configPath, "text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"list", "--tenant", "quiet"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "No orders.\n", buf.String())
}

func TestOrdersList_InvalidStatus(t *testing.T) {
	configPath, _ := writeConfig(t)

	cmd := NewOrdersCommand(rootOptions(configPath, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"list", "--tenant", "acme", "--status", "lost"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOrdersDispatch(t *testing.T) {
	configPath, dataDir := writeConfig(t)
	writeTestOrder(t, dataDir, "acme", testOrder("order-1", time.Now()))

	buf := &bytes.Buffer{}
	cmd := NewOrdersCommand(rootOptions(configPath, "text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"dispatch", "--tenant", "acme", "order-1"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "✓ order-1 dispatched-for-delivery\n", buf.String())

	rec := readTestOrder(t, dataDir, "acme", "order-1")
	assert.Equal(t, tenant.StatusDispatched, rec.Status)
	assert.Equal(t, "Rua A, 1", rec.Address)

	// Dispatching again is a no-op.
	buf.Reset()
	again := NewOrdersCommand(rootOptions(configPath, "text"))
	again.SetOut(buf)
	again.SetArgs([]string{"dispatch", "--tenant", "acme", "order-1"})
	require.NoError(t, again.Execute())
	assert.Equal(t, "✓ order-1 dispatched-for-delivery\n", buf.String())
}

func TestOrdersDispatch_NotFound(t *testing.T) {
	configPath, _ := writeConfig(t)

	cmd := NewOrdersCommand(rootOptions(configPath, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"dispatch", "--tenant", "acme", "order-404"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, tenant.ErrOrderNotFound)
}

func TestServe_RequiresTransport(t *testing.T) {
	configPath, _ := writeConfig(t)

	cmd := NewServeCommand(rootOptions(configPath, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no chat transport")
}

func TestChat(t *testing.T) {
	configPath, _ := writeConfig(t)

	seed := NewCatalogCommand(rootOptions(configPath, "text"))
	seed.SetOut(&bytes.Buffer{})
	seed.SetArgs([]string{"seed", "--tenant", "acme", seedFile})
	require.NoError(t, seed.Execute())

	out := &bytes.Buffer{}
	cmd := NewChatCommand(rootOptions(configPath, "text"))
	cmd.SetIn(strings.NewReader("oi\n/quit\n"))
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--tenant", "acme", "--as", "5511999990000"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Console ready")
	assert.Contains(t, out.String(), "[acme → 5511999990000]")
}

func TestChat_RequiresTenant(t *testing.T) {
	configPath, _ := writeConfig(t)

	cmd := NewChatCommand(rootOptions(configPath, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
