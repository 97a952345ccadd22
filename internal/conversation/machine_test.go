package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/comanda/internal/catalog"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/transport"
)

func TestScenario_PixPersistsOnce(t *testing.T) {
	h := newHarness(t)

	r := h.send(t, "acme", "5511", "x-burger")
	assert.Contains(t, lastText(r), "1x X-Burger")
	assert.Equal(t, session.StateInitial, r.State)

	r = h.send(t, "acme", "5511", "f")
	assert.Equal(t, texts.Get(messages.KeyAskAddress), lastText(r))
	assert.Equal(t, session.StateCollectingAddress, r.State)

	r = h.send(t, "acme", "5511", "Rua das Flores, 123")
	assert.Contains(t, lastText(r), "Rua das Flores, 123")
	assert.Contains(t, lastText(r), "Taxa de entrega: R$ 7.00")
	assert.Contains(t, lastText(r), "*VALOR FINAL*: R$ 17.00")
	assert.Equal(t, session.StateCollectingAddress, r.State)

	r = h.send(t, "acme", "5511", "s")
	assert.Equal(t, texts.Get(messages.KeyAskNote), lastText(r))
	assert.Equal(t, session.StateAwaitingConfirmationNote, r.State)

	r = h.send(t, "acme", "5511", "sem cebola")
	assert.Equal(t, texts.Get(messages.KeyAskName), lastText(r))
	assert.Equal(t, session.StateCollectingName, r.State)

	r = h.send(t, "acme", "5511", "Ana")
	assert.Contains(t, lastText(r), "*VALOR TOTAL: R$ 17.00*")
	assert.Equal(t, session.StateChoosingPayment, r.State)

	r = h.send(t, "acme", "5511", "pix")
	assert.Equal(t, session.StateFinalized, r.State)
	require.NotNil(t, r.Order)
	assert.True(t, r.Created)
	assert.Contains(t, lastText(r), "Ana, seu pedido foi anotado")

	orders := h.orders(t, "acme")
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, "17.00", o.Total.StringFixed(2))
	assert.Equal(t, session.PaymentPix, o.PaymentMethod)
	assert.Equal(t, "Rua das Flores, 123", o.Address)
	assert.Equal(t, "sem cebola", o.Note)
	assert.Equal(t, "Ana", o.CustomerName)

	// A repeated "pix" must not place a second order or confirm again.
	r = h.send(t, "acme", "5511", "pix")
	assert.Nil(t, r.Order)
	assert.Equal(t, texts.Get(messages.KeyAlreadyPlaced), lastText(r))
	assert.Len(t, h.orders(t, "acme"), 1)

	c, found, err := h.store.ReadCustomer(context.Background(), "acme", "5511")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ana", c.Name)
	assert.Equal(t, "Rua das Flores, 123", c.Address)
	assert.Equal(t, 1, c.OrderCount)
}

func TestScenario_EmptyCartFinalize(t *testing.T) {
	h := newHarness(t)

	r := h.send(t, "acme", "5511", "finalizar")
	assert.Equal(t, session.StateInitial, r.State)
	assert.Contains(t, lastText(r), texts.Get(messages.KeyCartEmpty))
	assert.Empty(t, h.orders(t, "acme"))
}

func TestInitial_MenuShownOnce(t *testing.T) {
	h := newHarness(t)

	r := h.send(t, "acme", "5511", "quero uma pizza")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyWelcome))
	assert.Contains(t, lastText(r), "X-Burger - R$ 10.00")
	assert.True(t, h.snapshot("acme", "5511").MenuShown)

	r = h.send(t, "acme", "5511", "quero uma pizza")
	assert.NotContains(t, lastText(r), texts.Get(messages.KeyWelcome))
	assert.Contains(t, lastText(r), texts.Get(messages.KeyItemNotFound))

	r = h.send(t, "acme", "5511", "oi")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyWelcome), "a greeting always shows the menu")
}

func TestInitial_MenuMedia(t *testing.T) {
	h := newHarness(t, WithMenuMedia(func(tenantID string) []string {
		return []string{"media/" + tenantID + "/menu.jpg"}
	}))

	r := h.send(t, "acme", "5511", "cardapio")
	require.Len(t, r.Messages, 2)
	assert.Equal(t, "media/acme/menu.jpg", r.Messages[0].MediaRef)
	assert.Contains(t, r.Messages[1].Text, "X-Salada")
}

func TestInitial_AddWithQuantityAndKeyword(t *testing.T) {
	h := newHarness(t)

	h.send(t, "acme", "5511", "2 x-burger")
	r := h.send(t, "acme", "5511", "1 refri")

	snap := h.snapshot("acme", "5511")
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.Equal(t, "coca", snap.Items[1].ItemID)
	assert.Equal(t, "26.00", snap.GrandTotal.StringFixed(2))
	assert.Contains(t, lastText(r), "VALOR ATUAL: *R$ 26.00*")
}

func TestInitial_CancelLast(t *testing.T) {
	h := newHarness(t)

	r := h.send(t, "acme", "5511", "c")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyCartAlreadyEmpty))

	h.send(t, "acme", "5511", "x-burger")
	h.send(t, "acme", "5511", "x-salada")

	r = h.send(t, "acme", "5511", "cancelar")
	assert.Contains(t, lastText(r), "1x X-Burger")
	assert.NotContains(t, lastText(r), "X-Salada")

	r = h.send(t, "acme", "5511", "c")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyCartEmpty))
	assert.True(t, h.snapshot("acme", "5511").Empty())
}

func TestInitial_NewOrderResets(t *testing.T) {
	h := newHarness(t)

	h.send(t, "acme", "5511", "x-burger")
	before := h.snapshot("acme", "5511").LifecycleID

	r := h.send(t, "acme", "5511", "novo")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyCartReset))
	snap := h.snapshot("acme", "5511")
	assert.True(t, snap.Empty())
	assert.NotEqual(t, before, snap.LifecycleID)
}

func TestDrinks_ByNumberAndName(t *testing.T) {
	h := newHarness(t)

	r := h.send(t, "acme", "5511", "b")
	assert.Equal(t, session.StateChoosingDrink, r.State)
	assert.Contains(t, lastText(r), "*1* Coca-Cola - R$ 6.00")
	assert.Contains(t, lastText(r), "*2* Guaraná - R$ 5.50")

	r = h.send(t, "acme", "5511", "2")
	assert.Equal(t, session.StateInitial, r.State)
	assert.Contains(t, lastText(r), "1x Guaraná")

	h.send(t, "acme", "5511", "bebida")
	r = h.send(t, "acme", "5511", "coca-cola")
	assert.Equal(t, session.StateInitial, r.State)
	assert.Len(t, h.snapshot("acme", "5511").Items, 2)
}

func TestDrinks_InvalidAndBack(t *testing.T) {
	h := newHarness(t)

	h.send(t, "acme", "5511", "b")
	r := h.send(t, "acme", "5511", "99")
	assert.Equal(t, texts.Get(messages.KeyInvalidDrink), lastText(r))
	assert.Equal(t, session.StateChoosingDrink, r.State)

	r = h.send(t, "acme", "5511", "voltar")
	assert.Equal(t, session.StateInitial, r.State)
}

func TestAddress_StoredAddressProposed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetCustomerAddress(ctx, "acme", "5511", "Av. Brasil, 500", nil, nil))
	require.NoError(t, h.store.SetCustomerName(ctx, "acme", "5511", "Bruno"))

	h.send(t, "acme", "5511", "x-burger")
	r := h.send(t, "acme", "5511", "f")
	assert.Equal(t, session.StateCollectingAddress, r.State)
	assert.Contains(t, lastText(r), "Av. Brasil, 500")
	assert.Contains(t, lastText(r), "R$ 17.00")

	h.send(t, "acme", "5511", "sim")
	r = h.send(t, "acme", "5511", "n")
	assert.Equal(t, session.StateChoosingPayment, r.State, "known name skips the name question")
	assert.Equal(t, "Bruno", h.snapshot("acme", "5511").CustomerName)
}

func TestAddress_MalformedStoredAddressCleared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetCustomerAddress(ctx, "acme", "5511", "undefined", nil, nil))

	h.send(t, "acme", "5511", "x-burger")
	r := h.send(t, "acme", "5511", "f")
	assert.Equal(t, texts.Get(messages.KeyAskAddress), lastText(r))

	c, found, err := h.store.ReadCustomer(ctx, "acme", "5511")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, c.Address)
}

func TestAddress_ConfirmWithoutAddressAndLocation(t *testing.T) {
	h := newHarness(t)

	h.send(t, "acme", "5511", "x-burger")
	h.send(t, "acme", "5511", "f")

	r := h.send(t, "acme", "5511", "s")
	assert.Equal(t, texts.Get(messages.KeyAskAddress), lastText(r))

	r, err := h.machine.Handle(context.Background(), "acme", "5511", transport.Inbound{
		Sender:   "5511",
		Location: &transport.Location{Lat: -23.5, Lng: -46.6},
	})
	require.NoError(t, err)
	assert.Contains(t, lastText(r), "Localização")
	snap := h.snapshot("acme", "5511")
	require.NotNil(t, snap.Lat)
	assert.InDelta(t, -23.5, *snap.Lat, 1e-9)

	r = h.send(t, "acme", "5511", "s")
	assert.Equal(t, session.StateAwaitingConfirmationNote, r.State)
	assert.True(t, h.snapshot("acme", "5511").DeliveryConfirmed)
}

func TestAddress_ConfirmedAddressSkipsAhead(t *testing.T) {
	h := newHarness(t)

	h.send(t, "acme", "5511", "x-burger")
	h.send(t, "acme", "5511", "f")
	h.send(t, "acme", "5511", "Rua das Flores, 123")
	h.send(t, "acme", "5511", "s")
	r := h.send(t, "acme", "5511", "voltar")
	assert.Equal(t, session.StateInitial, r.State)

	r = h.send(t, "acme", "5511", "f")
	assert.Equal(t, session.StateAwaitingConfirmationNote, r.State)
}

func TestCash_ChangeFlow(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"x-burger", "f", "Rua das Flores, 123", "s", "n", "Ana"} {
		h.send(t, "acme", "5511", text)
	}

	r := h.send(t, "acme", "5511", "dinheiro")
	assert.Equal(t, session.StateAwaitingChangeAmount, r.State)

	r = h.send(t, "acme", "5511", "10")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyChangeTooLow))
	assert.Equal(t, session.StateAwaitingChangeAmount, r.State)

	r = h.send(t, "acme", "5511", "cinquenta")
	assert.Equal(t, texts.Get(messages.KeyChangeInvalid), lastText(r))

	r = h.send(t, "acme", "5511", "R$ 50,00")
	assert.Equal(t, session.StateFinalized, r.State)
	require.NotNil(t, r.Order)
	assert.Equal(t, "50.00", r.Order.ChangeFor.StringFixed(2))
	assert.Equal(t, session.PaymentCash, r.Order.PaymentMethod)
}

func TestCash_NoChange(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"x-burger", "f", "Rua das Flores, 123", "s", "n", "Ana", "1"} {
		h.send(t, "acme", "5511", text)
	}
	r := h.send(t, "acme", "5511", "sem troco")
	require.NotNil(t, r.Order)
	assert.True(t, r.Order.ChangeFor.IsZero())
}

func TestPayment_Unrecognized(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"x-burger", "f", "Rua das Flores, 123", "s", "n", "Ana"} {
		h.send(t, "acme", "5511", text)
	}
	r := h.send(t, "acme", "5511", "bitcoin")
	assert.Equal(t, session.StateChoosingPayment, r.State)
	assert.Contains(t, lastText(r), texts.Get(messages.KeyUnrecognized))
	assert.Contains(t, lastText(r), texts.Get(messages.KeyPaymentMenu))
	assert.Empty(t, h.orders(t, "acme"))
}

func TestPayment_RepeatedFinalizeDoesNotConfirmTwice(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"x-burger", "f", "Rua das Flores, 123", "s", "n", "Ana"} {
		h.send(t, "acme", "5511", text)
	}
	r := h.send(t, "acme", "5511", "pix")
	require.True(t, r.Created)
	taken := lastText(r)

	// An operator moves the session back to payment after the order was saved.
	_, err := h.engine.SetState(context.Background(), "acme", "5511", session.StateChoosingPayment)
	require.NoError(t, err)

	r = h.send(t, "acme", "5511", "pix")
	assert.False(t, r.Created)
	assert.Equal(t, session.StateFinalized, r.State)
	assert.Equal(t, texts.Get(messages.KeyAlreadyPlaced), lastText(r))
	assert.NotContains(t, r.Texts(), taken)
	assert.Len(t, h.orders(t, "acme"), 1)
}

func TestPickupFlow(t *testing.T) {
	h := newHarness(t, WithPickup(func(string) bool { return true }))

	h.send(t, "acme", "5511", "x-burger")
	r := h.send(t, "acme", "5511", "f")
	assert.Equal(t, session.StateChoosingDeliveryOrPickup, r.State)

	r = h.send(t, "acme", "5511", "talvez")
	assert.Contains(t, lastText(r), texts.Get(messages.KeyUnrecognized))

	r = h.send(t, "acme", "5511", "2")
	assert.Equal(t, session.StateAwaitingConfirmationNote, r.State)

	h.send(t, "acme", "5511", "n")
	r = h.send(t, "acme", "5511", "Ana")
	assert.Contains(t, lastText(r), "R$ 10.00")

	r = h.send(t, "acme", "5511", "cartão")
	require.NotNil(t, r.Order)
	assert.False(t, r.Order.Delivery)
	assert.Empty(t, r.Order.Address)
	assert.Equal(t, "10.00", r.Order.Total.StringFixed(2))
	assert.Equal(t, session.PaymentCard, r.Order.PaymentMethod)
}

func TestSupport(t *testing.T) {
	h := newHarness(t)

	r := h.send(t, "acme", "5511", "ajuda")
	assert.True(t, r.Escalate)
	assert.Equal(t, session.StateSupport, r.State)

	r = h.send(t, "acme", "5511", "meu pedido atrasou")
	assert.True(t, r.Escalate)
	assert.Equal(t, texts.Get(messages.KeySupportAck), lastText(r))

	r = h.send(t, "acme", "5511", "voltar")
	assert.False(t, r.Escalate)
	assert.Equal(t, session.StateInitial, r.State)
}

func TestTerminal_NewOrderStartsNewLifecycle(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"x-burger", "f", "Rua das Flores, 123", "s", "n", "Ana", "pix"} {
		h.send(t, "acme", "5511", text)
	}
	r := h.send(t, "acme", "5511", "novo")
	assert.Equal(t, session.StateInitial, r.State)

	h.send(t, "acme", "5511", "x-salada")
	r = h.send(t, "acme", "5511", "f")
	assert.Equal(t, session.StateCollectingAddress, r.State, "stored address is proposed again")
	for _, text := range []string{"s", "n", "pix"} {
		r = h.send(t, "acme", "5511", text)
	}
	require.NotNil(t, r.Order)
	assert.True(t, r.Created)
	assert.Equal(t, "order-2", r.Order.ID)

	orders := h.orders(t, "acme")
	require.Len(t, orders, 2)
	assert.NotEqual(t, orders[0].ID, orders[1].ID)
}

func TestTenantIsolation(t *testing.T) {
	h := newHarness(t)

	h.send(t, "acme", "5511", "x-burger")
	h.send(t, "other", "5511", "2 x-salada")

	a := h.snapshot("acme", "5511")
	b := h.snapshot("other", "5511")
	require.Len(t, a.Items, 1)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "x-burger", a.Items[0].ItemID)
	assert.Equal(t, "x-salada", b.Items[0].ItemID)

	for _, text := range []string{"f", "Rua A, 100", "s", "n", "Ana", "pix"} {
		h.send(t, "acme", "5511", text)
	}
	assert.Len(t, h.orders(t, "acme"), 1)
	assert.Empty(t, h.orders(t, "other"))

	_, found, err := h.store.ReadCustomer(context.Background(), "other", "5511")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnknownState(t *testing.T) {
	h := newHarness(t)
	delete(h.machine.handlers, session.StateSupport)

	h.send(t, "acme", "5511", "ajuda")
	_, err := h.machine.Handle(context.Background(), "acme", "5511", transport.Inbound{Sender: "5511", Text: "oi"})
	require.Error(t, err)
	assert.True(t, session.IsUnknownState(err))
}

type brokenCatalog struct {
	Catalog
	err error
}

func (b brokenCatalog) ResolveItemID(context.Context, string, string) (string, bool, error) {
	return "", false, b.err
}

func (b brokenCatalog) Drinks(context.Context, string) ([]tenant.CatalogItem, error) {
	return nil, b.err
}

func TestCatalogFailureDegradesToRetry(t *testing.T) {
	base := newHarness(t)
	broken := brokenCatalog{Catalog: catalog.New(base.store), err: errors.New("database is locked")}
	h := newHarnessWith(t, base.store, broken)

	r := h.send(t, "acme", "5511", "x-burger")
	assert.Equal(t, texts.Get(messages.KeyRetry), lastText(r))
	assert.Equal(t, session.StateInitial, r.State)

	r = h.send(t, "acme", "5511", "b")
	assert.Equal(t, texts.Get(messages.KeyRetry), lastText(r))
	assert.Equal(t, session.StateInitial, r.State)
}
